package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/answerbank/core"
	"github.com/poiesic/answerbank/storage"
)

// assignChunkSize bounds the number of keys handled per transaction.
const assignChunkSize = 1000

// LineageRepository implements storage.LineageRepository for BadgerDB.
type LineageRepository struct {
	backend  *Backend
	owned    bool
	buildSeq *badger.Sequence
	idSeq    *badger.Sequence
}

var _ storage.LineageRepository = (*LineageRepository)(nil)

// NewLineageRepository creates a LineageRepository over an open backend.
func NewLineageRepository(backend *Backend) (*LineageRepository, error) {
	buildSeq, err := backend.GetSequence(buildSeq)
	if err != nil {
		return nil, err
	}
	idSeq, err := backend.GetSequence(recordIDSeq)
	if err != nil {
		buildSeq.Release()
		return nil, err
	}
	return &LineageRepository{
		backend:  backend,
		buildSeq: buildSeq,
		idSeq:    idSeq,
	}, nil
}

// OpenLineage opens the lineage database at path. The database holds an
// exclusive directory lock until Close, so only one process can build a
// corpus root at a time. Returns storage.ErrLocked if the lock is held.
func OpenLineage(path string, logger *slog.Logger) (*LineageRepository, error) {
	backend, err := OpenBackend(path, ModeReadWrite, logger)
	if err != nil {
		return nil, err
	}
	repo, err := NewLineageRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	repo.owned = true
	return repo, nil
}

// Close releases the sequences and, if owned, the backend.
func (r *LineageRepository) Close() error {
	err := errors.Join(r.buildSeq.Release(), r.idSeq.Release())
	if r.owned {
		err = errors.Join(err, r.backend.Close())
	}
	return err
}

// NextBuild increments and returns the build counter.
func (r *LineageRepository) NextBuild(ctx context.Context) (uint64, error) {
	return nextNonZero(r.buildSeq)
}

// AssignIDs returns the record ID for each key, allocating IDs for new keys.
func (r *LineageRepository) AssignIDs(ctx context.Context, keys []string) ([]core.ID, error) {
	ids := make([]core.ID, len(keys))
	for start := 0; start < len(keys); start += assignChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+assignChunkSize, len(keys))
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			for i := start; i < end; i++ {
				id, err := r.readRowID(tx, keys[i])
				if err != nil {
					return err
				}
				if id == 0 {
					next, err := nextNonZero(r.idSeq)
					if err != nil {
						return err
					}
					id = core.ID(next)
					if err := tx.Set(makeRowKey(keys[i]), storage.MarshalID(id)); err != nil {
						return err
					}
				}
				ids[i] = id
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// LookupID returns the record ID assigned to key.
func (r *LineageRepository) LookupID(ctx context.Context, key string) (core.ID, error) {
	var id core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		id, err = r.readRowID(tx, key)
		return err
	}, false)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("%w: row key %q", storage.ErrNotFound, key)
	}
	return id, nil
}

// readRowID reads the ID assigned to a row key.
// Returns 0, nil if the key has no ID yet.
func (r *LineageRepository) readRowID(tx *badger.Txn, key string) (core.ID, error) {
	item, err := tx.Get(makeRowKey(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var id core.ID
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		id, unmarshalErr = storage.UnmarshalID(val)
		return unmarshalErr
	})
	return id, err
}

// nextNonZero returns the next sequence value.
// BadgerDB sequences can return 0 on first call, so we skip it.
func nextNonZero(seq *badger.Sequence) (uint64, error) {
	next, err := seq.Next()
	if err != nil {
		return 0, err
	}
	if next == 0 {
		return seq.Next()
	}
	return next, nil
}
