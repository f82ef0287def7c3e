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

// StoreWriter implements storage.StoreWriter for BadgerDB.
type StoreWriter struct {
	backend *Backend
	owned   bool
}

var _ storage.StoreWriter = (*StoreWriter)(nil)

// NewStoreWriter creates a StoreWriter over an open backend.
// Closing the writer leaves the backend open.
func NewStoreWriter(backend *Backend) *StoreWriter {
	return &StoreWriter{backend: backend}
}

// CreateStore opens a read-write database at path for a new store version.
// Closing the writer closes the database.
func CreateStore(path string, logger *slog.Logger) (*StoreWriter, error) {
	backend, err := OpenBackend(path, ModeReadWrite, logger)
	if err != nil {
		return nil, err
	}
	return &StoreWriter{backend: backend, owned: true}, nil
}

// Close releases the backend if the writer owns it.
func (w *StoreWriter) Close() error {
	if !w.owned {
		return nil
	}
	return w.backend.Close()
}

// WriteManifest stores the version manifest.
func (w *StoreWriter) WriteManifest(ctx context.Context, manifest *core.Manifest) error {
	return w.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set([]byte(manifestKey), storage.MarshalManifest(manifest)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// WriteCategories stores category nodes.
func (w *StoreWriter) WriteCategories(ctx context.Context, categories ...*core.Category) error {
	return w.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, c := range categories {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := wb.Set(makeCategoryKey(c.Id), storage.MarshalCategory(c)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteRecords stores answer records and the vectors of indexed records.
func (w *StoreWriter) WriteRecords(ctx context.Context, records ...*core.AnswerRecord) error {
	return w.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := wb.Set(makeRecordKey(r.Id), storage.MarshalAnswerRecord(r)); err != nil {
				return err
			}
			if r.VectorState != core.VectorOK {
				continue
			}
			if err := wb.Set(makeVectorKey(r.Id), storage.EncodeVector(r.Vector)); err != nil {
				return err
			}
		}
		return nil
	})
}

// StoreReader implements storage.StoreReader for BadgerDB.
type StoreReader struct {
	backend *Backend
	owned   bool
}

var _ storage.StoreReader = (*StoreReader)(nil)

// NewStoreReader creates a StoreReader over an open backend.
// Closing the reader leaves the backend open.
func NewStoreReader(backend *Backend) *StoreReader {
	return &StoreReader{backend: backend}
}

// OpenStore opens an existing store version read-only.
// Closing the reader closes the database.
func OpenStore(path string, logger *slog.Logger) (*StoreReader, error) {
	backend, err := OpenBackend(path, ModeReadOnly, logger)
	if err != nil {
		return nil, err
	}
	return &StoreReader{backend: backend, owned: true}, nil
}

// Close releases the backend if the reader owns it.
func (r *StoreReader) Close() error {
	if !r.owned {
		return nil
	}
	return r.backend.Close()
}

// ReadManifest returns the version manifest.
func (r *StoreReader) ReadManifest(ctx context.Context) (*core.Manifest, error) {
	var manifest *core.Manifest
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(manifestKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: manifest", storage.ErrNotFound)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			manifest, unmarshalErr = storage.UnmarshalManifest(val)
			return unmarshalErr
		})
	}, false)
	return manifest, err
}

// ForEachCategory calls fn for every stored category in ID order.
func (r *StoreReader) ForEachCategory(ctx context.Context, fn func(*core.Category) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		return iteratePrefix(ctx, tx, categoryPrefix, func(item *badger.Item) error {
			var c *core.Category
			err := item.Value(func(val []byte) error {
				var unmarshalErr error
				c, unmarshalErr = storage.UnmarshalCategory(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			return fn(c)
		})
	}, false)
}

// ForEachRecord calls fn for every stored record in ID order with its vector attached.
func (r *StoreReader) ForEachRecord(ctx context.Context, fn func(*core.AnswerRecord) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		return iteratePrefix(ctx, tx, recordPrefix, func(item *badger.Item) error {
			var record *core.AnswerRecord
			err := item.Value(func(val []byte) error {
				var unmarshalErr error
				record, unmarshalErr = storage.UnmarshalAnswerRecord(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}

			record.Vector, err = readVector(tx, record.Id)
			if err != nil {
				return fmt.Errorf("record %d: %w", record.Id, err)
			}
			return fn(record)
		})
	}, false)
}

// CountVectors returns the number of stored vectors.
func (r *StoreReader) CountVectors(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(vectorPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return ctx.Err()
	}, false)
	return count, err
}

// readVector reads the vector stored for id.
// Returns nil, nil if no vector exists.
func readVector(tx *badger.Txn, id core.ID) ([]float32, error) {
	item, err := tx.Get(makeVectorKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var vector []float32
	err = item.Value(func(val []byte) error {
		var decodeErr error
		vector, decodeErr = storage.DecodeVector(val)
		return decodeErr
	})
	return vector, err
}

func iteratePrefix(ctx context.Context, tx *badger.Txn, prefix string, fn func(*badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(iter.Item()); err != nil {
			return err
		}
	}
	return nil
}
