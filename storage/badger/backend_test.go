package badger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/answerbank/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", ModeInMemory, nil)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, ModeReadWrite, nil)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_ReadOnlyMissing(t *testing.T) {
	_, err := OpenBackend(filepath.Join(t.TempDir(), "missing"), ModeReadOnly, nil)
	assert.Error(t, err)
}

func TestOpenBackend_ReadOnlyNotDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := OpenBackend(file, ModeReadOnly, nil)
	assert.Error(t, err)
}

func TestOpenBackend_Locked(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenBackend(dir, ModeReadWrite, nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = OpenBackend(dir, ModeReadWrite, nil)
	assert.ErrorIs(t, err, storage.ErrLocked)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", ModeInMemory, nil)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestWithBatch(t *testing.T) {
	backend, err := OpenBackend("", ModeInMemory, nil)
	require.NoError(t, err)
	defer backend.Close()

	err = backend.WithBatch(func(wb *badger.WriteBatch) error {
		return wb.Set([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)

	err = backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte("k"))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		assert.Equal(t, []byte("v"), val)
		return err
	}, false)
	require.NoError(t, err)
}
