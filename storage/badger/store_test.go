package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/answerbank/core"
	"github.com/poiesic/answerbank/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []*core.AnswerRecord {
	leaf := core.CategoryID("A", "B", "C")
	now := time.Now().UTC().Truncate(time.Microsecond)
	return []*core.AnswerRecord{
		{
			Id: 2, CategoryId: leaf, Question: "q2", Answer: "a2",
			VectorState: core.VectorOK, Vector: []float32{0, 1},
			CreatedAt: now, UpdatedAt: now,
		},
		{
			Id: 1, CategoryId: leaf, Question: "q1", Answer: "a1",
			VectorState: core.VectorOK, Vector: []float32{1, 0},
			CreatedAt: now, UpdatedAt: now,
		},
		{
			Id: 300, CategoryId: leaf, Question: "q3", Answer: "a3",
			VectorState: core.VectorMissing, VectorNote: "embedding failed",
			CreatedAt: now, UpdatedAt: now,
		},
	}
}

func TestStoreWriteRead(t *testing.T) {
	writer, reader, backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	_, err = reader.ReadManifest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	manifest := &core.Manifest{FormatVersion: core.FormatVersion, ModelID: "m", Dimension: 2, Build: 1, RecordCount: 3, ValidCount: 2}
	require.NoError(t, writer.WriteManifest(ctx, manifest))
	require.NoError(t, writer.WriteCategories(ctx,
		&core.Category{Id: 5, Label: "A", Level: core.LevelMajor},
		&core.Category{Id: 6, ParentId: 5, Label: "B", Level: core.LevelMiddle},
	))
	require.NoError(t, writer.WriteRecords(ctx, sampleRecords()...))
	require.NoError(t, writer.Close())

	got, err := reader.ReadManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, manifest, got)

	var categories []*core.Category
	require.NoError(t, reader.ForEachCategory(ctx, func(c *core.Category) error {
		categories = append(categories, c)
		return nil
	}))
	assert.Len(t, categories, 2)

	var records []*core.AnswerRecord
	require.NoError(t, reader.ForEachRecord(ctx, func(r *core.AnswerRecord) error {
		records = append(records, r)
		return nil
	}))
	require.Len(t, records, 3)

	// Records come back in ID order with their vectors attached.
	assert.Equal(t, core.ID(1), records[0].Id)
	assert.Equal(t, []float32{1, 0}, records[0].Vector)
	assert.Equal(t, core.ID(2), records[1].Id)
	assert.Equal(t, core.ID(300), records[2].Id)
	assert.Nil(t, records[2].Vector)
	assert.Equal(t, core.VectorMissing, records[2].VectorState)

	count, err := reader.CountVectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStoreOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "v00000001")
	ctx := context.Background()

	writer, err := CreateStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, writer.WriteRecords(ctx, sampleRecords()...))
	require.NoError(t, writer.Close())

	reader, err := OpenStore(dir, nil)
	require.NoError(t, err)
	defer reader.Close()

	// Shared read-only opens are allowed.
	second, err := OpenStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, second.Close())

	n := 0
	require.NoError(t, reader.ForEachRecord(ctx, func(r *core.AnswerRecord) error {
		n++
		return nil
	}))
	assert.Equal(t, 3, n)
}

func TestForEachRecordStopsOnCancel(t *testing.T) {
	writer, reader, backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()
	require.NoError(t, writer.WriteRecords(context.Background(), sampleRecords()...))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = reader.ForEachRecord(ctx, func(r *core.AnswerRecord) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
