package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poiesic/answerbank/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// publish writes a fixture version through staging and makes it current.
func publish(t *testing.T, layout Layout, build uint64) {
	t.Helper()
	staging := layout.StagingPath("run-" + VersionName(build))
	newFixture(build).write(t, staging)
	_, err := layout.Publish(staging, build)
	require.NoError(t, err)
}

func TestVersionNames(t *testing.T) {
	assert.Equal(t, "v00000007", VersionName(7))

	build, err := ParseVersionName("v00000042")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), build)

	for _, bad := range []string{"", "v", "00000042", "vx1"} {
		_, err := ParseVersionName(bad)
		assert.Error(t, err, bad)
	}
}

func TestLayoutPublish(t *testing.T) {
	layout := NewLayout(t.TempDir())

	_, err := layout.Current()
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	publish(t, layout, 1)
	publish(t, layout, 2)

	data, err := os.ReadFile(layout.CurrentPath())
	require.NoError(t, err)
	assert.Equal(t, "v00000002\n", string(data))

	current, err := layout.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), current)

	versions, err := layout.Versions()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, versions)

	_, err = os.Stat(layout.StagingPath("run-" + VersionName(2)))
	assert.True(t, os.IsNotExist(err))

	// Publishing over an existing version is refused.
	staging := layout.StagingPath("again")
	newFixture(2).write(t, staging)
	_, err = layout.Publish(staging, 2)
	assert.Error(t, err)

	require.NoError(t, layout.CleanStaging())
	_, err = os.Stat(filepath.Join(layout.Root, StagingDir))
	assert.True(t, os.IsNotExist(err))
}

func TestLayoutCommit(t *testing.T) {
	layout := NewLayout(t.TempDir())
	f := newFixture(3)
	staging := layout.StagingPath("run-commit")
	f.write(t, staging)

	s, err := Load(context.Background(), staging, f.manifest.Signature())
	require.NoError(t, err)
	require.NoError(t, layout.Commit(s))

	assert.Equal(t, layout.VersionPath(3), s.Dir())
	current, err := layout.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), current)

	reloaded, err := Load(context.Background(), s.Dir(), f.manifest.Signature())
	require.NoError(t, err)
	assert.Equal(t, s.Len(), reloaded.Len())
}

func TestLayoutCorruptCurrent(t *testing.T) {
	layout := NewLayout(t.TempDir())
	require.NoError(t, os.WriteFile(layout.CurrentPath(), []byte("garbage\n"), 0644))

	_, err := layout.Current()
	assert.ErrorIs(t, err, core.ErrCorruptStore)
}

func TestLayoutPrune(t *testing.T) {
	layout := NewLayout(t.TempDir())
	for build := uint64(1); build <= 4; build++ {
		publish(t, layout, build)
	}

	removed, err := layout.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, removed)

	versions, err := layout.Versions()
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4}, versions)

	// The live version survives even when it is not among the newest.
	require.NoError(t, layout.writeCurrent(VersionName(3)))
	publishStagingOnly := func(build uint64) {
		dir := layout.VersionPath(build)
		require.NoError(t, os.MkdirAll(dir, 0755))
	}
	publishStagingOnly(5)
	removed, err = layout.Prune(1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{4}, removed)

	versions, err = layout.Versions()
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 5}, versions)
}

func TestLive(t *testing.T) {
	live := NewLive()
	_, err := live.Current()
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Equal(t, uint64(0), live.Generation())

	first := &Snapshot{manifest: core.Manifest{Build: 1}}
	second := &Snapshot{manifest: core.Manifest{Build: 2}}

	assert.Nil(t, live.Swap(first))
	s, err := live.Current()
	require.NoError(t, err)
	assert.Same(t, first, s)

	assert.Same(t, first, live.Swap(second))
	s, err = live.Current()
	require.NoError(t, err)
	assert.Same(t, second, s)
	assert.Equal(t, uint64(2), live.Generation())

	// A reader holding the old snapshot keeps a consistent view.
	assert.Equal(t, uint64(1), first.Build())
}

func TestLiveSwapIfNewer(t *testing.T) {
	live := NewLive()
	first := &Snapshot{manifest: core.Manifest{Build: 1}}
	second := &Snapshot{manifest: core.Manifest{Build: 2}}

	assert.True(t, live.SwapIfNewer(second))
	assert.False(t, live.SwapIfNewer(first))
	s, err := live.Current()
	require.NoError(t, err)
	assert.Same(t, second, s)
	assert.Equal(t, uint64(1), live.Generation())

	again := &Snapshot{manifest: core.Manifest{Build: 2}}
	assert.True(t, live.SwapIfNewer(again))
	s, err = live.Current()
	require.NoError(t, err)
	assert.Same(t, again, s)
}

func TestRefreshKeepsLaterBuild(t *testing.T) {
	ctx := context.Background()
	layout := NewLayout(t.TempDir())
	live := NewLive()

	// CURRENT still names build 1 while build 2 has already been swapped in
	// by the process that built it.
	publish(t, layout, 1)
	dir := filepath.Join(t.TempDir(), "v2")
	newFixture(2).write(t, dir)
	later, err := Load(ctx, dir, testSignature)
	require.NoError(t, err)
	live.Swap(later)

	swapped, err := Refresh(ctx, layout, live, testSignature)
	require.NoError(t, err)
	assert.False(t, swapped)

	s, err := live.Current()
	require.NoError(t, err)
	assert.Same(t, later, s)
	assert.Equal(t, uint64(2), s.Build())
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	layout := NewLayout(t.TempDir())
	live := NewLive()

	_, err := Refresh(ctx, layout, live, testSignature)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	publish(t, layout, 1)
	swapped, err := Refresh(ctx, layout, live, testSignature)
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = Refresh(ctx, layout, live, testSignature)
	require.NoError(t, err)
	assert.False(t, swapped)

	publish(t, layout, 2)
	swapped, err = Refresh(ctx, layout, live, testSignature)
	require.NoError(t, err)
	assert.True(t, swapped)

	s, err := live.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Build())

	// A version from another embedding space is never swapped in.
	publish(t, layout, 3)
	_, err = Refresh(ctx, layout, live, core.Signature{ModelID: "other", Dimension: 2})
	assert.ErrorIs(t, err, core.ErrSignatureMismatch)
	s, err = live.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Build())
}

func TestOpenCurrent(t *testing.T) {
	layout := NewLayout(t.TempDir())
	_, err := OpenCurrent(context.Background(), layout, testSignature)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	publish(t, layout, 5)
	s, err := OpenCurrent(context.Background(), layout, testSignature)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), s.Build())
	assert.Equal(t, layout.VersionPath(5), s.Dir())
}

func TestIsCurrentEvent(t *testing.T) {
	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"rename into place", "/root/CURRENT", fsnotify.Create, true},
		{"write", "/root/CURRENT", fsnotify.Write, true},
		{"chmod", "/root/CURRENT", fsnotify.Chmod, false},
		{"temp file", "/root/CURRENT.12345", fsnotify.Create, false},
		{"other file", "/root/lineage", fsnotify.Create, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isCurrentEvent(fsnotify.Event{Name: tt.path, Op: tt.op}))
		})
	}
}

func TestWatcherReloadsPublishedVersion(t *testing.T) {
	layout := NewLayout(t.TempDir())
	publish(t, layout, 1)

	live := NewLive()
	_, err := Refresh(context.Background(), layout, live, testSignature)
	require.NoError(t, err)

	reloaded := make(chan uint64, 4)
	w := NewWatcher(layout, live, testSignature,
		WithSettle(10*time.Millisecond),
		WithReloadHook(func(s *Snapshot, err error) {
			if err == nil {
				reloaded <- s.Build()
			}
		}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before publishing.
	time.Sleep(50 * time.Millisecond)
	publish(t, layout, 2)

	select {
	case build := <-reloaded:
		assert.Equal(t, uint64(2), build)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}

	s, err := live.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Build())

	cancel()
	require.NoError(t, <-done)
}
