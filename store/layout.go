package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/answerbank/core"
)

// Directory and file names under a corpus root.
const (
	CurrentFile = "CURRENT"
	LineageDir  = "lineage"
	VersionsDir = "versions"
	StagingDir  = "staging"
)

// Layout locates the parts of a corpus root on disk:
//
//	<root>/CURRENT            name of the live version ("v00000007")
//	<root>/lineage/           build counter and record ID assignments
//	<root>/versions/v%08d/    one immutable store per build
//	<root>/staging/<run>/     in-progress build output
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// CurrentPath returns the path of the CURRENT pointer file.
func (l Layout) CurrentPath() string {
	return filepath.Join(l.Root, CurrentFile)
}

// LineagePath returns the lineage database directory.
func (l Layout) LineagePath() string {
	return filepath.Join(l.Root, LineageDir)
}

// VersionName returns the directory name for a build.
func VersionName(build uint64) string {
	return fmt.Sprintf("v%08d", build)
}

// ParseVersionName returns the build number encoded in a version directory name.
func ParseVersionName(name string) (uint64, error) {
	digits, ok := strings.CutPrefix(name, "v")
	if !ok || digits == "" {
		return 0, fmt.Errorf("invalid version name %q", name)
	}
	return strconv.ParseUint(digits, 10, 64)
}

// VersionPath returns the directory of a build.
func (l Layout) VersionPath(build uint64) string {
	return filepath.Join(l.Root, VersionsDir, VersionName(build))
}

// StagingPath returns the staging directory of a build run.
func (l Layout) StagingPath(runID string) string {
	return filepath.Join(l.Root, StagingDir, runID)
}

// Current returns the build number CURRENT points at.
// Returns core.ErrStoreUnavailable if no version has been published.
func (l Layout) Current() (uint64, error) {
	data, err := os.ReadFile(l.CurrentPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: no published version in %s", core.ErrStoreUnavailable, l.Root)
		}
		return 0, err
	}
	build, err := ParseVersionName(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", core.ErrCorruptStore, CurrentFile, err)
	}
	return build, nil
}

// Publish moves a completed staging directory into versions/ and atomically
// points CURRENT at it. Readers see either the old version or the new one.
func (l Layout) Publish(staging string, build uint64) (string, error) {
	target := l.VersionPath(build)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("version %s already exists", VersionName(build))
	}
	if err := os.Rename(staging, target); err != nil {
		return "", err
	}
	if err := l.writeCurrent(VersionName(build)); err != nil {
		return "", err
	}
	return target, nil
}

// Commit publishes the staging directory s was loaded from as build
// s.Build(). s must not have been shared yet; its Dir is updated to the
// published location.
func (l Layout) Commit(s *Snapshot) error {
	target, err := l.Publish(s.dir, s.Build())
	if err != nil {
		return err
	}
	s.dir = target
	return nil
}

// writeCurrent replaces CURRENT via write-to-temp and rename.
func (l Layout) writeCurrent(name string) error {
	tmp, err := os.CreateTemp(l.Root, CurrentFile+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(name + "\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), l.CurrentPath()); err != nil {
		return err
	}
	return syncDir(l.Root)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Versions returns the published build numbers in ascending order.
func (l Layout) Versions() ([]uint64, error) {
	entries, err := os.ReadDir(filepath.Join(l.Root, VersionsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var builds []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if build, err := ParseVersionName(e.Name()); err == nil {
			builds = append(builds, build)
		}
	}
	slices.Sort(builds)
	return builds, nil
}

// Prune removes all but the newest keep versions. The current version is
// never removed. Returns the removed build numbers.
func (l Layout) Prune(keep int) ([]uint64, error) {
	builds, err := l.Versions()
	if err != nil {
		return nil, err
	}
	current, err := l.Current()
	if err != nil && !errors.Is(err, core.ErrStoreUnavailable) {
		return nil, err
	}

	keep = max(keep, 1)
	if len(builds) <= keep {
		return nil, nil
	}
	var removed []uint64
	var errs []error
	for _, build := range builds[:len(builds)-keep] {
		if build == current {
			continue
		}
		if err := os.RemoveAll(l.VersionPath(build)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, build)
	}
	return removed, errors.Join(errs...)
}

// CleanStaging removes leftover staging directories, for example after a crash.
func (l Layout) CleanStaging() error {
	return os.RemoveAll(filepath.Join(l.Root, StagingDir))
}
