package store

import (
	"context"
	"errors"

	"github.com/poiesic/answerbank/core"
)

// OpenCurrent loads the version CURRENT points at.
// Returns core.ErrStoreUnavailable if nothing has been published yet.
func OpenCurrent(ctx context.Context, layout Layout, expected core.Signature, opts ...LoadOption) (*Snapshot, error) {
	build, err := layout.Current()
	if err != nil {
		return nil, err
	}
	return Load(ctx, layout.VersionPath(build), expected, opts...)
}

// Refresh loads CURRENT into live if it names a later build than the
// published snapshot. Reports whether a swap happened. A build published
// into live while CURRENT was loading is never replaced by an older one.
func Refresh(ctx context.Context, layout Layout, live *Live, expected core.Signature, opts ...LoadOption) (bool, error) {
	build, err := layout.Current()
	if err != nil {
		return false, err
	}
	if s, err := live.Current(); err == nil && s.Build() >= build {
		return false, nil
	} else if err != nil && !errors.Is(err, core.ErrStoreUnavailable) {
		return false, err
	}
	snapshot, err := Load(ctx, layout.VersionPath(build), expected, opts...)
	if err != nil {
		return false, err
	}
	return live.SwapIfNewer(snapshot), nil
}
