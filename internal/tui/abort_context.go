package tui

import (
	"context"
	"sync"
)

var (
	abortMu  sync.RWMutex
	abortCtx context.Context
)

// SetAbortContext registers the run context. A Screen that is running when
// it is cancelled (SIGINT/SIGTERM) is stopped.
func SetAbortContext(ctx context.Context) {
	abortMu.Lock()
	abortCtx = ctx
	abortMu.Unlock()
}

// watchAbort arranges for stop to run when the registered context is
// cancelled. The returned release detaches the watch; it reports false when
// stop already ran.
func watchAbort(stop func()) (release func() bool) {
	abortMu.RLock()
	ctx := abortCtx
	abortMu.RUnlock()
	if ctx == nil {
		return func() bool { return true }
	}
	return context.AfterFunc(ctx, stop)
}
