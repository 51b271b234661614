package sched

import (
	"sync"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/gid"
)

// currentCtx tracks, per goroutine, which threadContext (if any) that
// goroutine is the designated owner of. Every participating thread's
// run loop binds itself here before entering the loop, mirroring the
// same goroutine-id-keyed-map substitute for TLS used throughout this
// module (see internal/gid and internal/fiber/tls.go).
var (
	ctxMu      sync.RWMutex
	currentCtx = make(map[uint64]*threadContext, 16)
)

func bindCurrentContext(ctx *threadContext) {
	g := gid.Current()
	ctxMu.Lock()
	currentCtx[g] = ctx
	ctxMu.Unlock()
}

func unbindCurrentContext() {
	g := gid.Current()
	ctxMu.Lock()
	delete(currentCtx, g)
	ctxMu.Unlock()
}

func (sc *Scheduler) isCurrentContext(ctx *threadContext) bool {
	g := gid.Current()
	ctxMu.RLock()
	c := currentCtx[g]
	ctxMu.RUnlock()
	return c == ctx
}
