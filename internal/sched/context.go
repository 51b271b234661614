package sched

import (
	"sync"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/fiber"
)

// Task is the scheduler's discriminated work record: either a fiber
// handle (Fiber != nil) or a raw callback dispatched on a worker's
// reusable callback fiber, plus an optional pinned target thread index
// (-1 meaning "any").
type Task struct {
	Fiber  *fiber.Fiber
	Cb     func()
	Target int
}

// threadContext is the scheduler's per-thread state: a private deque
// only its owning thread ever touches (no lock), and a public deque
// any thread may push to, the owner pops from the front of, and
// thieves pop from the back of.
type threadContext struct {
	idx int

	private []Task

	publicMu sync.Mutex
	public   []Task

	cbFiber *fiber.Fiber // reusable callback-dispatch fiber, lazily allocated
}

func newThreadContext(idx int) *threadContext {
	return &threadContext{idx: idx}
}

func (c *threadContext) pushPrivate(t Task) {
	c.private = append(c.private, t)
}

func (c *threadContext) popPrivateFront() (Task, bool) {
	if len(c.private) == 0 {
		return Task{}, false
	}
	t := c.private[0]
	c.private = c.private[1:]
	if len(c.private) == 0 {
		c.private = nil // let the backing array go, matching a deque that drains to empty
	}
	return t, true
}

func (c *threadContext) pushPublic(t Task) {
	c.publicMu.Lock()
	c.public = append(c.public, t)
	c.publicMu.Unlock()
}

func (c *threadContext) popPublicFront() (Task, bool) {
	c.publicMu.Lock()
	defer c.publicMu.Unlock()
	if len(c.public) == 0 {
		return Task{}, false
	}
	t := c.public[0]
	c.public = c.public[1:]
	return t, true
}

// stealFromBack pops the most-recently-pushed unpinned task from the
// back of the public deque. Pinned tasks (Target != -1) are skipped in
// place and never stolen.
func (c *threadContext) stealFromBack() (Task, bool) {
	c.publicMu.Lock()
	defer c.publicMu.Unlock()
	for i := len(c.public) - 1; i >= 0; i-- {
		if c.public[i].Target != -1 {
			continue
		}
		t := c.public[i]
		c.public = append(c.public[:i], c.public[i+1:]...)
		return t, true
	}
	return Task{}, false
}

func (c *threadContext) publicLen() int {
	c.publicMu.Lock()
	defer c.publicMu.Unlock()
	return len(c.public)
}
