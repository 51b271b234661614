// Package corert is the thread-per-core cooperative task runtime
// underlying this repository's distributed key-value store: stackful
// fibers, a work-stealing scheduler, a hierarchical-deadline timer
// manager, an epoll-backed I/O reactor, and a syscall-interception
// bridge that turns blocking socket calls into suspend points.
//
// A Runtime bundles all of that into the external interface the
// storage and consensus layers consume: Spawn/SpawnFiber to submit
// work, AddTimer/AddConditionalTimer for deadlines, Start/Stop for
// lifecycle, and CurrentScheduler/CurrentFiber/SetHookEnable for the
// context accessors consuming code needs.
package corert
