package session

import (
	"sync"

	"golang.org/x/sys/unix"
)

// OrphanSupervisor is the process-wide collaborator that keeps disowned
// background children alive after their owning Session is closed. Its
// lifecycle is init-once (via SharedOrphanSupervisor) plus reap-on-child-exit:
// each adopted child gets its own reaper goroutine that blocks in
// unix.Wait4 until the process exits, the same low-level technique the
// process/FD corpus uses for waiting on a raw PID without os/exec's
// Cmd.Wait bookkeeping.
type OrphanSupervisor struct {
	mu       sync.Mutex
	children map[int]struct{}
}

var (
	sharedOnce       sync.Once
	sharedSupervisor *OrphanSupervisor
)

// SharedOrphanSupervisor returns the process-global supervisor instance.
func SharedOrphanSupervisor() *OrphanSupervisor {
	sharedOnce.Do(func() {
		sharedSupervisor = &OrphanSupervisor{children: map[int]struct{}{}}
	})
	return sharedSupervisor
}

// Adopt hands a child PID to the supervisor, re-parenting its lifecycle
// away from the Session that spawned it. The child keeps running
// (possibly past its owning Session's Close) until it exits naturally, at
// which point the supervisor reaps it to avoid a zombie process.
func (o *OrphanSupervisor) Adopt(pid int) {
	o.mu.Lock()
	o.children[pid] = struct{}{}
	o.mu.Unlock()
	go func() {
		var ws unix.WaitStatus
		unix.Wait4(pid, &ws, 0, nil)
		o.mu.Lock()
		delete(o.children, pid)
		o.mu.Unlock()
	}()
}

// Count reports how many orphaned children are still outstanding; mostly
// useful for tests that want to assert disown actually detached a child.
func (o *OrphanSupervisor) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.children)
}
