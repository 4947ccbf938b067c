// execstub.go provides a minimal, goroutine-based stand-in for exec/wait.
// Process creation and scheduling are out of this repository's scope
// (spec.md's Non-goals exclude the scheduler and loader); this stub
// exists only so callers exercising the syscall surface end to end have
// something to call for exec/wait, not as a faithful implementation of
// either.
package syscall

import (
	"sync"

	"duskos/defs"
)

// execResult_t holds one spawned "process"'s outcome.
type execResult_t struct {
	done   chan struct{}
	status int
}

// Exec_t tracks in-flight goroutine-backed child processes, keyed by a
// synthetic pid.
type Exec_t struct {
	mu      sync.Mutex
	nextPid defs.Pid_t
	results map[defs.Pid_t]*execResult_t
}

// MkExec creates an empty exec/wait tracker.
func MkExec() *Exec_t {
	return &Exec_t{results: make(map[defs.Pid_t]*execResult_t), nextPid: 1}
}

// Exec runs body in a new goroutine standing in for a child process and
// returns its synthetic pid immediately.
func (e *Exec_t) Exec(body func() int) defs.Pid_t {
	e.mu.Lock()
	pid := e.nextPid
	e.nextPid++
	res := &execResult_t{done: make(chan struct{})}
	e.results[pid] = res
	e.mu.Unlock()

	go func() {
		res.status = body()
		close(res.done)
	}()
	return pid
}

// Wait blocks until pid's body returns, yielding its status. A second
// Wait on the same pid fails with ECHILD-equivalent EINVAL, since the
// result is consumed on the first call (matching pintos's single-wait
// semantics).
func (e *Exec_t) Wait(pid defs.Pid_t) (int, defs.Err_t) {
	e.mu.Lock()
	res, ok := e.results[pid]
	if ok {
		delete(e.results, pid)
	}
	e.mu.Unlock()
	if !ok {
		return -1, -defs.EINVAL
	}
	<-res.done
	return res.status, 0
}
