// Package process glues the other subsystems into the per-process state
// spec.md §6 describes: a working directory, a bounded file descriptor
// table, a supplemental page table, a memory-mapping manager, and
// resource accounting.
//
// Grounded on original_source/src/userprog/process.c for the shape of
// this state, and the teacher's fd.Cwd_t (biscuit/src/fd/fd.go) for the
// working-directory idiom.
package process

import (
	"sync"

	"duskos/accnt"
	"duskos/defs"
	"duskos/dir"
	"duskos/frame"
	"duskos/inode"
	"duskos/mmap"
	"duskos/spt"
	"duskos/swap"
	"duskos/ustr"
)

// MaxFds bounds the number of simultaneously open file descriptors a
// process may hold. Descriptors 0 and 1 are reserved for stdin/stdout
// (spec.md §6: "open(path) -> fd in [2,128)"), so the table itself only
// back fdnum values 2..MaxFds-1.
const MaxFds = 128

// MinFd is the lowest descriptor number Open may hand out.
const MinFd = 2

// Fd_t is one entry in a process's descriptor table: either a regular
// file (Ino set, Dir nil) or an open directory (Dir set).
type Fd_t struct {
	Ino   *inode.Inode_t
	Dir   *dir.Dir_t
	Pos   int
	Perms int
}

// Cwd_t tracks a process's current working directory, mirroring the
// teacher's fd.Cwd_t.
type Cwd_t struct {
	sync.Mutex
	Sector uint32
	Path   ustr.Ustr
}

// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	return cwd.Path.Extend(p)
}

// Process_t is one process's kernel-visible state.
type Process_t struct {
	Pid   defs.Pid_t
	Cwd   *Cwd_t
	Spt   *spt.Table_t
	Mmaps *mmap.Manager_t
	Accnt accnt.Accnt_t

	// StackTop is the first vpn above the initial stack allocation. A
	// fault below StackTop that falls within the stack-growth window
	// (spec.md §4.4: esp-32 <= va && va >= PHYS_BASE-8MiB) and has no
	// supplemental entry yet is a legitimate stack-growth fault rather
	// than a segfault.
	StackTop uintptr

	// Esp is the user stack pointer, the esp side of spec.md §4.4's
	// stack-growth conjunction, consulted by GrowStack. Grounded on
	// pintos's thread_current()->user_esp. MkProcess sets it once, to
	// EspSlack bytes below the top of the stack; nothing updates it at
	// syscall entry, since there is no trap frame to read it from.
	Esp uintptr

	mu  sync.Mutex
	fds [MaxFds]*Fd_t
}

// MaxStackGrowthBytes bounds how far below StackTop a stack-growth
// fault may land, spec.md §4.4's literal 8 MiB ceiling.
const MaxStackGrowthBytes = 8 * 1024 * 1024

// EspSlack is the farthest a faulting address may sit below esp and
// still count as stack growth, covering the x86 PUSHA instruction's
// 32-byte write below the stack pointer (spec.md §4.4).
const EspSlack = 32

// MkProcess creates a process rooted at rootSector with an empty
// descriptor table, drawing physical frames from pool and swap slots
// from sw. stackTop is the first unmapped vpn above the process's
// initial stack page.
func MkProcess(pid defs.Pid_t, rootSector uint32, pool *frame.Pool_t, sw *swap.Swap_t, stackTop uintptr) *Process_t {
	p := &Process_t{
		Pid:      pid,
		Cwd:      &Cwd_t{Sector: rootSector, Path: ustr.MkUstrRoot()},
		StackTop: stackTop,
		Esp:      stackTop*frame.PageSize - EspSlack,
	}
	p.Spt = spt.MkTable(pid, pool, sw)
	p.Mmaps = mmap.MkManager(p.Spt)
	return p
}

// GrowStack installs a fresh zero-filled anonymous page at addr's vpn
// if addr falls within p's stack-growth window relative to esp and
// isn't already mapped, returning whether it did so. addr must be a
// byte address, not a page number: the esp-proximity half of the
// window (spec.md §4.4's esp-32 <= va) only makes sense at byte
// granularity. Grounded on original_source's fault_handler, which
// treats an unmapped fault near the current stack pointer and within
// the stack's 8 MiB ceiling as growth rather than a segfault.
func GrowStack(p *Process_t, addr uintptr, esp uintptr) bool {
	top := p.StackTop * frame.PageSize
	if addr >= top || addr+MaxStackGrowthBytes < top {
		return false
	}
	if addr+EspSlack < esp {
		return false
	}
	vpn := addr / frame.PageSize
	if _, ok := p.Spt.Find(vpn); ok {
		return false
	}
	err := p.Spt.Insert(&spt.Entry_t{Vpn: vpn, Kind: spt.Anon, Writable: true})
	return err == nil
}

// AllocFd installs fd in the first free slot at or above MinFd and
// returns its number.
func (p *Process_t) AllocFd(fd *Fd_t) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := MinFd; i < MaxFds; i++ {
		if p.fds[i] == nil {
			p.fds[i] = fd
			return i, nil
		}
	}
	return -1, defs.ENOMEM
}

// GetFd returns the descriptor at fdnum.
func (p *Process_t) GetFd(fdnum int) (*Fd_t, error) {
	if fdnum < MinFd || fdnum >= MaxFds {
		return nil, defs.EBADF
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.fds[fdnum]
	if fd == nil {
		return nil, defs.EBADF
	}
	return fd, nil
}

// FreeFd clears fdnum's slot and returns the descriptor that occupied
// it, or nil if it was already empty.
func (p *Process_t) FreeFd(fdnum int) *Fd_t {
	if fdnum < MinFd || fdnum >= MaxFds {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.fds[fdnum]
	p.fds[fdnum] = nil
	return fd
}

// Exit tears down every resource p owns: live mappings, the
// supplemental page table, and any still-open descriptors. itab is the
// open-inode table descriptors must be closed through.
func (p *Process_t) Exit(itab *inode.Table_t) {
	p.Mmaps.DestroyAll()
	p.Spt.Destroy()

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, fd := range p.fds {
		if fd == nil {
			continue
		}
		if fd.Dir != nil {
			fd.Dir.Close()
		} else if fd.Ino != nil {
			itab.Close(fd.Ino)
		}
		p.fds[i] = nil
	}
}
