// Package syscall implements the user/kernel boundary spec.md §7
// describes: every syscall that touches a user buffer goes through
// copyToUser/copyFromUser, which fault each touched page in through the
// caller's supplemental page table (growing the stack if the fault
// lands in its growth window) and fail the call with EFAULT rather than
// letting a bad pointer reach the file system layer.
//
// Grounded on original_source/src/userprog/syscall.c's argument-
// validation discipline, translated into the teacher's defs.Err_t
// negative-return convention (biscuit/src/fd, biscuit/src/vm).
package syscall

import (
	"duskos/defs"
	"duskos/dir"
	"duskos/frame"
	"duskos/fs"
	"duskos/process"
	"duskos/ustr"
)

// Sys_t is the syscall dispatch surface over one mounted file system.
type Sys_t struct {
	Fs *fs.Fs_t
}

// MkSys creates a syscall surface over fsys.
func MkSys(fsys *fs.Fs_t) *Sys_t {
	return &Sys_t{Fs: fsys}
}

func toErr(err error) defs.Err_t {
	if err == nil {
		return 0
	}
	if e, ok := err.(defs.Err_t); ok {
		return -e
	}
	return -defs.EINVAL
}

func (s *Sys_t) openCwd(p *process.Process_t) (*dir.Dir_t, error) {
	p.Cwd.Lock()
	sector := p.Cwd.Sector
	p.Cwd.Unlock()
	return dir.Open(s.Fs.Inodes, sector)
}

// copyToUser writes data into p's address space starting at uaddr,
// faulting in (and, if necessary, growing the stack into) every page it
// touches.
func copyToUser(p *process.Process_t, uaddr uintptr, data []byte) defs.Err_t {
	remaining := data
	addr := uaddr
	for len(remaining) > 0 {
		vpn := addr / frame.PageSize
		off := int(addr % frame.PageSize)
		frm, err := p.Spt.Fault(vpn, true)
		if err != nil {
			if !process.GrowStack(p, addr, p.Esp) {
				return -defs.EFAULT
			}
			frm, err = p.Spt.Fault(vpn, true)
			if err != nil {
				return -defs.EFAULT
			}
		}
		n := frame.PageSize - off
		if n > len(remaining) {
			n = len(remaining)
		}
		copy(frm.Data[off:off+n], remaining[:n])
		remaining = remaining[n:]
		addr += uintptr(n)
	}
	return 0
}

// copyFromUser reads len(out) bytes from p's address space starting at
// uaddr into out, with the same fault-in discipline as copyToUser.
func copyFromUser(p *process.Process_t, uaddr uintptr, out []byte) defs.Err_t {
	remaining := out
	addr := uaddr
	for len(remaining) > 0 {
		vpn := addr / frame.PageSize
		off := int(addr % frame.PageSize)
		frm, err := p.Spt.Fault(vpn, false)
		if err != nil {
			if !process.GrowStack(p, addr, p.Esp) {
				return -defs.EFAULT
			}
			frm, err = p.Spt.Fault(vpn, false)
			if err != nil {
				return -defs.EFAULT
			}
		}
		n := frame.PageSize - off
		if n > len(remaining) {
			n = len(remaining)
		}
		copy(remaining[:n], frm.Data[off:off+n])
		remaining = remaining[n:]
		addr += uintptr(n)
	}
	return 0
}

// Halt flushes the mounted file system and returns.
func (s *Sys_t) Halt() defs.Err_t {
	if err := s.Fs.Shutdown(); err != nil {
		return -defs.EINVAL
	}
	return 0
}

// Exit tears down every resource p owns.
func (s *Sys_t) Exit(p *process.Process_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	p.Exit(s.Fs.Inodes)
}

// Create makes an empty file named path relative to p's working
// directory.
func (s *Sys_t) Create(p *process.Process_t, path string) defs.Err_t {
	defer p.Accnt.Finish(p.Accnt.Now())
	cwd, err := s.openCwd(p)
	if err != nil {
		return toErr(err)
	}
	defer cwd.Close()
	_, err = s.Fs.Create(cwd, ustr.Ustr(path), false)
	return toErr(err)
}

// Mkdir makes an empty directory named path relative to p's working
// directory (original_source project 4's addition to the syscall
// surface, supplementing the base read/write/create set).
func (s *Sys_t) Mkdir(p *process.Process_t, path string) defs.Err_t {
	defer p.Accnt.Finish(p.Accnt.Now())
	cwd, err := s.openCwd(p)
	if err != nil {
		return toErr(err)
	}
	defer cwd.Close()
	_, err = s.Fs.Create(cwd, ustr.Ustr(path), true)
	return toErr(err)
}

// Remove unlinks path relative to p's working directory.
func (s *Sys_t) Remove(p *process.Process_t, path string) defs.Err_t {
	defer p.Accnt.Finish(p.Accnt.Now())
	cwd, err := s.openCwd(p)
	if err != nil {
		return toErr(err)
	}
	defer cwd.Close()
	return toErr(s.Fs.Remove(cwd, ustr.Ustr(path)))
}

// Open resolves path relative to p's working directory and installs it
// in p's descriptor table, returning the new descriptor number.
func (s *Sys_t) Open(p *process.Process_t, path string) (int, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	cwd, err := s.openCwd(p)
	if err != nil {
		return -1, toErr(err)
	}
	defer cwd.Close()

	ino, isDir, err := s.Fs.Open(cwd, ustr.Ustr(path))
	if err != nil {
		return -1, toErr(err)
	}

	fd := &process.Fd_t{}
	if isDir {
		d, err := dir.Open(s.Fs.Inodes, ino.Sector())
		s.Fs.Inodes.Close(ino)
		if err != nil {
			return -1, toErr(err)
		}
		fd.Dir = d
	} else {
		fd.Ino = ino
	}

	fdnum, err := p.AllocFd(fd)
	if err != nil {
		if fd.Dir != nil {
			fd.Dir.Close()
		} else {
			s.Fs.Inodes.Close(fd.Ino)
		}
		return -1, toErr(err)
	}
	return fdnum, 0
}

// Close releases a descriptor.
func (s *Sys_t) Close(p *process.Process_t, fdnum int) defs.Err_t {
	defer p.Accnt.Finish(p.Accnt.Now())
	fd := p.FreeFd(fdnum)
	if fd == nil {
		return -defs.EBADF
	}
	if fd.Dir != nil {
		fd.Dir.Close()
	} else if fd.Ino != nil {
		s.Fs.Inodes.Close(fd.Ino)
	}
	return 0
}

// Read reads length bytes from fdnum into the caller's address space at
// uaddr, advancing the descriptor's file position.
func (s *Sys_t) Read(p *process.Process_t, fdnum int, uaddr uintptr, length int) (int, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	fd, err := p.GetFd(fdnum)
	if err != nil {
		return -1, toErr(err)
	}
	if fd.Dir != nil {
		return -1, -defs.EISDIR
	}
	buf := make([]byte, length)
	n, rerr := fd.Ino.ReadAt(buf, fd.Pos)
	if rerr != nil {
		return -1, toErr(rerr)
	}
	if e := copyToUser(p, uaddr, buf[:n]); e != 0 {
		return -1, e
	}
	fd.Pos += n
	return n, 0
}

// Write writes length bytes from the caller's address space at uaddr to
// fdnum, advancing the descriptor's file position.
func (s *Sys_t) Write(p *process.Process_t, fdnum int, uaddr uintptr, length int) (int, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	fd, err := p.GetFd(fdnum)
	if err != nil {
		return -1, toErr(err)
	}
	if fd.Dir != nil {
		return -1, -defs.EISDIR
	}
	buf := make([]byte, length)
	if e := copyFromUser(p, uaddr, buf); e != 0 {
		return -1, e
	}
	n, werr := fd.Ino.WriteAt(buf, fd.Pos)
	if werr != nil {
		return -1, toErr(werr)
	}
	fd.Pos += n
	return n, 0
}

// Filesize returns fdnum's current length in bytes.
func (s *Sys_t) Filesize(p *process.Process_t, fdnum int) (int, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	fd, err := p.GetFd(fdnum)
	if err != nil {
		return -1, toErr(err)
	}
	if fd.Dir != nil {
		return -1, -defs.EISDIR
	}
	return int(fd.Ino.Length()), 0
}

// Seek repositions fdnum's file position.
func (s *Sys_t) Seek(p *process.Process_t, fdnum, pos int) defs.Err_t {
	defer p.Accnt.Finish(p.Accnt.Now())
	fd, err := p.GetFd(fdnum)
	if err != nil {
		return toErr(err)
	}
	if pos < 0 {
		return -defs.EINVAL
	}
	fd.Pos = pos
	return 0
}

// Tell returns fdnum's current file position.
func (s *Sys_t) Tell(p *process.Process_t, fdnum int) (int, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	fd, err := p.GetFd(fdnum)
	if err != nil {
		return -1, toErr(err)
	}
	return fd.Pos, 0
}

// Chdir changes p's working directory to path.
func (s *Sys_t) Chdir(p *process.Process_t, path string) defs.Err_t {
	defer p.Accnt.Finish(p.Accnt.Now())
	cwd, err := s.openCwd(p)
	if err != nil {
		return toErr(err)
	}
	sector, isDir, err := dir.Resolve(s.Fs.Inodes, fs.RootSector, cwd, ustr.Ustr(path))
	cwd.Close()
	if err != nil {
		return toErr(err)
	}
	if !isDir {
		return -defs.ENOTDIR
	}
	p.Cwd.Lock()
	p.Cwd.Sector = sector
	p.Cwd.Path = p.Cwd.Fullpath(ustr.Ustr(path))
	p.Cwd.Unlock()
	return 0
}

// Readdir returns the names of all in-use entries of an open directory
// descriptor other than "." and "..", in one slice. No read position is
// kept, so every call returns the whole list.
func (s *Sys_t) Readdir(p *process.Process_t, fdnum int) ([]string, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	fd, err := p.GetFd(fdnum)
	if err != nil {
		return nil, toErr(err)
	}
	if fd.Dir == nil {
		return nil, -defs.ENOTDIR
	}
	names, err := fd.Dir.Readdir()
	if err != nil {
		return nil, toErr(err)
	}
	return names, 0
}

// Isdir reports whether fdnum names a directory.
func (s *Sys_t) Isdir(p *process.Process_t, fdnum int) (bool, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	fd, err := p.GetFd(fdnum)
	if err != nil {
		return false, toErr(err)
	}
	return fd.Dir != nil, 0
}

// Inumber returns fdnum's backing inode sector, used as pintos's stable
// per-file identifier.
func (s *Sys_t) Inumber(p *process.Process_t, fdnum int) (int, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	fd, err := p.GetFd(fdnum)
	if err != nil {
		return -1, toErr(err)
	}
	if fd.Dir != nil {
		return int(fd.Dir.Sector()), 0
	}
	return int(fd.Ino.Sector()), 0
}

// Mmap maps fdnum's entire contents into p's address space starting at
// vpn, returning the mapping id.
func (s *Sys_t) Mmap(p *process.Process_t, fdnum int, vpn uintptr) (int, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	fd, err := p.GetFd(fdnum)
	if err != nil {
		return -1, toErr(err)
	}
	if fd.Dir != nil || fd.Ino == nil {
		return -1, -defs.EINVAL
	}
	length := int(fd.Ino.Length())
	if length == 0 {
		return -1, -defs.EINVAL
	}
	id, err := p.Mmaps.Mmap(fd.Ino, vpn, length)
	if err != nil {
		return -1, -defs.ENOMEM
	}
	return id, 0
}

// Munmap tears down a mapping created by Mmap.
func (s *Sys_t) Munmap(p *process.Process_t, id int) defs.Err_t {
	defer p.Accnt.Finish(p.Accnt.Now())
	if err := p.Mmaps.Munmap(id); err != nil {
		return -defs.EINVAL
	}
	return 0
}
