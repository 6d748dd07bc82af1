package syscall

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/file"
	"github.com/nicemissing/xv6/fs"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/stat"
)

// sysOpen resolves or creates path depending on O_CREAT and wires the
// resulting inode into a fresh file-table entry and descriptor (§4.10
// open).
func sysOpen(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	path, err := argStr(p, 0, h)
	if err != 0 {
		return badReturn, err
	}
	omode := argInt(p, 1)
	root, cwd := s.rootAndCwd(p)

	s.FS.Log.BeginOp(h)
	defer s.FS.Log.EndOp(h)

	var ip *fs.Inode_t
	if omode&defs.O_CREAT != 0 {
		ip, err = s.FS.Create(path, fs.T_FILE, 0, 0, root, cwd, h)
		if err != 0 {
			return badReturn, err
		}
	} else {
		ip, err = s.FS.Namex(path, false, nil, root, cwd, h)
		if err != 0 {
			return badReturn, err
		}
		s.FS.Ilock(ip, h)
		if ip.Typ == fs.T_DIR && omode != defs.O_RDONLY {
			s.FS.IputLocked(ip, h)
			return badReturn, -defs.EISDIR
		}
	}

	readable := omode&defs.O_WRONLY == 0
	writable := omode&(defs.O_WRONLY|defs.O_RDWR) != 0
	appendf := omode&defs.O_APPEND != 0

	var f *file.File_t
	if ip.Typ == fs.T_DEV {
		f = file.MkDeviceFile(s.Files, ip, ip.Major, readable, writable, h)
	} else {
		f = file.MkInodeFile(s.Files, s.FS, ip, readable, writable, appendf, h)
	}
	if f == nil {
		s.FS.IputLocked(ip, h)
		return badReturn, -defs.ENFILE
	}
	fd, ferr := fdAlloc(p, f)
	if ferr != 0 {
		f.Close(h)
		return badReturn, ferr
	}
	s.FS.Iunlock(ip, h)
	return uint64(fd), 0
}

func sysClose(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	fd, f, err := argFd(p, 0)
	if err != 0 {
		return badReturn, err
	}
	p.Ofile[fd] = nil
	f.Close(h)
	return 0, 0
}

func sysRead(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	_, f, err := argFd(p, 0)
	if err != 0 {
		return badReturn, err
	}
	dstva := argRaw(p, 1)
	n := argInt(p, 2)
	got, rerr := f.Read(p.As, dstva, n, h)
	if rerr != 0 {
		return badReturn, rerr
	}
	return uint64(got), 0
}

func sysWrite(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	_, f, err := argFd(p, 0)
	if err != 0 {
		return badReturn, err
	}
	srcva := argRaw(p, 1)
	n := argInt(p, 2)
	got, werr := f.Write(p.As, srcva, n, h)
	if werr != 0 {
		return badReturn, werr
	}
	return uint64(got), 0
}

func sysDup(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	_, f, err := argFd(p, 0)
	if err != 0 {
		return badReturn, err
	}
	fd, ferr := fdAlloc(p, f)
	if ferr != 0 {
		return badReturn, ferr
	}
	f.Reopen(h)
	return uint64(fd), 0
}

func sysFstat(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	_, f, err := argFd(p, 0)
	if err != 0 {
		return badReturn, err
	}
	addr := argRaw(p, 1)
	var st stat.Stat_t
	if serr := f.Fstat(&st, h); serr != 0 {
		return badReturn, serr
	}
	if cerr := p.As.CopyOut(addr, st.Bytes(), h); cerr != 0 {
		return badReturn, cerr
	}
	return 0, 0
}

func sysLink(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	oldp, err := argStr(p, 0, h)
	if err != 0 {
		return badReturn, err
	}
	newp, err := argStr(p, 1, h)
	if err != 0 {
		return badReturn, err
	}
	root, cwd := s.rootAndCwd(p)
	s.FS.Log.BeginOp(h)
	defer s.FS.Log.EndOp(h)
	if lerr := s.FS.Link(oldp, newp, root, cwd, h); lerr != 0 {
		return badReturn, lerr
	}
	return 0, 0
}

func sysUnlink(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	path, err := argStr(p, 0, h)
	if err != 0 {
		return badReturn, err
	}
	root, cwd := s.rootAndCwd(p)
	s.FS.Log.BeginOp(h)
	defer s.FS.Log.EndOp(h)
	if uerr := s.FS.Unlink(path, root, cwd, h); uerr != 0 {
		return badReturn, uerr
	}
	return 0, 0
}

func sysMkdir(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	path, err := argStr(p, 0, h)
	if err != 0 {
		return badReturn, err
	}
	root, cwd := s.rootAndCwd(p)
	s.FS.Log.BeginOp(h)
	defer s.FS.Log.EndOp(h)
	ip, cerr := s.FS.Create(path, fs.T_DIR, 0, 0, root, cwd, h)
	if cerr != 0 {
		return badReturn, cerr
	}
	s.FS.IputLocked(ip, h)
	return 0, 0
}

func sysChdir(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	path, err := argStr(p, 0, h)
	if err != 0 {
		return badReturn, err
	}
	root, cwd := s.rootAndCwd(p)
	ip, nerr := s.FS.Namex(path, false, nil, root, cwd, h)
	if nerr != 0 {
		return badReturn, nerr
	}
	s.FS.Ilock(ip, h)
	if ip.Typ != fs.T_DIR {
		s.FS.IputLocked(ip, h)
		return badReturn, -defs.ENOTDIR
	}
	s.FS.Iunlock(ip, h)

	p.Cwd.Lock()
	old := p.Cwd.Fd
	p.Cwd.Fd = file.MkInodeFile(s.Files, s.FS, ip, true, false, false, h)
	p.Cwd.Path = p.Cwd.Canonicalpath(path)
	p.Cwd.Unlock()
	if old != nil {
		old.Close(h)
	}
	return 0, 0
}

// sysPipe allocates a pipe and installs both ends into the lowest two
// free descriptors, writing their numbers back to the two-int array at
// the user address given in a0 (§4.10 pipe).
func sysPipe(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	addr := argRaw(p, 0)
	pipe := file.MkPipe(s.Procs.Sched)
	if pipe == nil {
		return badReturn, -defs.ENFILE
	}
	rf := file.MkPipeFile(s.Files, pipe, false, h)
	wf := file.MkPipeFile(s.Files, pipe, true, h)
	if rf == nil || wf == nil {
		return badReturn, -defs.ENFILE
	}
	rfd, err := fdAlloc(p, rf)
	if err != 0 {
		rf.Close(h)
		wf.Close(h)
		return badReturn, err
	}
	wfd, err := fdAlloc(p, wf)
	if err != 0 {
		p.Ofile[rfd] = nil
		rf.Close(h)
		wf.Close(h)
		return badReturn, err
	}
	var buf [8]byte
	buf[0], buf[4] = byte(rfd), byte(wfd)
	if cerr := p.As.CopyOut(addr, buf[:], h); cerr != 0 {
		return badReturn, cerr
	}
	return 0, 0
}
