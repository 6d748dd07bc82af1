package proc

import (
	"debug/elf"
	"io"

	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/fs"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/ustr"
	"github.com/nicemissing/xv6/vm"
)

// inodeReaderAt adapts an inode to the io.ReaderAt debug/elf parses
// against. Parsing a kernel-loaded binary's ELF headers with the
// standard library rather than a hand-rolled reader is the same choice
// iansmith-mazarin, gokvm, and tinyrange-cc all make; see DESIGN.md.
type inodeReaderAt struct {
	fsys *fs.FS_t
	ip   *fs.Inode_t
	h    *spinlock.HartState
}

func (r *inodeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.fsys.ReadiKernel(r.ip, p, int(off), len(p), r.h)
	if err != 0 {
		return n, io.ErrUnexpectedEOF
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func pgroundup(n int) int { return (n + riscv.PGSIZE - 1) &^ (riscv.PGSIZE - 1) }

// stackPages is the number of usable user stack pages below the one
// unmapped guard page exec always installs beneath them (§4.9 exec).
const stackPages = 1

// Exec replaces p's address space with a freshly loaded ELF image
// (§4.9 exec). It builds the new image -- segments, stack, argv -- in a
// scratch address space first and only swaps it into p once every step
// has succeeded, so a failing exec leaves p's current image (and
// exit status) untouched, matching xv6's own exec() structure.
func (t *Table_t) Exec(p *Proc_t, path ustr.Ustr, argv []string, root, cwd *fs.Inode_t, h *spinlock.HartState) defs.Err_t {
	t.FS.Log.BeginOp(h)
	defer t.FS.Log.EndOp(h)

	ip, nerr := t.FS.Namex(path, false, nil, root, cwd, h)
	if nerr != 0 {
		return nerr
	}
	t.FS.Ilock(ip, h)
	defer t.FS.IputLocked(ip, h)

	if ip.Typ != fs.T_FILE {
		return -defs.EINVAL
	}

	f, ferr := elf.NewFile(&inodeReaderAt{t.FS, ip, h})
	if ferr != nil {
		return -defs.EINVAL
	}

	as := vm.MkAddrSpace(t.Alloc, h)
	if as == nil {
		return -defs.ENOMEM
	}
	as.Killed = &p.Killed

	sz := 0
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		perm := uint64(riscv.PTE_R)
		if prog.Flags&elf.PF_W != 0 {
			perm |= riscv.PTE_W
		}
		if prog.Flags&elf.PF_X != 0 {
			perm |= riscv.PTE_X
		}
		segEnd := int(prog.Vaddr + prog.Memsz)
		newsz, aerr := as.UvmAlloc(sz, segEnd, perm, h)
		if aerr != 0 {
			as.Uvmfree(h)
			return -defs.ENOMEM
		}
		sz = newsz

		buf := make([]byte, prog.Filesz)
		if _, rerr := io.ReadFull(prog.Open(), buf); rerr != nil && rerr != io.EOF {
			as.Uvmfree(h)
			return -defs.EINVAL
		}
		if cerr := as.CopyOut(prog.Vaddr, buf, h); cerr != 0 {
			as.Uvmfree(h)
			return cerr
		}
	}

	sz = pgroundup(sz)
	sz, aerr := as.UvmAlloc(sz, sz+(stackPages+1)*riscv.PGSIZE, riscv.PTE_W, h)
	if aerr != 0 {
		as.Uvmfree(h)
		return -defs.ENOMEM
	}
	guard := uint64(sz - (stackPages+1)*riscv.PGSIZE)
	as.UvmClear(guard, h)
	stackbase := guard + riscv.PGSIZE
	sp := uint64(sz)

	var ustack []uint64
	for _, a := range argv {
		b := append([]byte(a), 0)
		sp -= uint64(len(b))
		sp -= sp % 16
		if sp < stackbase {
			as.Uvmfree(h)
			return -defs.ENOMEM
		}
		if cerr := as.CopyOut(sp, b, h); cerr != 0 {
			as.Uvmfree(h)
			return cerr
		}
		ustack = append(ustack, sp)
	}
	ustack = append(ustack, 0)

	sp -= uint64(len(ustack)) * 8
	sp -= sp % 16
	if sp < stackbase {
		as.Uvmfree(h)
		return -defs.ENOMEM
	}
	argvBuf := make([]byte, len(ustack)*8)
	for i, v := range ustack {
		for b := 0; b < 8; b++ {
			argvBuf[i*8+b] = byte(v >> (8 * b))
		}
	}
	if cerr := as.CopyOut(sp, argvBuf, h); cerr != 0 {
		as.Uvmfree(h)
		return cerr
	}
	argvAddr := sp

	if !vm.MapPages(t.Alloc, as.Root, riscv.TRAPFRAME, riscv.PGSIZE, p.TrapframePa, riscvPTE_RW(), h) {
		as.Uvmfree(h)
		return -defs.ENOMEM
	}

	oldAs := p.As
	p.As = as
	p.Sz = sz
	p.Trapframe.Epc = f.Entry
	p.Trapframe.Sp = sp
	p.Trapframe.A0 = uint64(len(argv))
	p.Trapframe.A1 = argvAddr
	p.Name = path.String()

	// oldAs still has TRAPFRAME mapped to the same physical frame just
	// reinstalled above; unmap it there without freeing before tearing
	// the rest of the old image down, so the frame survives the swap.
	vm.UnmapPages(t.Alloc, oldAs.Root, riscv.TRAPFRAME, 1, false, h)
	oldAs.Uvmfree(h)
	return 0
}
