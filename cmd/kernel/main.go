// Command kernel boots the host-simulated kernel over a disk image
// produced by cmd/mkfs, and offers an fsck-style consistency report.
// Neither subcommand exists in the teacher, which has no single
// "boot the kernel" entry point separate from its own runtime-patched
// main (see DESIGN.md); both are built directly from §2's dependency
// order and §4.9's forkret sequence, fronted by cobra the way
// arctir-proctor fronts its own subcommands (§1a CLI front end).
package main

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nicemissing/xv6/boot"
	"github.com/nicemissing/xv6/clock"
	"github.com/nicemissing/xv6/file"
	"github.com/nicemissing/xv6/fs"
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/syscall"
	"github.com/nicemissing/xv6/trap"
)

func main() {
	root := &cobra.Command{
		Use:   "kernel",
		Short: "boot the host-simulated kernel over a disk image",
	}
	root.AddCommand(bootCmd(), fsckCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func bootCmd() *cobra.Command {
	var image string
	var nblocks int
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "wire up the core subsystems over an image and run the init process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(image, nblocks)
		},
	}
	cmd.Flags().StringVar(&image, "image", "xv6.img", "path to a disk image produced by mkfs")
	cmd.Flags().IntVar(&nblocks, "nblocks", 40000, "block count of the image (must match how it was formatted)")
	return cmd
}

// runBoot assembles the full core (§2 dependency order) and runs
// §4.9's forkret-equivalent sequence: allocate the first process,
// root it at the file system's root inode, and mark it RUNNABLE.
// User-space binaries (init, sh, ...) are out of this spec's scope
// (§1 Non-goals), so there is no ELF to exec into; the scheduler is
// not run here. The boot sequence instead reports the wiring by
// printing the process table, in place of an init program that would
// otherwise never return.
func runBoot(image string, nblocks int) error {
	h := spinlock.NewHartState(0)
	log := klog.For("kernel")

	stk := boot.Open(image, nblocks, h)
	if n := stk.FS.RecoverOrphans(h); n > 0 {
		log.Info("reclaimed orphan inodes", "count", n)
	}
	files := file.MkTable()
	file.SetTable(files)
	procs := proc.MkTable(stk.FS, files, stk.Alloc)
	ticks := clock.MkTicks()

	plic := trap.MkPlic()
	plic.Register(riscv.VIRTIO_IRQ, func(h *spinlock.HartState) {
		stk.Disk.Isr(h)
	})
	sys := &syscall.Sys_t{Procs: procs, Files: files, FS: stk.FS, Ticks: ticks}
	dispatcher := trap.MkDispatcher(sys, procs, ticks, plic)
	_ = dispatcher

	root := stk.FS.Iget(0, fs.ROOTINO, h)
	stk.FS.Ilock(root, h)
	stk.FS.Iunlock(root, h)
	sys.Root = root

	init := procs.Allocproc(h)
	if init == nil {
		return fmt.Errorf("boot: process table exhausted before init")
	}
	init.Name = "init"
	init.Cwd = file.MkRootCwd(nil)
	procs.Init = init
	init.State = proc.RUNNABLE

	log.Info("core wired", "image", image, "ninodes", stk.Super.Ninodes(), "nblocks", stk.Super.Nblocks())
	dumpProcTable(procs, h)
	return nil
}

func dumpProcTable(procs *proc.Table_t, h *spinlock.HartState) {
	snap := procs.Snapshot(h)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"PID", "STATE", "NAME"})
	for _, p := range snap {
		table.Append([]string{fmt.Sprint(p.Pid), p.State.String(), p.Name})
	}
	table.Render()
}

func fsckCmd() *cobra.Command {
	var image string
	var nblocks int
	cmd := &cobra.Command{
		Use:   "fsck",
		Short: "validate block-bitmap consistency and print a superblock/usage report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFsck(image, nblocks)
		},
	}
	cmd.Flags().StringVar(&image, "image", "xv6.img", "path to a disk image produced by mkfs")
	cmd.Flags().IntVar(&nblocks, "nblocks", 40000, "block count of the image (must match how it was formatted)")
	return cmd
}

// runFsck is this module's supplement to the teacher's build-only mkfs
// (§1a: "the new fsck subcommand, which the teacher's build-only mkfs
// never needed"): it walks the root directory tree counting blocks
// reachable from a live inode and compares the count against the
// bitmap's own popcount, the same orphan-detection idea fs.RecoverOrphans
// already applies at boot, run here as an offline read-only report
// instead of a crash-recovery step.
func runFsck(image string, nblocks int) error {
	h := spinlock.NewHartState(0)
	stk := boot.Open(image, nblocks, h)

	fmt.Println("superblock:")
	fmt.Println(spew.Sdump(struct {
		Magic, Size, Nblocks, Ninodes, Nlog, Logstart, Inodestart, Bmapstart int
	}{
		stk.Super.Magic(), stk.Super.Size(), stk.Super.Nblocks(), stk.Super.Ninodes(),
		stk.Super.Nlog(), stk.Super.Logstart(), stk.Super.Inodestart(), stk.Super.Bmapstart(),
	}))

	reachable := walkReachable(stk, h)
	used := bitmapPopcount(stk, h)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"metric", "count"})
	table.Append([]string{"blocks reachable from root", fmt.Sprint(reachable)})
	table.Append([]string{"blocks marked used in bitmap", fmt.Sprint(used)})
	table.Render()

	if reachable > used {
		return fmt.Errorf("fsck: %d blocks reachable but not marked used -- corrupt bitmap", reachable-used)
	}
	if reachable < used {
		fmt.Printf("fsck: %d blocks marked used but unreachable (recoverable via fs.RecoverOrphans)\n", used-reachable)
	}
	return nil
}

// walkReachable counts direct+indirect data blocks owned by every inode
// reachable from the root directory, a read-only pass over the same
// dinode Addrs array fs.Bmap/itrunc walk.
func walkReachable(stk *boot.Stack, h *spinlock.HartState) int {
	seen := map[int]bool{}
	var walk func(inum int)
	count := 0
	walk = func(inum int) {
		if seen[inum] {
			return
		}
		seen[inum] = true
		ip := stk.FS.Iget(0, inum, h)
		stk.FS.Ilock(ip, h)
		sz := int(stk.FS.Isize(ip))
		for _, a := range ip.Addrs[:fs.NDIRECT] {
			if a != 0 {
				count++
			}
		}
		if ind := ip.Addrs[fs.NDIRECT]; ind != 0 {
			count++
			b := stk.Cache.Bread(0, int(ind), h)
			for i := 0; i < fs.NINDIRECT; i++ {
				if b.Data[4*i]|b.Data[4*i+1]|b.Data[4*i+2]|b.Data[4*i+3] != 0 {
					count++
				}
			}
			stk.Cache.Brelse(b, h)
		}
		if ip.Typ == fs.T_DIR {
			var de struct {
				Inum uint16
				Name [fs.DIRSIZ]byte
			}
			buf := make([]byte, fs.DirentSize)
			for off := 0; off+fs.DirentSize <= sz; off += fs.DirentSize {
				n, err := stk.FS.ReadiKernel(ip, buf, off, fs.DirentSize, h)
				if err != 0 || n != fs.DirentSize {
					break
				}
				de.Inum = uint16(buf[0]) | uint16(buf[1])<<8
				if de.Inum == 0 || int(de.Inum) == inum {
					continue
				}
				walk(int(de.Inum))
			}
		}
		stk.FS.Iunlock(ip, h)
	}
	walk(fs.ROOTINO)
	return count
}

func bitmapPopcount(stk *boot.Stack, h *spinlock.HartState) int {
	nblocks := stk.Super.Size()
	n := 0
	for base := 0; base < nblocks; base += fs.BPB {
		bn := stk.Super.BblockOf(base)
		b := stk.Cache.Bread(0, bn, h)
		for bi := 0; bi < fs.BPB && base+bi < nblocks; bi++ {
			byteOff := bi / 8
			m := byte(1) << (uint(bi) % 8)
			if b.Data[byteOff]&m != 0 {
				n++
			}
		}
		stk.Cache.Brelse(b, h)
	}
	return n
}
