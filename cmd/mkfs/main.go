// Command mkfs formats a fresh disk image and optionally populates it
// from a host skeleton directory. It replaces the teacher's mkfs.go
// (positional os.Args parsing over ufs.Ufs_t, biscuit's COW-era format)
// with a cobra command over this module's §6 on-disk layout; the
// addfiles/copydata walk below is the same recursive host-to-image copy
// the teacher's mkfs.go performed, adapted to fs.FS_t.Create/WriteiKernel.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nicemissing/xv6/boot"
	"github.com/nicemissing/xv6/fs"
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/ustr"
)

var (
	nblocks  int
	ninodes  int
	skeldir  string
	imageOut string
)

func main() {
	root := &cobra.Command{
		Use:   "mkfs",
		Short: "format a disk image for the kernel's file system",
	}
	root.AddCommand(mkfsCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func mkfsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format <image>",
		Short: "write a fresh superblock, root directory, and optional skeleton files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imageOut = args[0]
			return runMkfs()
		},
	}
	cmd.Flags().IntVar(&nblocks, "nblocks", 40000, "total blocks in the image, including log/inode/bitmap overhead")
	cmd.Flags().IntVar(&ninodes, "ninodes", 200, "number of inodes to provision")
	cmd.Flags().StringVar(&skeldir, "skel", "", "host directory tree to copy into the image root")
	return cmd
}

func runMkfs() error {
	h := spinlock.NewHartState(0)
	layout := boot.ComputeLayout(nblocks, ninodes)
	stk := boot.Format(imageOut, layout, h)

	stk.Log.BeginOp(h)
	root := stk.FS.Ialloc(0, fs.T_DIR, h)
	if root.Inum != fs.ROOTINO {
		klog.Panicf("mkfs", "first ialloc returned inum %d, want %d (%s)", root.Inum, fs.ROOTINO, "fs.ROOTINO")
	}
	stk.FS.Ilock(root, h)
	root.Nlink = 1
	stk.FS.Iupdate(root, h)
	if err := stk.FS.Dirlink(root, ustr.MkUstrDot(), root.Inum, h); err != 0 {
		klog.Panicf("mkfs", "dirlink .: %d", err)
	}
	if err := stk.FS.Dirlink(root, ustr.DotDot, root.Inum, h); err != 0 {
		klog.Panicf("mkfs", "dirlink ..: %d", err)
	}
	stk.FS.Iunlock(root, h)
	stk.Log.EndOp(h)

	klog.For("mkfs").Info("created root directory", "inum", root.Inum)

	if skeldir != "" {
		if err := addfiles(stk, root, h, skeldir); err != nil {
			return err
		}
	}
	fmt.Printf("mkfs: wrote %s (%d blocks, %d inodes)\n", imageOut, nblocks, ninodes)
	return nil
}

// addfiles walks skeldir on the host and replicates its contents into
// the image under root, mirroring the teacher's own addfiles/copydata
// (mkfs/mkfs.go) but driven by fs.FS_t.Create/WriteiKernel instead of
// ufs.Ufs_t.MkDir/MkFile/Append.
func addfiles(stk *boot.Stack, root *fs.Inode_t, h *spinlock.HartState, skeldir string) error {
	return filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, skeldir)
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
		if rel == "" {
			return nil
		}
		dst := ustr.MkUstrRoot().ExtendStr(rel)

		stk.Log.BeginOp(h)
		defer stk.Log.EndOp(h)

		if d.IsDir() {
			ip, ferr := stk.FS.Create(dst, fs.T_DIR, 0, 0, root, root, h)
			if ferr != 0 {
				return fmt.Errorf("mkdir %s: err %d", rel, ferr)
			}
			stk.FS.Iunlock(ip, h)
			return nil
		}

		ip, ferr := stk.FS.Create(dst, fs.T_FILE, 0, 0, root, root, h)
		if ferr != 0 {
			return fmt.Errorf("create %s: err %d", rel, ferr)
		}
		defer stk.FS.Iunlock(ip, h)
		return copydata(stk, ip, h, path)
	})
}

func copydata(stk *boot.Stack, ip *fs.Inode_t, h *spinlock.HartState, src string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	buf := make([]byte, fs.BSIZE)
	off := 0
	for {
		n, rerr := srcFile.Read(buf)
		if rerr != nil && rerr != io.EOF {
			return rerr
		}
		if n > 0 {
			if _, werr := stk.FS.WriteiKernel(ip, buf[:n], off, n, h); werr != 0 {
				return fmt.Errorf("write %s: err %d", src, werr)
			}
			off += n
		}
		if rerr == io.EOF {
			return nil
		}
	}
}
