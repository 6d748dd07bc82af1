package fs

import "unsafe"

// BSIZE is the size of a disk block in bytes (§6 Glossary: "Block"),
// matching bio.BSIZE; fs keeps its own copy rather than importing bio
// for a single constant used throughout on-disk layout arithmetic.
const BSIZE = 1024

// Inode type tags stored in a dinode's Type field (§3 Inodes on disk).
// Numbered to match defs.T_DIR/T_FILE/T_DEV so a cached inode's Typ can
// be compared directly against the stat/open-flags constants.
const (
	T_FREE = 0
	T_DIR  = 1
	T_FILE = 2
	T_DEV  = 3
)

// ROOTINO is the inode number of the root directory (xv6-riscv's
// param.h ROOTINO). Ialloc scans starting at inum 1, so cmd/mkfs's very
// first allocation on a freshly formatted image claims this number by
// construction; it is named here so cmd/mkfs and cmd/kernel's boot path
// agree on it without either hardcoding a bare 1.
const ROOTINO = 1

// NDIRECT/NINDIRECT/MAXFILE follow §6: "NDIRECT = 12, one indirect block
// holds 256 pointers, so MAXFILE = 268 blocks."
const (
	NDIRECT   = 12
	NINDIRECT = BSIZE / 4
	MAXFILE   = NDIRECT + NINDIRECT
)

// rawDinode mirrors §6's fixed on-disk record exactly --
// {type:i16, major:i16, minor:i16, nlink:i16, size:u32, addrs:u32[NDIRECT+1]}
// -- with no struct padding, since four i16 fields (8 bytes) are followed
// by u32-aligned fields. DinodeSize is computed from it rather than
// hardcoded so the two can never drift apart.
type rawDinode struct {
	Typ   int16
	Major int16
	Minor int16
	Nlink int16
	Size  uint32
	Addrs [NDIRECT + 1]uint32
}

const DinodeSize = int(unsafe.Sizeof(rawDinode{}))

// IPB is the number of dinodes packed into one block (§3 "Inodes are
// packed into inode blocks").
const IPB = BSIZE / DinodeSize

// dinodeAt overlays a rawDinode onto the dinode for inum within a raw
// inode-block buffer (§4.6: inode i occupies a fixed byte range of its
// containing block). This is the teacher's unsafe-pointer-overlay idiom
// (stat.Stat_t.Bytes, in reverse), not encoding/binary, matching §1b's
// domain-stack decision to keep on-disk layouts hand-rolled.
func dinodeAt(block []byte, inum int) *rawDinode {
	off := IoffsetOf(inum)
	return (*rawDinode)(unsafe.Pointer(&block[off]))
}

// BPB is the number of bits (one per data block) tracked by one bitmap
// block (§4.6 Block bitmap).
const BPB = BSIZE * 8

// DIRSIZ is the maximum length of one path component stored in a
// directory entry (§6 Directory entry: "name[14]").
const DIRSIZ = 14

type rawDirent struct {
	Inum uint16
	Name [DIRSIZ]byte
}

const DirentSize = int(unsafe.Sizeof(rawDirent{}))

func direntAt(block []byte, off int) *rawDirent {
	return (*rawDirent)(unsafe.Pointer(&block[off]))
}
