// Package fs is the inode-based file system (§3 Inodes, §4.6). It is
// grounded on the teacher's fs.Superblock_t (fs/super.go) for the
// byte-offset accessor idiom -- reading and writing fixed fields of an
// on-disk block via util.Readn/Writen rather than encoding/binary or
// reflection -- and on ufs/ufs.go for the Fs_open/Fs_mkdir-style naming
// of the exported file-system operations. The teacher's superblock
// layout (log length, orphan map, free-block map, inode length, last
// block) is a different, COW-era format; this file replaces it with
// §6's exact fixed record: magic, size, nblocks, ninodes, nlog,
// logstart, inodestart, bmapstart.
package fs

import "github.com/nicemissing/xv6/util"

const SuperMagic = 0x10203040

// Superblock_t is the fixed superblock record at block 1 (§6 External
// interfaces). Data is the raw block bytes backing it.
type Superblock_t struct {
	Data []byte
}

func (sb *Superblock_t) Magic() int      { return util.Readn(sb.Data, 4, 0) }
func (sb *Superblock_t) Size() int       { return util.Readn(sb.Data, 4, 4) }
func (sb *Superblock_t) Nblocks() int    { return util.Readn(sb.Data, 4, 8) }
func (sb *Superblock_t) Ninodes() int    { return util.Readn(sb.Data, 4, 12) }
func (sb *Superblock_t) Nlog() int       { return util.Readn(sb.Data, 4, 16) }
func (sb *Superblock_t) Logstart() int   { return util.Readn(sb.Data, 4, 20) }
func (sb *Superblock_t) Inodestart() int { return util.Readn(sb.Data, 4, 24) }
func (sb *Superblock_t) Bmapstart() int  { return util.Readn(sb.Data, 4, 28) }

func (sb *Superblock_t) SetMagic(v int)      { util.Writen(sb.Data, 4, 0, v) }
func (sb *Superblock_t) SetSize(v int)       { util.Writen(sb.Data, 4, 4, v) }
func (sb *Superblock_t) SetNblocks(v int)    { util.Writen(sb.Data, 4, 8, v) }
func (sb *Superblock_t) SetNinodes(v int)    { util.Writen(sb.Data, 4, 12, v) }
func (sb *Superblock_t) SetNlog(v int)       { util.Writen(sb.Data, 4, 16, v) }
func (sb *Superblock_t) SetLogstart(v int)   { util.Writen(sb.Data, 4, 20, v) }
func (sb *Superblock_t) SetInodestart(v int) { util.Writen(sb.Data, 4, 24, v) }
func (sb *Superblock_t) SetBmapstart(v int)  { util.Writen(sb.Data, 4, 28, v) }

const SuperBlockNo = 1

// IblockOf returns the inode block number holding inode inum; IoffsetOf
// gives its byte offset within that block (§3 Inodes on disk: "inode number i
// occupies byte (i % IPB) * sizeof(dinode) of block i/IPB + inodestart").
func (sb *Superblock_t) IblockOf(inum int) int {
	return inum/IPB + sb.Inodestart()
}

func IoffsetOf(inum int) int {
	return (inum % IPB) * DinodeSize
}

// BblockOf returns the bitmap block number holding the bit for data
// block b (§4.6 Block bitmap: "grouped into blocks of BPB bits").
func (sb *Superblock_t) BblockOf(b int) int {
	return b/BPB + sb.Bmapstart()
}
