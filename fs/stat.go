package fs

// StatWriter is the subset of stat.Stat_t's setters Stat needs,
// declared locally (mirroring the Sleeplock_i pattern above) so fs does
// not import the file/fdops packages and create a cycle.
type StatWriter interface {
	Wdev(uint)
	Wino(uint)
	Wmode(uint)
	Wsize(uint)
	Wrdev(uint)
}

// Isize returns ip's current byte length; ip must already be locked.
func (fs *FS_t) Isize(ip *Inode_t) uint32 { return ip.Size }

// Stat fills st from ip's cached fields (§4.10 fstat). ip must already
// be locked.
func (fs *FS_t) Stat(ip *Inode_t, st StatWriter) {
	st.Wdev(uint(ip.Dev))
	st.Wino(uint(ip.Inum))
	st.Wmode(uint(ip.Typ))
	st.Wsize(uint(ip.Size))
	st.Wrdev(uint(ip.Major))
}
