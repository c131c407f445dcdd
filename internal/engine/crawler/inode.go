package crawler

import (
	"encoding/binary"

	"github.com/deploymenttheory/go-bpram/internal/types"
)

// inodeOffset is the byte offset of ino's fixed-size record within the
// inode tree (spec §4.5's crawl_inodes/crawl_inode: the inode tree is just
// a flat byte-addressable tree of InodeSize records).
func inodeOffset(ino types.InoT) uint64 {
	return uint64(ino) * types.InodeSize
}

// ReadInode decodes the inode numbered ino out of the inode tree rooted
// at root. A read past the tree's current size, or of a never-allocated
// record within it, decodes as a zero-valued (unallocated) inode.
func (c *Crawler) ReadInode(root types.TreeRoot, ino types.InoT) (types.Inode, error) {
	buf, err := c.ReadData(root, inodeOffset(ino), types.InodeSize)
	if err != nil {
		return types.Inode{}, err
	}
	return types.DecodeInode(buf), nil
}

// WriteInode encodes and writes the full inode record for ino, growing
// the inode tree as needed (spec §3: "allocating an inode past the
// current tree size grows the inode tree by a block").
func (c *Crawler) WriteInode(root types.TreeRoot, ino types.InoT, inode types.Inode, mode types.CrawlCommit) (types.TreeRoot, error) {
	buf := make([]byte, types.InodeSize)
	inode.Encode(buf)
	return c.WriteData(root, inodeOffset(ino), buf, mode)
}

// SetModeAndNLinks atomically rewrites the combined mode+nlinks 8-byte
// word of ino's record (on-media bytes [16,24), 8-byte aligned within the
// record and so within the tree). Link-count and mode changes route
// through this single word so the store is always one atomic 8-byte
// write (spec §4.5's "separate ATOMIC crawls" for link bookkeeping).
func (c *Crawler) SetModeAndNLinks(root types.TreeRoot, ino types.InoT, mode uint32, nlinks uint32) (types.TreeRoot, error) {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], mode)
	binary.LittleEndian.PutUint32(b[4:8], nlinks)
	return c.WriteData(root, inodeOffset(ino)+16, b[:], types.CrawlAtomic)
}

// UpdateCTime rewrites just ctime (the 4 bytes at offset 56 within the
// record) via an ordinary COPY write — the
// three-timestamp region isn't 8-byte sized, so it gets no atomic
// single-store path.
func (c *Crawler) UpdateCTime(root types.TreeRoot, ino types.InoT, ctime uint32) (types.TreeRoot, error) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], ctime)
	return c.WriteData(root, inodeOffset(ino)+56, b[:], types.CrawlCopy)
}
