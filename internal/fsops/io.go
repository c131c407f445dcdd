package fsops

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/txn"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Open validates that ino exists and returns its current attributes;
// there is no separate file-handle table at this layer (spec §6 models
// open/read/write/fsync directly against an inode number).
func (o *Ops) Open(ino types.InoT) (Attr, error) { return o.Getattr(ino) }

// Read returns size bytes at off from ino's data; bytes at or past the
// file's size read as zero (spec §8 S2, S3).
func (o *Ops) Read(ino types.InoT, off, size uint64) ([]byte, error) {
	n, err := o.crawler.ReadInode(o.sb.TreeRoot(), ino)
	if err != nil {
		return nil, err
	}
	if n.IsDir() {
		return nil, fmt.Errorf("fsops: read %d: %w", ino, types.ErrInvalidArgument)
	}
	return o.crawler.ReadData(n.Data, off, size)
}

// Write stores data at off in ino's data tree, growing it as needed, and
// returns the number of bytes written (spec §8 property 6, S2, S3).
func (o *Ops) Write(ino types.InoT, off uint64, data []byte) (int, error) {
	if !o.inodes.IsSet(uint64(ino)) {
		return 0, fmt.Errorf("fsops: write %d: %w", ino, types.ErrNotFound)
	}
	t := txn.Begin(o.dev, o.blocks, o.inodes, o.crawler, o.sb)

	n, err := o.crawler.ReadInode(t.Root(), ino)
	if err != nil {
		t.Abort()
		return 0, err
	}
	if n.IsDir() {
		t.Abort()
		return 0, fmt.Errorf("fsops: write %d: %w", ino, types.ErrInvalidArgument)
	}

	newData, err := o.crawler.WriteData(n.Data, off, data, types.CrawlAtomic)
	if err != nil {
		t.Abort()
		return 0, err
	}
	n.Data = newData
	n.MTime = nowSeconds()
	n.CTime = n.MTime
	root, err := o.crawler.WriteInode(t.Root(), ino, n, types.CrawlCopy)
	if err != nil {
		t.Abort()
		return 0, err
	}
	t.SetRoot(root)

	committed, err := t.Commit()
	if err != nil {
		return 0, err
	}
	o.sb = committed
	return len(data), nil
}

// Fsync issues a persistence barrier. Every commit that publishes a new
// root already barriers before returning, so this is a convenience for
// callers that batch
// several writes and want an explicit durability point.
func (o *Ops) Fsync(types.InoT) error {
	return o.dev.Barrier()
}

// VFSStat is statvfs's result: block and inode counts, in units of one
// BlockSize block / one inode record respectively.
type VFSStat struct {
	BlockSize   uint32
	TotalBlocks uint64
	FreeBlocks  uint64
	TotalInodes uint64
	FreeInodes  uint64
}

// Statvfs reports current allocator occupancy.
func (o *Ops) Statvfs() VFSStat {
	return VFSStat{
		BlockSize:   types.BlockSize,
		TotalBlocks: o.blocks.Total(),
		FreeBlocks:  o.blocks.Total() - o.blocks.CountSet(),
		TotalInodes: o.inodes.Total(),
		FreeInodes:  o.inodes.Total() - o.inodes.CountSet(),
	}
}
