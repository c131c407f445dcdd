// Package fsops implements the operation surface spec §6 lists as "what
// the core must expose to its adapter": stat/lookup/readdir,
// create/mkdir/mknod/symlink/link/unlink/rmdir/rename, and
// read/write/fsync/statvfs. Every mutating method opens a transaction,
// drives one or more engine-level crawls, and commits or aborts before
// returning, per spec §4.7; the read-only methods read the last
// committed inode tree without opening one.
//
// Grounded on pkg/services/filesystem_service.go's facade-over-managers
// shape: a thin struct wrapping the lower-level dependencies, one
// function per operation, returning a typed result rather than raw
// bytes.
package fsops

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-bpram/internal/engine/alloc"
	"github.com/deploymenttheory/go-bpram/internal/engine/crawler"
	"github.com/deploymenttheory/go-bpram/internal/engine/dirent"
	"github.com/deploymenttheory/go-bpram/internal/engine/parentmap"
	"github.com/deploymenttheory/go-bpram/internal/engine/tree"
	"github.com/deploymenttheory/go-bpram/internal/engine/txn"
	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// inodesPerBlock is how many inode-number bits to grow the inode
// allocator by when it's exhausted, matching the inode tree's own
// per-block record count.
const inodesPerBlock = types.BlockSize / types.InodeSize

// Ops bundles the mounted image's engine state and exposes the POSIX-
// shaped operation surface over it. Not safe for concurrent use (spec
// §5: "the core is single-threaded cooperative"); callers serialize
// entry points under one mutex if embedded in a multithreaded host.
type Ops struct {
	dev     interfaces.BlockDevice
	blocks  *alloc.Bitmap
	inodes  *alloc.Bitmap
	crawler *crawler.Crawler
	dirent  *dirent.Ops
	parents *parentmap.Map
	sb      types.Superblock
}

// New builds an Ops over an already-mounted image (see
// internal/engine/mount.Mount for how sb, blocks, and inodes are
// produced).
func New(dev interfaces.BlockDevice, blocks, inodes *alloc.Bitmap, c *crawler.Crawler, parents *parentmap.Map, sb types.Superblock) *Ops {
	return &Ops{
		dev:     dev,
		blocks:  blocks,
		inodes:  inodes,
		crawler: c,
		dirent:  dirent.New(c),
		parents: parents,
		sb:      sb,
	}
}

// Superblock returns the current committed superblock, e.g. for an
// embedding host to persist across an orderly unmount.
func (o *Ops) Superblock() types.Superblock { return o.sb }

// Crawler, Blocks, and Inodes expose the mounted engine state an
// embedding facade (pkg/bpram) needs for operations outside the
// per-call operation surface, such as running the online consistency
// re-scan (internal/engine/mount.Fsck).
func (o *Ops) Crawler() *crawler.Crawler { return o.crawler }
func (o *Ops) Blocks() *alloc.Bitmap     { return o.blocks }
func (o *Ops) Inodes() *alloc.Bitmap     { return o.inodes }

// Attr is the stat/getattr result (spec §6).
type Attr struct {
	Ino        types.InoT
	Mode       uint32
	NLinks     uint32
	UID        uint32
	GID        uint32
	Size       uint64
	Generation types.Generation
	ATime      uint32
	MTime      uint32
	CTime      uint32
}

func attrFromInode(ino types.InoT, n types.Inode) Attr {
	return Attr{
		Ino: ino, Mode: n.Mode, NLinks: n.NLinks, UID: n.UID, GID: n.GID,
		Size: n.Data.NBytes, Generation: n.Generation,
		ATime: n.ATime, MTime: n.MTime, CTime: n.CTime,
	}
}

func nowSeconds() uint32 { return uint32(time.Now().Unix()) }

// Stat and Getattr are the same read-only lookup (spec §6 lists both
// names for the same operation).
func (o *Ops) Stat(ino types.InoT) (Attr, error) { return o.Getattr(ino) }

func (o *Ops) Getattr(ino types.InoT) (Attr, error) {
	if !o.inodes.IsSet(uint64(ino)) {
		return Attr{}, fmt.Errorf("fsops: getattr %d: %w", ino, types.ErrNotFound)
	}
	n, err := o.crawler.ReadInode(o.sb.TreeRoot(), ino)
	if err != nil {
		return Attr{}, err
	}
	return attrFromInode(ino, n), nil
}

// SetattrArgs carries the subset of fields setattr should change; a nil
// pointer field is left untouched.
type SetattrArgs struct {
	Mode  *uint32
	UID   *uint32
	GID   *uint32
	Size  *uint64
	ATime *uint32
	MTime *uint32
}

// Setattr applies args to ino's inode record, truncating or zero-
// extending its data tree when Size is set (spec §6, §8 property 11).
func (o *Ops) Setattr(ino types.InoT, args SetattrArgs) (Attr, error) {
	if !o.inodes.IsSet(uint64(ino)) {
		return Attr{}, fmt.Errorf("fsops: setattr %d: %w", ino, types.ErrNotFound)
	}
	t := txn.Begin(o.dev, o.blocks, o.inodes, o.crawler, o.sb)

	n, err := o.crawler.ReadInode(t.Root(), ino)
	if err != nil {
		t.Abort()
		return Attr{}, err
	}
	if args.Mode != nil {
		n.Mode = (n.Mode & types.ModeFmt) | (*args.Mode &^ types.ModeFmt)
	}
	if args.UID != nil {
		n.UID = *args.UID
	}
	if args.GID != nil {
		n.GID = *args.GID
	}
	if args.ATime != nil {
		n.ATime = *args.ATime
	}
	if args.MTime != nil {
		n.MTime = *args.MTime
	}
	n.CTime = nowSeconds()

	if args.Size != nil && *args.Size != n.Data.NBytes {
		newData, err := o.resizeData(t, n.Data, *args.Size)
		if err != nil {
			t.Abort()
			return Attr{}, err
		}
		n.Data = newData
	}

	root, err := o.crawler.WriteInode(t.Root(), ino, n, types.CrawlCopy)
	if err != nil {
		t.Abort()
		return Attr{}, err
	}
	t.SetRoot(root)

	committed, err := t.Commit()
	if err != nil {
		return Attr{}, err
	}
	o.sb = committed
	return attrFromInode(ino, n), nil
}

// resizeData grows (zero-extending) or shrinks (freeing blocks wholly
// past newSize and zeroing the rest of the straddling leaf) a data tree
// to newSize. A shrink leaves the tree's height unchanged.
func (o *Ops) resizeData(t *txn.Txn, root types.TreeRoot, newSize uint64) (types.TreeRoot, error) {
	if newSize <= root.NBytes {
		oldSize := root.NBytes
		shrunk, err := t.Crawler().TruncateBlockFree(root, newSize)
		if err != nil {
			return types.TreeRoot{}, err
		}
		zeroed, err := tree.ZeroRange(t.Crawler().Helper, shrunk, newSize, oldSize)
		if err != nil {
			return types.TreeRoot{}, err
		}
		return zeroed, nil
	}
	// Growing: nothing on media needs to change for a pure nbytes
	// extension into what's already a hole past the last write; record
	// the new size directly.
	root.NBytes = newSize
	return root, nil
}

// allocInode returns a fresh inode number, growing the inode allocator
// by one inode-tree block's worth of numbers when exhausted.
func (o *Ops) allocInode() (types.InoT, error) {
	id, ok := o.inodes.Alloc()
	if ok {
		return types.InoT(id), nil
	}
	if err := o.inodes.Resize(o.inodes.Total() + inodesPerBlock); err != nil {
		return 0, fmt.Errorf("fsops: growing inode allocator: %w", err)
	}
	id, ok = o.inodes.Alloc()
	if !ok {
		return 0, fmt.Errorf("fsops: %w", types.ErrNoSpace)
	}
	return types.InoT(id), nil
}
