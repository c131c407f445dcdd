package fsops

import (
	"fmt"
	"math"

	"github.com/deploymenttheory/go-bpram/internal/engine/txn"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// newChildInode allocates an inode number and a record for it, with a
// generation one past the record currently stored at that number.
// Unlink and Rmdir zero a freed record (mount discovery reads generation
// 0 as free), so a reused number starts again at generation 1.
func (o *Ops) newChildInode(t *txn.Txn, mode uint32, nlinks uint32) (types.InoT, types.Inode, error) {
	ino, err := o.allocInode()
	if err != nil {
		return 0, types.Inode{}, err
	}
	prior, err := o.crawler.ReadInode(t.Root(), ino)
	if err != nil {
		return 0, types.Inode{}, err
	}
	now := nowSeconds()
	n := types.Inode{
		Generation: prior.Generation + 1,
		Mode:       mode,
		NLinks:     nlinks,
		ATime:      now,
		MTime:      now,
		CTime:      now,
	}
	return ino, n, nil
}

// insertEntry installs (ino, ft, name) into parent's directory, checking
// the name doesn't already exist first, and returns the updated inode
// tree root.
func (o *Ops) insertEntry(t *txn.Txn, parent types.InoT, ino types.InoT, ft types.FileType, name string) (types.TreeRoot, error) {
	parentInode, err := o.crawler.ReadInode(t.Root(), parent)
	if err != nil {
		return types.TreeRoot{}, err
	}
	if !parentInode.IsDir() {
		return types.TreeRoot{}, fmt.Errorf("fsops: %d is not a directory: %w", parent, types.ErrInvalidArgument)
	}
	if _, ok, err := o.dirent.Find(parentInode.Data, name); err != nil {
		return types.TreeRoot{}, err
	} else if ok {
		return types.TreeRoot{}, fmt.Errorf("fsops: %s already exists in %d: %w", name, parent, types.ErrExists)
	}

	newDirRoot, err := o.dirent.PlugOrAppend(parentInode.Data, ino, ft, name)
	if err != nil {
		return types.TreeRoot{}, err
	}
	parentInode.Data = newDirRoot
	parentInode.MTime = nowSeconds()
	return o.crawler.WriteInode(t.Root(), parent, parentInode, types.CrawlCopy)
}

// Create makes a new regular file (spec §6, §8 S2).
func (o *Ops) Create(parent types.InoT, name string, mode uint32) (types.InoT, error) {
	return o.createChild(parent, name, (mode&^types.ModeFmt)|types.ModeReg, types.FileTypeReg)
}

// Mkdir makes a new, empty directory, crediting its own "." and the
// parent's synthetic ".." (spec §8 S5).
func (o *Ops) Mkdir(parent types.InoT, name string) (types.InoT, error) {
	mode := types.ModeDir | 0755
	t := txn.Begin(o.dev, o.blocks, o.inodes, o.crawler, o.sb)

	ino, n, err := o.newChildInode(t, mode, 2)
	if err != nil {
		t.Abort()
		return 0, err
	}
	root, err := o.crawler.WriteInode(t.Root(), ino, n, types.CrawlCopy)
	if err != nil {
		t.Abort()
		return 0, err
	}
	t.SetRoot(root)

	root, err = o.insertEntry(t, parent, ino, types.FileTypeDir, name)
	if err != nil {
		t.Abort()
		return 0, err
	}
	t.SetRoot(root)

	parentInode, err := o.crawler.ReadInode(t.Root(), parent)
	if err != nil {
		t.Abort()
		return 0, err
	}
	if parentInode.NLinks == math.MaxUint32 {
		t.Abort()
		return 0, fmt.Errorf("fsops: mkdir %d/%s: %w", parent, name, types.ErrLinkMax)
	}
	root, err = o.crawler.SetModeAndNLinks(t.Root(), parent, parentInode.Mode, parentInode.NLinks+1)
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
	o.parents.Set(ino, parent)
	return ino, nil
}

// Mknod creates a device/fifo/socket node. For char and block devices,
// rdev is packed into the inode's Flags field (the on-media layout has
// no dedicated rdev field; Flags is otherwise unused by this format).
func (o *Ops) Mknod(parent types.InoT, name string, mode uint32, rdev uint64) (types.InoT, error) {
	ft := types.FileTypeFromMode(mode)
	switch ft {
	case types.FileTypeChr, types.FileTypeBlk, types.FileTypeFifo, types.FileTypeSock:
	default:
		return 0, fmt.Errorf("fsops: mknod %d/%s: %w", parent, name, types.ErrInvalidArgument)
	}
	return o.createChildWithFlags(parent, name, mode, ft, rdev)
}

// Symlink creates a symbolic link whose target is stored as the new
// inode's ordinary file data.
func (o *Ops) Symlink(parent types.InoT, name, target string) (types.InoT, error) {
	t := txn.Begin(o.dev, o.blocks, o.inodes, o.crawler, o.sb)

	ino, n, err := o.newChildInode(t, types.ModeLink|0777, 1)
	if err != nil {
		t.Abort()
		return 0, err
	}
	n.Data, err = o.crawler.WriteData(types.TreeRoot{}, 0, []byte(target), types.CrawlCopy)
	if err != nil {
		t.Abort()
		return 0, err
	}
	root, err := o.crawler.WriteInode(t.Root(), ino, n, types.CrawlCopy)
	if err != nil {
		t.Abort()
		return 0, err
	}
	t.SetRoot(root)

	root, err = o.insertEntry(t, parent, ino, types.FileTypeSymlink, name)
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
	return ino, nil
}

// Readlink returns a symlink inode's stored target.
func (o *Ops) Readlink(ino types.InoT) (string, error) {
	n, err := o.crawler.ReadInode(o.sb.TreeRoot(), ino)
	if err != nil {
		return "", err
	}
	if n.Mode&types.ModeFmt != types.ModeLink {
		return "", fmt.Errorf("fsops: readlink %d: %w", ino, types.ErrInvalidArgument)
	}
	buf, err := o.crawler.ReadData(n.Data, 0, n.Data.NBytes)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// Link adds a new name for an existing inode (a hard link), bumping its
// link count. Directories cannot be hard-linked.
func (o *Ops) Link(parent types.InoT, name string, target types.InoT) (Attr, error) {
	t := txn.Begin(o.dev, o.blocks, o.inodes, o.crawler, o.sb)

	n, err := o.crawler.ReadInode(t.Root(), target)
	if err != nil {
		t.Abort()
		return Attr{}, err
	}
	if n.IsDir() {
		t.Abort()
		return Attr{}, fmt.Errorf("fsops: link: %d is a directory: %w", target, types.ErrInvalidArgument)
	}
	if n.NLinks == math.MaxUint32 {
		t.Abort()
		return Attr{}, fmt.Errorf("fsops: link %d: %w", target, types.ErrLinkMax)
	}

	ft := types.FileTypeFromMode(n.Mode)
	root, err := o.insertEntry(t, parent, target, ft, name)
	if err != nil {
		t.Abort()
		return Attr{}, err
	}
	t.SetRoot(root)

	root, err = o.crawler.SetModeAndNLinks(t.Root(), target, n.Mode, n.NLinks+1)
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
	n.NLinks++
	return attrFromInode(target, n), nil
}

func (o *Ops) createChild(parent types.InoT, name string, mode uint32, ft types.FileType) (types.InoT, error) {
	return o.createChildWithFlags(parent, name, mode, ft, 0)
}

func (o *Ops) createChildWithFlags(parent types.InoT, name string, mode uint32, ft types.FileType, flags uint64) (types.InoT, error) {
	t := txn.Begin(o.dev, o.blocks, o.inodes, o.crawler, o.sb)

	ino, n, err := o.newChildInode(t, mode, 1)
	if err != nil {
		t.Abort()
		return 0, err
	}
	n.Flags = flags
	root, err := o.crawler.WriteInode(t.Root(), ino, n, types.CrawlCopy)
	if err != nil {
		t.Abort()
		return 0, err
	}
	t.SetRoot(root)

	root, err = o.insertEntry(t, parent, ino, ft, name)
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
	return ino, nil
}
