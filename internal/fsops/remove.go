package fsops

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/txn"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// findLive locates name in parent's directory and reports an error if
// it isn't there.
func (o *Ops) findLive(t *txn.Txn, parent types.InoT, name string) (types.Inode, direntMatch, error) {
	parentInode, err := o.crawler.ReadInode(t.Root(), parent)
	if err != nil {
		return types.Inode{}, direntMatch{}, err
	}
	m, ok, err := o.dirent.Find(parentInode.Data, name)
	if err != nil {
		return types.Inode{}, direntMatch{}, err
	}
	if !ok {
		return types.Inode{}, direntMatch{}, fmt.Errorf("fsops: %d/%s: %w", parent, name, types.ErrNotFound)
	}
	return parentInode, direntMatch{ino: m.Entry.Ino, offset: m.Offset, fileType: m.Entry.FileType, parentData: parentInode.Data}, nil
}

// direntMatch is the subset of dirent.Match this package threads
// through remove/rename helpers.
type direntMatch struct {
	ino        types.InoT
	offset     uint64
	fileType   types.FileType
	parentData types.TreeRoot
}

// Unlink removes a non-directory name from parent, freeing the target
// inode once its link count reaches zero (spec §8 property 7).
func (o *Ops) Unlink(parent types.InoT, name string) error {
	t := txn.Begin(o.dev, o.blocks, o.inodes, o.crawler, o.sb)

	parentInode, m, err := o.findLive(t, parent, name)
	if err != nil {
		t.Abort()
		return err
	}
	target, err := o.crawler.ReadInode(t.Root(), m.ino)
	if err != nil {
		t.Abort()
		return err
	}
	if target.IsDir() {
		t.Abort()
		return fmt.Errorf("fsops: unlink %d/%s: %w", parent, name, types.ErrInvalidArgument)
	}

	newParentData, err := o.dirent.ClearIno(m.parentData, m.offset)
	if err != nil {
		t.Abort()
		return err
	}
	parentInode.MTime = nowSeconds()
	parentInode.Data = newParentData
	root, err := o.crawler.WriteInode(t.Root(), parent, parentInode, types.CrawlCopy)
	if err != nil {
		t.Abort()
		return err
	}
	t.SetRoot(root)

	root, err = o.dropLink(t, m.ino, target)
	if err != nil {
		t.Abort()
		return err
	}
	t.SetRoot(root)

	committed, err := t.Commit()
	if err != nil {
		return err
	}
	o.sb = committed
	return nil
}

// dropLink decrements ino's link count, freeing its data tree and inode
// slot once the count reaches zero.
func (o *Ops) dropLink(t *txn.Txn, ino types.InoT, n types.Inode) (types.TreeRoot, error) {
	if n.NLinks <= 1 {
		freedData, err := t.Crawler().TruncateBlockFree(n.Data, 0)
		if err != nil {
			return types.TreeRoot{}, err
		}
		n.Data = freedData
		root, err := o.crawler.WriteInode(t.Root(), ino, types.Inode{}, types.CrawlCopy)
		if err != nil {
			return types.TreeRoot{}, err
		}
		o.inodes.Free(uint64(ino))
		return root, nil
	}
	return o.crawler.SetModeAndNLinks(t.Root(), ino, n.Mode, n.NLinks-1)
}

// Rmdir removes an empty directory, reversing both the directory's own
// "." credit (by freeing it outright) and the parent's ".." credit
// (spec §8 S5).
func (o *Ops) Rmdir(parent types.InoT, name string) error {
	t := txn.Begin(o.dev, o.blocks, o.inodes, o.crawler, o.sb)

	parentInode, m, err := o.findLive(t, parent, name)
	if err != nil {
		t.Abort()
		return err
	}
	child, err := o.crawler.ReadInode(t.Root(), m.ino)
	if err != nil {
		t.Abort()
		return err
	}
	if !child.IsDir() {
		t.Abort()
		return fmt.Errorf("fsops: rmdir %d/%s: %w", parent, name, types.ErrInvalidArgument)
	}
	empty := true
	if err := o.dirent.ForEachEntry(child.Data, func(types.DirEntry) (bool, error) {
		empty = false
		return true, nil
	}); err != nil {
		t.Abort()
		return err
	}
	if !empty {
		t.Abort()
		return fmt.Errorf("fsops: rmdir %d/%s: %w", parent, name, types.ErrNotEmpty)
	}

	newParentData, err := o.dirent.ClearIno(m.parentData, m.offset)
	if err != nil {
		t.Abort()
		return err
	}
	parentInode.MTime = nowSeconds()
	parentInode.Data = newParentData
	root, err := o.crawler.WriteInode(t.Root(), parent, parentInode, types.CrawlCopy)
	if err != nil {
		t.Abort()
		return err
	}
	t.SetRoot(root)

	root, err = o.crawler.SetModeAndNLinks(t.Root(), parent, parentInode.Mode, parentInode.NLinks-1)
	if err != nil {
		t.Abort()
		return err
	}
	t.SetRoot(root)

	if _, err := t.Crawler().TruncateBlockFree(child.Data, 0); err != nil {
		t.Abort()
		return err
	}
	root, err = o.crawler.WriteInode(t.Root(), m.ino, types.Inode{}, types.CrawlCopy)
	if err != nil {
		t.Abort()
		return err
	}
	t.SetRoot(root)
	o.inodes.Free(uint64(m.ino))

	committed, err := t.Commit()
	if err != nil {
		return err
	}
	o.sb = committed
	o.parents.Delete(m.ino)
	return nil
}
