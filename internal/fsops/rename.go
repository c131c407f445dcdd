package fsops

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/txn"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Rename moves srcName out of srcParent and installs it as dstName in
// dstParent (spec §8 S6). A destination that already exists is not
// replaced (this format's rename is insert-only at the destination;
// overwriting rename is not modeled). Moving a directory into itself is
// rejected; deeper cycles (moving a directory into its own descendant)
// are not checked.
//
// Every write here lands in the inode tree at a distinct inode offset,
// so — exactly as crawler.CrawlData2 does for its fixed two-site case —
// sequential CrawlCopy writes against the one shared Txn/Crawler
// naturally re-point at whatever ancestor block an earlier write in this
// same rename already shadowed, without any of the call sites needing to
// know about the others.
func (o *Ops) Rename(srcParent types.InoT, srcName string, dstParent types.InoT, dstName string) error {
	t := txn.Begin(o.dev, o.blocks, o.inodes, o.crawler, o.sb)

	srcParentInode, m, err := o.findLive(t, srcParent, srcName)
	if err != nil {
		t.Abort()
		return err
	}
	moved := m.ino

	if srcParent == dstParent && srcName == dstName {
		root, err := o.crawler.UpdateCTime(t.Root(), moved, nowSeconds())
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
	if moved == dstParent {
		t.Abort()
		return fmt.Errorf("fsops: rename %d/%s: %w", srcParent, srcName, types.ErrInvalidArgument)
	}

	newSrcData, err := o.dirent.ClearIno(m.parentData, m.offset)
	if err != nil {
		t.Abort()
		return err
	}
	srcParentInode.Data = newSrcData
	srcParentInode.MTime = nowSeconds()
	root, err := o.crawler.WriteInode(t.Root(), srcParent, srcParentInode, types.CrawlCopy)
	if err != nil {
		t.Abort()
		return err
	}
	t.SetRoot(root)

	dstParentInode, err := o.crawler.ReadInode(t.Root(), dstParent)
	if err != nil {
		t.Abort()
		return err
	}
	if !dstParentInode.IsDir() {
		t.Abort()
		return fmt.Errorf("fsops: rename into %d: %w", dstParent, types.ErrInvalidArgument)
	}
	if _, ok, err := o.dirent.Find(dstParentInode.Data, dstName); err != nil {
		t.Abort()
		return err
	} else if ok {
		t.Abort()
		return fmt.Errorf("fsops: rename %d/%s: %w", dstParent, dstName, types.ErrExists)
	}
	newDstData, err := o.dirent.PlugOrAppend(dstParentInode.Data, moved, m.fileType, dstName)
	if err != nil {
		t.Abort()
		return err
	}
	dstParentInode.Data = newDstData
	dstParentInode.MTime = nowSeconds()
	root, err = o.crawler.WriteInode(t.Root(), dstParent, dstParentInode, types.CrawlCopy)
	if err != nil {
		t.Abort()
		return err
	}
	t.SetRoot(root)

	if m.fileType == types.FileTypeDir {
		srcParentInode, err = o.crawler.ReadInode(t.Root(), srcParent)
		if err != nil {
			t.Abort()
			return err
		}
		root, err = o.crawler.SetModeAndNLinks(t.Root(), srcParent, srcParentInode.Mode, srcParentInode.NLinks-1)
		if err != nil {
			t.Abort()
			return err
		}
		t.SetRoot(root)

		dstParentInode, err = o.crawler.ReadInode(t.Root(), dstParent)
		if err != nil {
			t.Abort()
			return err
		}
		root, err = o.crawler.SetModeAndNLinks(t.Root(), dstParent, dstParentInode.Mode, dstParentInode.NLinks+1)
		if err != nil {
			t.Abort()
			return err
		}
		t.SetRoot(root)
	}

	root, err = o.crawler.UpdateCTime(t.Root(), moved, nowSeconds())
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
	if m.fileType == types.FileTypeDir {
		o.parents.Move(moved, dstParent)
	}
	return nil
}
