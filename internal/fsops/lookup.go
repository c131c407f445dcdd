package fsops

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Lookup resolves name within parent, synthesizing "." and ".." (spec
// §8 S1: neither is stored on media) from the current inode and the
// parent map.
func (o *Ops) Lookup(parent types.InoT, name string) (types.InoT, types.FileType, error) {
	switch name {
	case ".":
		return parent, types.FileTypeDir, nil
	case "..":
		p, ok := o.parents.Parent(parent)
		if !ok {
			return 0, 0, fmt.Errorf("fsops: lookup %d/..: %w", parent, types.ErrNotFound)
		}
		return p, types.FileTypeDir, nil
	}

	parentInode, err := o.crawler.ReadInode(o.sb.TreeRoot(), parent)
	if err != nil {
		return 0, 0, err
	}
	match, ok, err := o.dirent.Find(parentInode.Data, name)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("fsops: lookup %d/%s: %w", parent, name, types.ErrNotFound)
	}
	return match.Entry.Ino, match.Entry.FileType, nil
}

// DirEntryOut is one entry readdir yields, including the two synthetic
// entries every directory has.
type DirEntryOut struct {
	Ino      types.InoT
	Name     string
	FileType types.FileType
}

// Readdir lists ino's entries starting at offset, returning at most
// budget of them. Offsets 0 and 1 are always "." and "..".
func (o *Ops) Readdir(ino types.InoT, offset, budget uint64) ([]DirEntryOut, error) {
	n, err := o.crawler.ReadInode(o.sb.TreeRoot(), ino)
	if err != nil {
		return nil, err
	}
	if !n.IsDir() {
		return nil, fmt.Errorf("fsops: readdir %d: %w", ino, types.ErrInvalidArgument)
	}
	parent, ok := o.parents.Parent(ino)
	if !ok {
		parent = ino
	}

	all := []DirEntryOut{
		{Ino: ino, Name: ".", FileType: types.FileTypeDir},
		{Ino: parent, Name: "..", FileType: types.FileTypeDir},
	}
	err = o.dirent.ForEachEntry(n.Data, func(e types.DirEntry) (bool, error) {
		all = append(all, DirEntryOut{Ino: e.Ino, Name: e.Name, FileType: e.FileType})
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	if offset >= uint64(len(all)) {
		return nil, nil
	}
	end := offset + budget
	if budget == 0 || end > uint64(len(all)) {
		end = uint64(len(all))
	}
	return all[offset:end], nil
}
