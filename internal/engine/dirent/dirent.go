// Package dirent implements the directory-entry operations of spec §4.5:
// find, plug, append, and the point set_ino/clear_ino writes, each
// operating against one directory inode's own data tree (a types.TreeRoot,
// exactly like a regular file's data).
//
// Grounded on the teacher's sequential record parsers under
// internal/parsers/file_system_objects/ (decode a packed record, advance
// by its own length field, stop at a sentinel), generalized from
// read-only parsing to a mutable, allocate-on-demand model.
package dirent

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/crawler"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Ops performs directory-entry operations against one directory's data
// tree via the given Crawler.
type Ops struct {
	C *crawler.Crawler
}

// New builds an Ops.
func New(c *crawler.Crawler) *Ops {
	return &Ops{C: c}
}

// Match is one located directory entry together with its absolute byte
// offset within the directory's data tree.
type Match struct {
	Entry  types.DirEntry
	Offset uint64
}

// Find scans root for an entry named name, matching each block's local
// dirent stream up to its rec_len==0 terminator (spec §4.5, §3 invariant:
// a record never spans a block boundary).
func (o *Ops) Find(root types.TreeRoot, name string) (Match, bool, error) {
	buf, err := o.C.ReadData(root, 0, root.NBytes)
	if err != nil {
		return Match{}, false, err
	}
	found, ok := false, false
	var m Match
	err = forEachSlot(buf, func(blockStart uint64, localOff uint16, e types.DirEntry) (stop bool) {
		if e.Ino != types.Invalid && e.Name == name {
			m = Match{Entry: e, Offset: blockStart + uint64(localOff)}
			found = true
			return true
		}
		return false
	})
	if err != nil {
		return Match{}, false, err
	}
	ok = found
	return m, ok, nil
}

// ForEachEntry visits every live entry (Ino != Invalid) in root, in
// on-media order, until visit returns an error or stop. Used by mount
// discovery and readdir.
func (o *Ops) ForEachEntry(root types.TreeRoot, visit func(e types.DirEntry) (stop bool, err error)) error {
	buf, err := o.C.ReadData(root, 0, root.NBytes)
	if err != nil {
		return err
	}
	var visitErr error
	_ = forEachSlot(buf, func(blockStart uint64, localOff uint16, e types.DirEntry) bool {
		if e.Ino == types.Invalid {
			return false
		}
		stop, err := visit(e)
		if err != nil {
			visitErr = err
			return true
		}
		return stop
	})
	return visitErr
}

// slot describes a candidate location plug can install a new entry at.
type slot struct {
	offset       uint64
	isTerminator bool
	capacity     uint16 // rec_len available at this slot
	residual     uint16 // capacity - required, for deciding whether to re-terminate
}

// Plug installs (ino, ft, name) into the first reusable slot or block
// terminator found in root, writing a fresh terminator behind it when the
// slot was a terminator with residual space (spec §4.5). It returns the
// tree's new root. If no slot fits, ok is false and the caller should fall
// back to Append.
func (o *Ops) Plug(root types.TreeRoot, ino types.InoT, ft types.FileType, name string) (types.TreeRoot, bool, error) {
	required := types.RequiredRecLen(len(name))
	if required > types.MaxNameLen+types.DirEntryHeaderSize {
		return types.TreeRoot{}, false, fmt.Errorf("dirent: name too long: %w", types.ErrNameTooLong)
	}

	buf, err := o.C.ReadData(root, 0, root.NBytes)
	if err != nil {
		return types.TreeRoot{}, false, err
	}

	s, ok, err := findSlot(buf, required)
	if err != nil {
		return types.TreeRoot{}, false, err
	}
	if !ok {
		return root, false, nil
	}

	rec := make([]byte, s.capacity)
	e := types.DirEntry{Ino: ino, RecLen: s.capacity, FileType: ft, Name: name}
	e.Encode(rec)
	newRoot, err := o.C.WriteData(root, s.offset, rec, types.CrawlCopy)
	if err != nil {
		return types.TreeRoot{}, false, err
	}

	if s.isTerminator && s.residual >= uint16(types.DirEntryHeaderSize) {
		term := make([]byte, types.DirEntryHeaderSize)
		newRoot, err = o.C.WriteData(newRoot, s.offset+uint64(s.capacity), term, types.CrawlCopy)
		if err != nil {
			return types.TreeRoot{}, false, err
		}
	}
	return newRoot, true, nil
}

// PlugOrAppend tries Plug and falls back to Append when no existing block
// offers room (spec §4.5: append "is the fallback"). This is the entry
// point directory-modifying operations normally call.
func (o *Ops) PlugOrAppend(root types.TreeRoot, ino types.InoT, ft types.FileType, name string) (types.TreeRoot, error) {
	newRoot, ok, err := o.Plug(root, ino, ft, name)
	if err != nil {
		return types.TreeRoot{}, err
	}
	if ok {
		return newRoot, nil
	}
	return o.Append(root, ino, ft, name)
}

// Append is plug's fallback: it grows the tree by exactly one block and
// installs the entry at that block's offset 0, with a trailing
// terminator (spec §4.5). The new block is a hole, so the underlying
// crawl reports COMMIT_FREE and the whole install happens in-place.
func (o *Ops) Append(root types.TreeRoot, ino types.InoT, ft types.FileType, name string) (types.TreeRoot, error) {
	required := types.RequiredRecLen(len(name))
	if required > types.MaxNameLen+types.DirEntryHeaderSize {
		return types.TreeRoot{}, fmt.Errorf("dirent: name too long: %w", types.ErrNameTooLong)
	}
	blockOff := (root.NBytes / types.BlockSize) * types.BlockSize
	if root.NBytes%types.BlockSize != 0 {
		blockOff += types.BlockSize
	}

	rec := make([]byte, types.BlockSize)
	e := types.DirEntry{Ino: ino, RecLen: required, FileType: ft, Name: name}
	e.Encode(rec[:required])
	// bytes beyond the new record are already zero (fresh hole block),
	// which is itself the rec_len==0 terminator for the rest of the block.

	return o.C.WriteData(root, blockOff, rec, types.CrawlCopy)
}

// SetIno atomically rewrites just the 8-byte ino field of the entry at
// offset (spec §4.5).
func (o *Ops) SetIno(root types.TreeRoot, offset uint64, ino types.InoT) (types.TreeRoot, error) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(ino))
	return o.C.WriteData(root, offset, b[:], types.CrawlAtomic)
}

// ClearIno atomically sets the entry at offset's ino field to Invalid,
// leaving rec_len and the name intact so the slot is reusable by a later
// plug (spec §4.5, used by unlink and by rename's source-side clear).
func (o *Ops) ClearIno(root types.TreeRoot, offset uint64) (types.TreeRoot, error) {
	return o.SetIno(root, offset, types.Invalid)
}

// forEachSlot walks every occupied and terminator slot across buf's
// blocks, calling visit(blockStart, localOff, entry) for occupied entries
// (Ino != Invalid or Ino == Invalid with RecLen > 0) until visit returns
// true or the buffer is exhausted. It does not call visit for the
// terminator record itself.
func forEachSlot(buf []byte, visit func(blockStart uint64, localOff uint16, e types.DirEntry) bool) error {
	nblocks := uint64(len(buf)) / types.BlockSize
	for bi := uint64(0); bi < nblocks; bi++ {
		blockStart := bi * types.BlockSize
		var localOff uint16
		for uint64(localOff) < types.BlockSize {
			hdr := buf[blockStart+uint64(localOff):]
			recLen := binary.LittleEndian.Uint16(hdr[8:10])
			if recLen == 0 {
				break
			}
			if uint64(localOff)+uint64(recLen) > types.BlockSize {
				return fmt.Errorf("dirent: record at block %d offset %d overruns block: %w", bi, localOff, types.ErrCorrupt)
			}
			e := types.DecodeDirEntry(hdr[:recLen])
			if visit(blockStart, localOff, e) {
				return nil
			}
			localOff += recLen
		}
	}
	return nil
}

// findSlot locates the first reusable slot (an Ino==Invalid record with
// RecLen >= required) or block terminator with enough room for required
// bytes.
func findSlot(buf []byte, required uint16) (slot, bool, error) {
	nblocks := uint64(len(buf)) / types.BlockSize
	for bi := uint64(0); bi < nblocks; bi++ {
		blockStart := bi * types.BlockSize
		var localOff uint16
		for uint64(localOff) < types.BlockSize {
			hdr := buf[blockStart+uint64(localOff):]
			recLen := binary.LittleEndian.Uint16(hdr[8:10])
			if recLen == 0 {
				available := uint16(types.BlockSize) - localOff
				if available >= required {
					return slot{offset: blockStart + uint64(localOff), isTerminator: true, capacity: required, residual: available - required}, true, nil
				}
				break
			}
			if uint64(localOff)+uint64(recLen) > types.BlockSize {
				return slot{}, false, fmt.Errorf("dirent: record at block %d offset %d overruns block: %w", bi, localOff, types.ErrCorrupt)
			}
			ino := types.InoT(binary.LittleEndian.Uint64(hdr[0:8]))
			if ino == types.Invalid && recLen >= required {
				return slot{offset: blockStart + uint64(localOff), isTerminator: false, capacity: recLen}, true, nil
			}
			localOff += recLen
		}
	}
	return slot{}, false, nil
}
