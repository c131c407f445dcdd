// Package blockhelpers implements the copy-on-write block constructors
// spec §4.2 calls the block helpers: cow_block, cow_block_hole, and
// cow_block_entire, plus the shadow-paging freshness optimization that
// lets a block allocated earlier in the same transaction skip CoW
// entirely, since nothing persistent references it yet.
package blockhelpers

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/media"
	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// FreshSet tracks blocks allocated earlier in the current transaction.
// Such a block is not yet referenced by any persistent pointer, so CoW of
// it can be skipped (spec §4.2).
type FreshSet struct {
	m map[types.BlockAddr]bool
}

// NewFreshSet returns an empty freshness tracker.
func NewFreshSet() *FreshSet { return &FreshSet{m: make(map[types.BlockAddr]bool)} }

// Mark records addr as freshly allocated in the current transaction.
func (f *FreshSet) Mark(addr types.BlockAddr) { f.m[addr] = true }

// Is reports whether addr was freshly allocated in the current
// transaction.
func (f *FreshSet) Is(addr types.BlockAddr) bool { return f.m[addr] }

// Reset clears the tracker; called at commit/abort.
func (f *FreshSet) Reset() { f.m = make(map[types.BlockAddr]bool) }

// Helper bundles the device and block allocator the CoW constructors need.
type Helper struct {
	Dev    interfaces.BlockDevice
	Blocks interfaces.Allocator
	Fresh  *FreshSet
}

// New builds a Helper.
func New(dev interfaces.BlockDevice, blocks interfaces.Allocator, fresh *FreshSet) *Helper {
	return &Helper{Dev: dev, Blocks: blocks, Fresh: fresh}
}

func (h *Helper) allocBlock() (types.BlockAddr, error) {
	id, ok := h.Blocks.Alloc()
	if !ok {
		return 0, fmt.Errorf("blockhelpers: %w", types.ErrNoSpace)
	}
	addr := types.BlockAddr(id)
	h.Fresh.Mark(addr)
	return addr, nil
}

// CowBlock allocates a new block, copies [0,off) and [off+size,valid)
// from old, frees old (staged), and returns the new block's address. The
// caller fills [off, off+size) itself. If old is already fresh in this
// transaction, the copy is skipped and old is mutated/returned in place
// instead (the shadow-paging optimization, spec §4.2).
func (h *Helper) CowBlock(old types.BlockAddr, off, size, valid uint32) (types.BlockAddr, []byte, error) {
	if h.Fresh.Is(old) {
		buf, err := h.Dev.ReadBlock(old)
		if err != nil {
			return 0, nil, err
		}
		return old, buf, nil
	}
	oldBuf, err := h.Dev.ReadBlock(old)
	if err != nil {
		return 0, nil, err
	}
	newAddr, err := h.allocBlock()
	if err != nil {
		return 0, nil, err
	}
	buf := make([]byte, types.BlockSize)
	copy(buf[0:off], oldBuf[0:off])
	if off+size < valid {
		copy(buf[off+size:valid], oldBuf[off+size:valid])
	}
	h.Blocks.Free(uint64(old))
	return newAddr, buf, nil
}

// CowBlockHole allocates a block representing a CoW from an implicit
// hole: everything outside [off, off+size) is zero-filled; the caller
// fills [off, off+size).
func (h *Helper) CowBlockHole(off, size uint32) (types.BlockAddr, []byte, error) {
	newAddr, err := h.allocBlock()
	if err != nil {
		return 0, nil, err
	}
	return newAddr, make([]byte, types.BlockSize), nil
}

// CowBlockEntire copies the entire 4 KiB block unchanged, used when a
// subsequent in-place mutation requires the block's prior neighbors to
// survive (e.g. installing one new child pointer in an indirect block
// under COPY mode).
func (h *Helper) CowBlockEntire(old types.BlockAddr) (types.BlockAddr, []byte, error) {
	if h.Fresh.Is(old) {
		buf, err := h.Dev.ReadBlock(old)
		if err != nil {
			return 0, nil, err
		}
		return old, buf, nil
	}
	oldBuf, err := h.Dev.ReadBlock(old)
	if err != nil {
		return 0, nil, err
	}
	newAddr, err := h.allocBlock()
	if err != nil {
		return 0, nil, err
	}
	buf := make([]byte, types.BlockSize)
	copy(buf, oldBuf)
	h.Blocks.Free(uint64(old))
	return newAddr, buf, nil
}

// ZeroBlock returns the shared read-only sentinel used to serve hole
// reads without allocation.
func ZeroBlock() []byte { return media.ZeroBlock }
