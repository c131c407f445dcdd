// Package tree implements the height-variable tree layout primitives from
// spec §4.3: capacity/height arithmetic, the packed (height, addr)
// publication field (see types.HeightAddr), tree growth/shrinkage, and
// zeroing a byte range that was logically extended into the file but
// never written.
//
// truncate_block_free (spec §4.3) is implemented in package crawler
// instead, since the design describes it as walking the subtree "via the
// blockno callback channel of the read-only crawler" — it is grounded on
// crawl_blocknos and would otherwise create an import cycle with this
// package's use by crawl_tree.
package tree

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/blockhelpers"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// MaxNBlocks returns a tree of the given height's leaf capacity:
// 512^height.
func MaxNBlocks(height uint8) uint64 {
	n := uint64(1)
	for i := uint8(0); i < height; i++ {
		n *= types.IndirectFanout
	}
	return n
}

// MaxBytes returns the byte capacity of a tree of the given height.
func MaxBytes(height uint8) uint64 {
	return MaxNBlocks(height) * types.BlockSize
}

// Height returns the minimum height whose capacity (in bytes) is at least
// nbytes.
func Height(nbytes uint64) uint8 {
	var h uint8
	for MaxBytes(h) < nbytes {
		h++
		if h > types.MaxHeight {
			panic(fmt.Errorf("tree: required height exceeds maximum %d: %w", types.MaxHeight, types.ErrCorrupt))
		}
	}
	return h
}

// Span returns the number of bytes addressed by one child slot of an
// indirect node at the given height: 4096 * 512^(height-1).
func Span(height uint8) uint64 {
	if height == 0 {
		return types.BlockSize
	}
	return MaxBytes(height - 1)
}

// ChangeHeight grows or shrinks root to newHeight.
//
// Growing wraps the existing subtree under a chain of one-entry indirect
// blocks, installing Invalid for sibling entries that correspond to
// not-yet-valid bytes (these become holes). Shrinking follows child[0]
// down; the caller must have already freed the trailing indirect blocks
// via truncate_block_free before calling this in the shrink direction.
//
// The returned TreeRoot's address is computed fresh; the caller decides
// in-place vs shadowed publication (spec §4.3).
func ChangeHeight(h *blockhelpers.Helper, root types.TreeRoot, newHeight uint8, commit types.CrawlCommit) (types.TreeRoot, error) {
	if newHeight == root.Height() {
		return root, nil
	}
	if newHeight > root.Height() {
		return growHeight(h, root, newHeight)
	}
	return shrinkHeight(h, root, newHeight)
}

func growHeight(h *blockhelpers.Helper, root types.TreeRoot, newHeight uint8) (types.TreeRoot, error) {
	addr := root.Addr()
	height := root.Height()
	for height < newHeight {
		newAddr, buf, err := h.CowBlockHole(0, 8)
		if err != nil {
			return types.TreeRoot{}, err
		}
		ib := types.DecodeIndirectBlock(buf)
		ib[0] = addr
		for i := 1; i < types.IndirectFanout; i++ {
			ib[i] = types.Invalid
		}
		types.EncodeIndirectBlock(ib, buf)
		if err := h.Dev.WriteBlock(newAddr, buf); err != nil {
			return types.TreeRoot{}, err
		}
		addr = newAddr
		height++
	}
	return types.TreeRoot{HA: types.PackHeightAddr(newHeight, addr), NBytes: root.NBytes}, nil
}

func shrinkHeight(h *blockhelpers.Helper, root types.TreeRoot, newHeight uint8) (types.TreeRoot, error) {
	addr := root.Addr()
	height := root.Height()
	for height > newHeight {
		if addr == types.Invalid {
			height--
			continue
		}
		buf, err := h.Dev.ReadBlock(addr)
		if err != nil {
			return types.TreeRoot{}, err
		}
		ib := types.DecodeIndirectBlock(buf)
		addr = ib[0]
		height--
	}
	return types.TreeRoot{HA: types.PackHeightAddr(newHeight, addr), NBytes: root.NBytes}, nil
}

// ZeroRange clears the byte range [begin, end) where begin >= valid: a
// region that is logically part of the file (because of a grow) but was
// never written. It walks the tree, clearing indirect entries wholly
// inside the range to Invalid (turning them into holes) and recursively
// zeroing partial leaves/indirects at the boundary, shadowing every
// touched block through h (spec §4.2) unless it is already Fresh in the
// current transaction, so an abort leaves pre-transaction blocks
// byte-identical and a crash mid-walk never exposes a torn mutation of a
// still-referenced block.
func ZeroRange(h *blockhelpers.Helper, root types.TreeRoot, begin, end uint64) (types.TreeRoot, error) {
	if begin >= end {
		return root, nil
	}
	newAddr, err := zeroRange(h, root.Addr(), root.Height(), 0, begin, end)
	if err != nil {
		return types.TreeRoot{}, err
	}
	return types.TreeRoot{HA: types.PackHeightAddr(root.Height(), newAddr), NBytes: root.NBytes}, nil
}

func zeroRange(h *blockhelpers.Helper, addr types.BlockAddr, height uint8, blockoff, begin, end uint64) (types.BlockAddr, error) {
	if addr == types.Invalid {
		return types.Invalid, nil
	}
	if height == 0 {
		lo, hi := clampRange(blockoff, types.BlockSize, begin, end)
		if lo >= hi {
			return addr, nil
		}
		newAddr, buf, err := h.CowBlock(addr, uint32(lo-blockoff), uint32(hi-lo), types.BlockSize)
		if err != nil {
			return 0, err
		}
		zero := buf[lo-blockoff : hi-blockoff]
		for i := range zero {
			zero[i] = 0
		}
		if err := h.Dev.WriteBlock(newAddr, buf); err != nil {
			return 0, err
		}
		return newAddr, nil
	}

	span := Span(height)
	fresh := h.Fresh.Is(addr)
	buf, err := h.Dev.ReadBlock(addr)
	if err != nil {
		return 0, err
	}
	ib := types.DecodeIndirectBlock(buf)
	changed := false
	for i := 0; i < types.IndirectFanout; i++ {
		childOff := blockoff + uint64(i)*span
		if childOff >= end {
			break
		}
		if childOff+span <= begin {
			continue
		}
		if ib[i] == types.Invalid {
			continue
		}
		if childOff >= begin && childOff+span <= end {
			ib[i] = types.Invalid
			changed = true
			continue
		}
		newChild, err := zeroRange(h, ib[i], height-1, childOff, begin, end)
		if err != nil {
			return 0, err
		}
		if newChild != ib[i] {
			ib[i] = newChild
			changed = true
		}
	}
	if !changed {
		return addr, nil
	}

	if fresh {
		types.EncodeIndirectBlock(ib, buf)
		if err := h.Dev.WriteBlock(addr, buf); err != nil {
			return 0, err
		}
		return addr, nil
	}

	newAddr, buf2, err := h.CowBlockEntire(addr)
	if err != nil {
		return 0, err
	}
	ib2 := types.DecodeIndirectBlock(buf2)
	*ib2 = *ib
	types.EncodeIndirectBlock(ib2, buf2)
	if err := h.Dev.WriteBlock(newAddr, buf2); err != nil {
		return 0, err
	}
	return newAddr, nil
}

func clampRange(blockoff, blocksize, begin, end uint64) (uint64, uint64) {
	lo := begin
	if lo < blockoff {
		lo = blockoff
	}
	hi := end
	if hi > blockoff+blocksize {
		hi = blockoff + blocksize
	}
	return lo, hi
}
