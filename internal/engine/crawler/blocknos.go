package crawler

import (
	"github.com/deploymenttheory/go-bpram/internal/engine/tree"
	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// CrawlBlocknos is the read-only variant that yields every blockno
// touched by a tree (indirect nodes and leaves), used by mount discovery
// to reconstruct the block bitmap (spec §4.4, §4.6).
func (c *Crawler) CrawlBlocknos(root types.TreeRoot, v interfaces.BlocknoVisitor) error {
	if root.Addr() == types.Invalid {
		return nil
	}
	_, err := c.walkBlocknos(root.Addr(), root.Height(), v)
	return err
}

func (c *Crawler) walkBlocknos(addr types.BlockAddr, height uint8, v interfaces.BlocknoVisitor) (interfaces.Step, error) {
	if addr == types.Invalid {
		return interfaces.StepContinue, nil
	}
	step, err := v.VisitBlockno(addr, height)
	if err != nil || step == interfaces.StepStop {
		return step, err
	}
	if height == 0 {
		return interfaces.StepContinue, nil
	}
	buf, err := c.Dev.ReadBlock(addr)
	if err != nil {
		return 0, err
	}
	ib := types.DecodeIndirectBlock(buf)
	for _, child := range ib {
		if child == types.Invalid {
			continue
		}
		step, err := c.walkBlocknos(child, height-1, v)
		if err != nil {
			return 0, err
		}
		if step == interfaces.StepStop {
			return step, nil
		}
	}
	return interfaces.StepContinue, nil
}

// TruncateBlockFree frees every block strictly beyond newSize (spec
// §4.3). A block is freed only when its entire byte span lies at or past
// newSize; an indirect node straddling the boundary is kept but has its
// now-entirely-beyond children freed and their pointers cleared to
// Invalid, so the tree never holds a dangling reference to a freed block.
func (c *Crawler) TruncateBlockFree(root types.TreeRoot, newSize uint64) (types.TreeRoot, error) {
	if root.Addr() == types.Invalid {
		nb := root.NBytes
		if nb > newSize {
			nb = newSize
		}
		return types.TreeRoot{HA: root.HA, NBytes: nb}, nil
	}
	newAddr, err := c.truncateFree(root.Addr(), root.Height(), 0, newSize)
	if err != nil {
		return types.TreeRoot{}, err
	}
	nb := root.NBytes
	if nb > newSize {
		nb = newSize
	}
	return types.TreeRoot{HA: types.PackHeightAddr(root.Height(), newAddr), NBytes: nb}, nil
}

func (c *Crawler) truncateFree(addr types.BlockAddr, height uint8, blockoff uint64, newSize uint64) (types.BlockAddr, error) {
	if addr == types.Invalid {
		return types.Invalid, nil
	}
	var span uint64
	if height == 0 {
		span = types.BlockSize
	} else {
		span = tree.MaxBytes(height)
	}

	if blockoff >= newSize {
		if height > 0 {
			buf, err := c.Dev.ReadBlock(addr)
			if err != nil {
				return 0, err
			}
			ib := types.DecodeIndirectBlock(buf)
			childSpan := tree.Span(height)
			for i, child := range ib {
				if child == types.Invalid {
					continue
				}
				if _, err := c.truncateFree(child, height-1, blockoff+uint64(i)*childSpan, newSize); err != nil {
					return 0, err
				}
			}
		}
		c.Blocks.Free(uint64(addr))
		return types.Invalid, nil
	}

	if blockoff+span <= newSize {
		return addr, nil
	}

	if height == 0 {
		// Straddles the boundary: the partial leaf survives; its tail is
		// zeroed by tree.ZeroRange / truncate_block_zero, not freed here.
		return addr, nil
	}

	buf, err := c.Dev.ReadBlock(addr)
	if err != nil {
		return 0, err
	}
	ib := types.DecodeIndirectBlock(buf)
	childSpan := tree.Span(height)
	dirty := false
	for i, child := range ib {
		if child == types.Invalid {
			continue
		}
		childBegin := blockoff + uint64(i)*childSpan
		newChild, err := c.truncateFree(child, height-1, childBegin, newSize)
		if err != nil {
			return 0, err
		}
		if newChild != child {
			ib[i] = newChild
			dirty = true
		}
	}
	if dirty {
		types.EncodeIndirectBlock(ib, buf)
		if err := c.Dev.WriteBlock(addr, buf); err != nil {
			return 0, err
		}
	}
	return addr, nil
}
