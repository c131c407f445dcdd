// Package crawler implements the generic tree crawl described in spec
// §4.4: crawl_leaf, crawl_indir, and crawl_tree, plus the read-only
// crawl_blocknos variant and the inode/data adapters built on top of
// them. It is the hardest and largest component of the design.
//
// Grounded on internal/managers/btrees/btree_navigator.go's
// GetChildNode/extractChildOID* descent shape and
// internal/managers/btrees/btree_searcher.go's recursive find-then-recurse
// control flow, generalized from read-only B-tree traversal to the
// four-mode mutate-in-place-or-shadow decision machine spec §4.4
// describes.
package crawler

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/blockhelpers"
	"github.com/deploymenttheory/go-bpram/internal/engine/media"
	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Crawler bundles the device, allocator, and CoW helper every crawl needs.
type Crawler struct {
	Dev    interfaces.BlockDevice
	Blocks interfaces.Allocator
	Helper *blockhelpers.Helper
}

// New builds a Crawler.
func New(dev interfaces.BlockDevice, blocks interfaces.Allocator, helper *blockhelpers.Helper) *Crawler {
	return &Crawler{Dev: dev, Blocks: blocks, Helper: helper}
}

// crawlLeaf visits (and, depending on mode, mutates) one leaf block.
// off/size/valid are relative to the leaf's own byte window [0, BlockSize).
func (c *Crawler) crawlLeaf(addr types.BlockAddr, blockoff uint64, off, size, valid uint32, mode types.CrawlCommit, v interfaces.LeafVisitor) (types.BlockAddr, interfaces.Step, error) {
	if addr == types.Invalid {
		if mode == types.CrawlNone {
			step, err := v.VisitLeaf(blockoff, media.ZeroBlock, off, size, valid, types.CrawlNone)
			return types.Invalid, step, err
		}
		newAddr, buf, err := c.Helper.CowBlockHole(off, size)
		if err != nil {
			return 0, 0, err
		}
		step, err := v.VisitLeaf(blockoff, buf, off, size, valid, types.CrawlFree)
		if err != nil {
			return 0, 0, err
		}
		if err := c.Dev.WriteBlock(newAddr, buf); err != nil {
			return 0, 0, err
		}
		return newAddr, step, nil
	}

	buf, err := c.Dev.ReadBlock(addr)
	if err != nil {
		return 0, 0, err
	}

	switch mode {
	case types.CrawlNone:
		step, err := v.VisitLeaf(blockoff, buf, off, size, valid, types.CrawlNone)
		return addr, step, err

	case types.CrawlFree:
		step, err := v.VisitLeaf(blockoff, buf, off, size, valid, types.CrawlFree)
		if err != nil {
			return 0, 0, err
		}
		if err := c.Dev.WriteBlock(addr, buf); err != nil {
			return 0, 0, err
		}
		return addr, step, nil

	case types.CrawlAtomic:
		if off%8 == 0 && size <= 8 {
			step, err := v.VisitLeaf(blockoff, buf, off, size, valid, types.CrawlAtomic)
			if err != nil {
				return 0, 0, err
			}
			if err := c.Dev.WriteAt(addr, off, buf[off:off+size]); err != nil {
				return 0, 0, err
			}
			return addr, step, nil
		}
		fallthrough

	case types.CrawlCopy:
		newAddr, buf2, err := c.Helper.CowBlock(addr, off, size, valid)
		if err != nil {
			return 0, 0, err
		}
		step, err := v.VisitLeaf(blockoff, buf2, off, size, valid, types.CrawlFree)
		if err != nil {
			return 0, 0, err
		}
		if err := c.Dev.WriteBlock(newAddr, buf2); err != nil {
			return 0, 0, err
		}
		return newAddr, step, nil

	default:
		return 0, 0, fmt.Errorf("crawler: unknown commit mode %v: %w", mode, types.ErrInvalidArgument)
	}
}

// clampLocal intersects the absolute byte range [off, off+size) with one
// child's window [begin, begin+spanLen) and returns it in coordinates
// local to that child.
func clampLocal(off, size uint64, begin, spanLen uint64) (localOff, localSize uint64) {
	lo := off
	if lo < begin {
		lo = begin
	}
	hi := off + size
	if hi > begin+spanLen {
		hi = begin + spanLen
	}
	if lo >= hi {
		return 0, 0
	}
	return lo - begin, hi - lo
}

func clampValid(valid uint64, begin, spanLen uint64) uint64 {
	if valid <= begin {
		return 0
	}
	v := valid - begin
	if v > spanLen {
		v = spanLen
	}
	return v
}
