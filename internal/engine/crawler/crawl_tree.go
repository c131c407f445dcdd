package crawler

import (
	"github.com/deploymenttheory/go-bpram/internal/engine/tree"
	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// CrawlTree performs the three preparations spec §4.4 requires before
// descending, then descends and returns the tree's new root descriptor.
// It never decides how that descriptor is published into its container
// (an inode's embedded TreeRoot, or the superblock) — see DiffRoot,
// which txn's publish step uses to compare the returned root against the
// original and choose an atomic single-word store or a full-pair write.
func (c *Crawler) CrawlTree(root types.TreeRoot, off, size uint64, mode types.CrawlCommit, v interfaces.LeafVisitor) (types.TreeRoot, error) {
	working := root

	// 1. Grow height if the write extends past current capacity.
	needHeight := tree.Height(off + size)
	if needHeight > working.Height() {
		grown, err := tree.ChangeHeight(c.Helper, working, needHeight, mode)
		if err != nil {
			return types.TreeRoot{}, err
		}
		working = grown
	}

	// 2. Zero-initialize the gap between current valid bytes and the
	// write start, so a later read sees holes there.
	if off > working.NBytes {
		zeroed, err := tree.ZeroRange(c.Helper, working, working.NBytes, off)
		if err != nil {
			return types.TreeRoot{}, err
		}
		working = zeroed
	}

	// 3. A write spanning across the current EOF forces both addr and
	// nbytes to change together, which can't land in one atomic store —
	// force COPY so the caller's diff sees both words changed.
	effectiveMode := mode
	if off < working.NBytes && off+size > working.NBytes {
		effectiveMode = types.CrawlCopy
	}

	newAddr, _, err := c.descend(working, off, size, effectiveMode, v)
	if err != nil {
		return types.TreeRoot{}, err
	}

	newNBytes := working.NBytes
	if off+size > newNBytes {
		newNBytes = off + size
	}

	return types.TreeRoot{HA: types.PackHeightAddr(working.Height(), newAddr), NBytes: newNBytes}, nil
}

func (c *Crawler) descend(root types.TreeRoot, off, size uint64, mode types.CrawlCommit, v interfaces.LeafVisitor) (types.BlockAddr, interfaces.Step, error) {
	if root.Height() == 0 {
		valid := root.NBytes
		if valid > types.BlockSize {
			valid = types.BlockSize
		}
		return c.crawlLeaf(root.Addr(), 0, uint32(off), uint32(size), uint32(valid), mode, v)
	}
	return c.crawlIndir(root.Addr(), root.Height(), 0, off, size, root.NBytes, mode, v)
}

// RootChange classifies which half of a TreeRoot's packed fields changed
// between two crawls, per spec §4.8: publication is a single atomic
// transition of the packed (height,addr) word or of nbytes; a change to
// both forces the container holding this TreeRoot to be copied.
type RootChange int

const (
	RootUnchanged RootChange = iota
	RootAddrOnly
	RootNBytesOnly
	RootBoth
)

// DiffRoot classifies how newRoot differs from oldRoot.
func DiffRoot(oldRoot, newRoot types.TreeRoot) RootChange {
	addrChanged := oldRoot.HA != newRoot.HA
	nbytesChanged := oldRoot.NBytes != newRoot.NBytes
	switch {
	case addrChanged && nbytesChanged:
		return RootBoth
	case addrChanged:
		return RootAddrOnly
	case nbytesChanged:
		return RootNBytesOnly
	default:
		return RootUnchanged
	}
}
