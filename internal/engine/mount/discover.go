// Package mount implements mount-time allocation discovery and
// link-count reconstruction (spec §4.6), reused by the online
// consistency re-scan described in SPEC_FULL.md's fsck supplement.
//
// Grounded on internal/managers/container/container_volume_manager.go's
// ListVolumes discovery-walk shape (walk an array of references,
// skip-invalid, continue past per-entry errors where safe), generalized
// from a flat OID array to a two-level inode-tree-then-directory-entries
// walk.
package mount

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/alloc"
	"github.com/deploymenttheory/go-bpram/internal/engine/crawler"
	"github.com/deploymenttheory/go-bpram/internal/engine/dirent"
	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Result is the reconstructed ephemeral state spec §3/§4.6 describes as
// "derived state": the block and inode bitmaps, the child→parent map the
// design notes call for (since ".." is synthesized, not on media), and
// the recomputed per-inode link counts.
type Result struct {
	Blocks  *alloc.Bitmap
	Inodes  *alloc.Bitmap
	Parents map[types.InoT]types.InoT
	NLinks  map[types.InoT]uint32
	Modes   map[types.InoT]uint32
}

// walk performs the single discovery pass both Mount and Fsck build on:
// every allocated inode's own data-tree blocks are marked in the block
// bitmap, and for every allocated directory inode its entries are
// scanned to recompute nlinks and the parent map (spec §4.6).
func walk(c *crawler.Crawler, sb types.Superblock) (*Result, error) {
	blocks := alloc.New(sb.NBlocks)
	blocks.Set(uint64(types.Invalid))
	blocks.Set(uint64(types.PrimarySuperblockAddr))
	blocks.Set(uint64(types.SecondarySuperblockAddr))

	inodeRoot := sb.TreeRoot()
	if err := c.CrawlBlocknos(inodeRoot, interfaces.BlocknoVisitorFunc(func(addr types.BlockAddr, height uint8) (interfaces.Step, error) {
		blocks.Set(uint64(addr))
		return interfaces.StepContinue, nil
	})); err != nil {
		return nil, fmt.Errorf("mount: walking inode tree blocks: %w", err)
	}

	capacity := inodeRoot.NBytes / types.InodeSize
	inodes := alloc.New(capacity)
	if capacity > 0 {
		inodes.Set(uint64(types.Invalid))
	}

	parents := map[types.InoT]types.InoT{}
	counts := map[types.InoT]uint32{}
	modes := map[types.InoT]uint32{}
	d := dirent.New(c)

	for ino := types.InoT(1); uint64(ino) < capacity; ino++ {
		in, err := c.ReadInode(inodeRoot, ino)
		if err != nil {
			return nil, fmt.Errorf("mount: reading inode %d: %w", ino, err)
		}
		if in.Generation == 0 {
			continue
		}
		inodes.Set(uint64(ino))
		modes[ino] = in.Mode
		counts[ino] += 0 // ensure every allocated inode appears, even with zero references
		if err := c.CrawlBlocknos(in.Data, interfaces.BlocknoVisitorFunc(func(addr types.BlockAddr, height uint8) (interfaces.Step, error) {
			blocks.Set(uint64(addr))
			return interfaces.StepContinue, nil
		})); err != nil {
			return nil, fmt.Errorf("mount: walking inode %d data blocks: %w", ino, err)
		}
		if !in.IsDir() {
			continue
		}
		if ino == types.RootIno {
			parents[ino] = ino
			counts[ino] += 2 // own "." and ".." both self-referencing
		}
		err = d.ForEachEntry(in.Data, func(e types.DirEntry) (bool, error) {
			counts[e.Ino]++
			if e.FileType == types.FileTypeDir {
				parents[e.Ino] = ino
				counts[e.Ino]++ // the child's own "."
				counts[ino]++   // this directory's ".." credit from the child
			}
			return false, nil
		})
		if err != nil {
			return nil, fmt.Errorf("mount: walking directory %d entries: %w", ino, err)
		}
	}

	return &Result{Blocks: blocks, Inodes: inodes, Parents: parents, NLinks: counts, Modes: modes}, nil
}
