// Package format implements the on-media initializer spec §1 calls "a
// trivial initializer": lay out a fresh superblock pair and a root
// directory inode over an otherwise-zeroed BPRAM region. It is the
// write path behind the `bpramctl format` subcommand, not the excluded
// external mkfs utility itself.
//
// Grounded on the teacher's container-bring-up sequencing in
// internal/managers/container/container_manager.go (open device, build
// a fresh superblock struct field-by-field, write it out), generalized
// from read-only inspection of an existing container to writing a new
// one from scratch.
package format

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-bpram/internal/engine/alloc"
	"github.com/deploymenttheory/go-bpram/internal/engine/blockhelpers"
	"github.com/deploymenttheory/go-bpram/internal/engine/crawler"
	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Options controls how Format lays out a fresh image.
type Options struct {
	CommitMode types.CommitMode
}

// Result is everything the caller needs to start driving operations
// against the freshly formatted image: the committed superblock and the
// allocators seeded to match it.
type Result struct {
	Superblock types.Superblock
	Blocks     *alloc.Bitmap
	Inodes     *alloc.Bitmap
	Crawler    *crawler.Crawler
}

// Format writes a fresh superblock pair and root directory inode to dev,
// whose total block count is already fixed (spec §8, S1: "format a
// 5-block image"). Blocks 0 (zero sentinel), 1 and 2 (superblock pair)
// are reserved; the root directory's inode record and first data block,
// if any, are allocated starting at block 3.
func Format(dev interfaces.BlockDevice, opts Options) (*Result, error) {
	nblocks := dev.TotalBlocks()
	if nblocks <= uint64(types.FirstDataBlockAddr) {
		return nil, fmt.Errorf("format: image too small: need at least %d blocks, got %d", types.FirstDataBlockAddr+1, nblocks)
	}

	blocks := alloc.New(nblocks)
	blocks.Set(uint64(types.Invalid))
	blocks.Set(uint64(types.PrimarySuperblockAddr))
	blocks.Set(uint64(types.SecondarySuperblockAddr))

	helper := blockhelpers.New(dev, blocks, blockhelpers.NewFreshSet())
	c := crawler.New(dev, blocks, helper)

	rootInode := types.Inode{
		Generation: 1,
		Mode:       types.ModeDir | 0755,
		NLinks:     2,
	}
	root, err := c.WriteInode(types.TreeRoot{}, types.RootIno, rootInode, types.CrawlCopy)
	if err != nil {
		return nil, fmt.Errorf("format: writing root inode: %w", err)
	}
	blocks.Commit()

	sb := types.Superblock{
		Magic:          types.Magic,
		Version:        types.CurrentVersion,
		UUID:           uuid.New(),
		NBlocks:        nblocks,
		CommitMode:     opts.CommitMode,
		EphemeralValid: true, // nothing but root exists yet; nlinks is already correct
	}
	sb.SetTreeRoot(root)

	buf := make([]byte, types.SuperblockSize)
	sb.Encode(buf)
	if err := dev.WriteBlock(types.PrimarySuperblockAddr, buf); err != nil {
		return nil, fmt.Errorf("format: writing primary superblock: %w", err)
	}
	if err := dev.WriteBlock(types.SecondarySuperblockAddr, buf); err != nil {
		return nil, fmt.Errorf("format: writing secondary superblock: %w", err)
	}
	if err := dev.Barrier(); err != nil {
		return nil, fmt.Errorf("format: barrier after initial layout: %w", err)
	}

	inodes := alloc.New(nblocks)
	inodes.Set(uint64(types.Invalid))
	inodes.Set(uint64(types.RootIno))

	return &Result{Superblock: sb, Blocks: blocks, Inodes: inodes, Crawler: c}, nil
}

// ReadSuperblockPair loads both on-media superblock copies and reports
// whether they agree (spec §9's mismatch heuristic); what to do on a
// disagreement is left to the caller.
func ReadSuperblockPair(dev interfaces.BlockDevice) (primary, secondary types.Superblock, match bool, err error) {
	pb, err := dev.ReadBlock(types.PrimarySuperblockAddr)
	if err != nil {
		return types.Superblock{}, types.Superblock{}, false, fmt.Errorf("format: reading primary superblock: %w", err)
	}
	sb, err := dev.ReadBlock(types.SecondarySuperblockAddr)
	if err != nil {
		return types.Superblock{}, types.Superblock{}, false, fmt.Errorf("format: reading secondary superblock: %w", err)
	}
	primary = types.DecodeSuperblock(pb)
	secondary = types.DecodeSuperblock(sb)
	match = primary.TreeRoot() == secondary.TreeRoot() && primary.Magic == secondary.Magic && primary.Version == secondary.Version
	return primary, secondary, match, nil
}
