// Package bpram is the small embeddable client facade over the
// persistence engine, grounded on pkg/services/service_factory.go's
// shape: one constructor that wires the lower-level dependencies
// together, returning a single handle an external adapter (the POSIX
// filesystem-bridge spec §1 excludes) drives instead of reaching into
// internal/engine/* and internal/fsops directly.
package bpram

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/alloc"
	"github.com/deploymenttheory/go-bpram/internal/engine/blockhelpers"
	"github.com/deploymenttheory/go-bpram/internal/engine/crawler"
	"github.com/deploymenttheory/go-bpram/internal/engine/format"
	"github.com/deploymenttheory/go-bpram/internal/engine/media"
	"github.com/deploymenttheory/go-bpram/internal/engine/mount"
	"github.com/deploymenttheory/go-bpram/internal/engine/parentmap"
	"github.com/deploymenttheory/go-bpram/internal/fsops"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// FS is a mounted BPRAM image: the mapped region plus the fsops
// operation surface over it. Not safe for concurrent use, per spec §5 —
// an embedding host serializes calls under one mutex.
type FS struct {
	region *media.Region
	Ops    *fsops.Ops
}

// Format creates a new BPRAM image at path with nblocks blocks and
// mounts it, the way `bpramctl format` does (spec §1's mkfs Non-goal
// excludes the external utility, not this library entry point).
func Format(path string, nblocks uint64, commitMode types.CommitMode) (*FS, error) {
	region, err := media.Create(path, nblocks)
	if err != nil {
		return nil, fmt.Errorf("bpram: format: %w", err)
	}
	result, err := format.Format(region, format.Options{CommitMode: commitMode})
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("bpram: format: %w", err)
	}
	return newFS(region, result.Superblock, result.Blocks, result.Inodes, result.Crawler)
}

// Open mounts an existing BPRAM image at path, applying spec §9's
// dual-superblock mismatch heuristic: when the two copies agree it uses
// the primary; when they disagree it refuses to mount if strict and
// otherwise uses the secondary.
func Open(path string, strict bool) (*FS, error) {
	region, err := media.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bpram: open: %w", err)
	}
	primary, secondary, match, err := format.ReadSuperblockPair(region)
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("bpram: open: %w", err)
	}
	if primary.Magic != types.Magic {
		region.Close()
		return nil, fmt.Errorf("bpram: open: bad superblock magic %#x: %w", primary.Magic, types.ErrCorrupt)
	}
	if !match && strict {
		region.Close()
		return nil, fmt.Errorf("bpram: open: superblock pair disagree, refusing to mount: %w", types.ErrCorrupt)
	}
	sb := primary
	if !match {
		sb = secondary
	}

	// Mount discovery needs a crawler to walk the inode tree, but the
	// bitmap it reconstructs (discovered.Blocks) is what subsequent
	// operations must actually allocate against — not whatever scratch
	// bitmap this throwaway crawler was built over.
	scratchBlocks := alloc.New(sb.NBlocks)
	scratchHelper := blockhelpers.New(region, scratchBlocks, blockhelpers.NewFreshSet())
	scratchCrawler := crawler.New(region, scratchBlocks, scratchHelper)

	discovered, mounted, err := mount.Mount(scratchCrawler, sb)
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("bpram: open: mount discovery: %w", err)
	}

	helper := blockhelpers.New(region, discovered.Blocks, blockhelpers.NewFreshSet())
	c := crawler.New(region, discovered.Blocks, helper)

	return newFS(region, mounted, discovered.Blocks, discovered.Inodes, c, discovered.Parents)
}

func newFS(region *media.Region, sb types.Superblock, blocks, inodes *alloc.Bitmap, c *crawler.Crawler, discoveredParents ...map[types.InoT]types.InoT) (*FS, error) {
	var parents *parentmap.Map
	if len(discoveredParents) > 0 {
		parents = parentmap.FromDiscovery(discoveredParents[0])
	} else {
		parents = parentmap.New()
		parents.Set(types.RootIno, types.RootIno)
	}
	return &FS{
		region: region,
		Ops:    fsops.New(region, blocks, inodes, c, parents, sb),
	}, nil
}

// Fsck runs the online consistency re-scan (spec §1) against the
// currently mounted state without mutating anything.
func (fs *FS) Fsck() ([]mount.Mismatch, error) {
	return mount.Fsck(fs.Ops.Crawler(), fs.Ops.Superblock(), fs.Ops.Blocks(), fs.Ops.Inodes())
}

// Close unmaps the backing region and closes its file, without a
// barrier of its own. It does not re-verify
// consistency; callers that want that should call Fsck first.
func (fs *FS) Close() error {
	return fs.region.Close()
}
