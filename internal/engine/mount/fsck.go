package mount

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/alloc"
	"github.com/deploymenttheory/go-bpram/internal/engine/crawler"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Mismatch describes one discrepancy a consistency re-scan found between
// the running ephemeral state and a freshly recomputed one.
type Mismatch struct {
	Kind string // "block", "inode", "nlinks"
	ID   uint64
	Want uint64
	Got  uint64
}

// Fsck reuses the mount-time discovery walk as a periodic online
// consistency re-scan (spec §1's "periodic online consistency re-scan
// reuses the mount-time discovery routines", §8 property 9): it never
// mutates media or the running bitmaps, only compares them against a
// freshly recomputed pass and reports every discrepancy.
func Fsck(c *crawler.Crawler, sb types.Superblock, runningBlocks, runningInodes *alloc.Bitmap) ([]Mismatch, error) {
	result, err := walk(c, sb)
	if err != nil {
		return nil, fmt.Errorf("fsck: %w", err)
	}

	var mismatches []Mismatch
	for id := uint64(0); id < runningBlocks.Total(); id++ {
		want := boolToUint64(result.Blocks.IsSet(id))
		got := boolToUint64(runningBlocks.IsSet(id))
		if want != got {
			mismatches = append(mismatches, Mismatch{Kind: "block", ID: id, Want: want, Got: got})
		}
	}
	for id := uint64(0); id < runningInodes.Total(); id++ {
		want := boolToUint64(result.Inodes.IsSet(id))
		got := boolToUint64(runningInodes.IsSet(id))
		if want != got {
			mismatches = append(mismatches, Mismatch{Kind: "inode", ID: id, Want: want, Got: got})
		}
	}

	inodeRoot := sb.TreeRoot()
	for ino, want := range result.NLinks {
		in, err := c.ReadInode(inodeRoot, ino)
		if err != nil {
			return nil, fmt.Errorf("fsck: reading inode %d: %w", ino, err)
		}
		if in.NLinks != want {
			mismatches = append(mismatches, Mismatch{Kind: "nlinks", ID: uint64(ino), Want: uint64(want), Got: uint64(in.NLinks)})
		}
	}
	return mismatches, nil
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
