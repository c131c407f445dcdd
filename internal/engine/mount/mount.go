package mount

import (
	"fmt"
	"sort"

	"github.com/deploymenttheory/go-bpram/internal/engine/crawler"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Mount performs the discovery walk and, if the superblock's ephemeral
// link-count state is invalid, writes the recomputed nlinks back and
// returns a superblock with EphemeralValid set (spec §4.6: "After the
// walk completes, the ephemeral-validity flag is written true").
//
// When the ephemeral state is already valid, on-media nlinks are trusted
// and left untouched — only the in-memory bitmaps and parent map are
// (re)built, since those never persist across an unmount.
func Mount(c *crawler.Crawler, sb types.Superblock) (*Result, types.Superblock, error) {
	result, err := walk(c, sb)
	if err != nil {
		return nil, types.Superblock{}, err
	}
	if sb.EphemeralValid {
		return result, sb, nil
	}

	root := sb.TreeRoot()
	inos := make([]types.InoT, 0, len(result.NLinks))
	for ino := range result.NLinks {
		inos = append(inos, ino)
	}
	sort.Slice(inos, func(i, j int) bool { return inos[i] < inos[j] })
	for _, ino := range inos {
		newRoot, err := c.SetModeAndNLinks(root, ino, result.Modes[ino], result.NLinks[ino])
		if err != nil {
			return nil, types.Superblock{}, fmt.Errorf("mount: writing back nlinks for inode %d: %w", ino, err)
		}
		root = newRoot
	}
	sb.SetTreeRoot(root)
	sb.EphemeralValid = true
	return result, sb, nil
}
