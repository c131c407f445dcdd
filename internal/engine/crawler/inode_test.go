package crawler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bpram/internal/types"
)

func TestWriteInodeThenReadInode(t *testing.T) {
	c, _, blocks := newCrawler(t, 64)

	in := types.Inode{
		Generation: 1,
		UID:        1000,
		GID:        1000,
		Mode:       types.ModeReg | 0644,
		NLinks:     1,
	}
	root, err := c.WriteInode(types.TreeRoot{}, types.RootIno, in, types.CrawlCopy)
	require.NoError(t, err)
	blocks.Commit()

	got, err := c.ReadInode(root, types.RootIno)
	require.NoError(t, err)
	require.Equal(t, in.Generation, got.Generation)
	require.Equal(t, in.Mode, got.Mode)
	require.Equal(t, in.NLinks, got.NLinks)
}

func TestReadInodeUnallocatedIsZeroValue(t *testing.T) {
	c, _, _ := newCrawler(t, 64)
	got, err := c.ReadInode(types.TreeRoot{}, types.InoT(7))
	require.NoError(t, err)
	require.Equal(t, types.Inode{}, got)
}

func TestSetModeAndNLinksIsAtomicSingleWordUpdate(t *testing.T) {
	c, _, blocks := newCrawler(t, 64)
	in := types.Inode{Generation: 1, Mode: types.ModeDir | 0755, NLinks: 2}
	root, err := c.WriteInode(types.TreeRoot{}, types.RootIno, in, types.CrawlCopy)
	require.NoError(t, err)
	blocks.Commit()
	before := root.Addr()

	root, err = c.SetModeAndNLinks(root, types.RootIno, types.ModeDir|0755, 3)
	require.NoError(t, err)
	blocks.Commit()
	require.Equal(t, before, root.Addr(), "single aligned 8-byte field update should publish in place")

	got, err := c.ReadInode(root, types.RootIno)
	require.NoError(t, err)
	require.EqualValues(t, 3, got.NLinks)
}

func TestUpdateCTime(t *testing.T) {
	c, _, blocks := newCrawler(t, 64)
	in := types.Inode{Generation: 1, Mode: types.ModeReg}
	root, err := c.WriteInode(types.TreeRoot{}, types.RootIno, in, types.CrawlCopy)
	require.NoError(t, err)
	blocks.Commit()

	root, err = c.UpdateCTime(root, types.RootIno, 123456)
	require.NoError(t, err)
	blocks.Commit()

	got, err := c.ReadInode(root, types.RootIno)
	require.NoError(t, err)
	require.EqualValues(t, 123456, got.CTime)
}
