package dirent_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bpram/internal/engine/alloc"
	"github.com/deploymenttheory/go-bpram/internal/engine/blockhelpers"
	"github.com/deploymenttheory/go-bpram/internal/engine/crawler"
	"github.com/deploymenttheory/go-bpram/internal/engine/dirent"
	"github.com/deploymenttheory/go-bpram/internal/types"
	"github.com/deploymenttheory/go-bpram/testutil"
)

func newOps(t *testing.T, nblocks uint64) (*dirent.Ops, *alloc.Bitmap) {
	t.Helper()
	dev := testutil.NewMemDevice(nblocks)
	blocks := alloc.New(nblocks)
	// Reserve the invalid address and the superblock pair, as format does.
	blocks.Set(0)
	blocks.Set(1)
	blocks.Set(2)
	helper := blockhelpers.New(dev, blocks, blockhelpers.NewFreshSet())
	return dirent.New(crawler.New(dev, blocks, helper)), blocks
}

func TestPlugThenFind(t *testing.T) {
	o, blocks := newOps(t, 64)
	// An empty directory has no blocks yet, so the very first insert
	// always falls through plug to append.
	root, err := o.PlugOrAppend(types.TreeRoot{}, types.InoT(5), types.FileTypeReg, "hello.txt")
	require.NoError(t, err)
	blocks.Commit()

	m, found, err := o.Find(root, "hello.txt")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.InoT(5), m.Entry.Ino)
	require.Equal(t, types.FileTypeReg, m.Entry.FileType)
}

func TestFindMissingReturnsNotFound(t *testing.T) {
	o, blocks := newOps(t, 64)
	root, err := o.PlugOrAppend(types.TreeRoot{}, types.InoT(5), types.FileTypeReg, "a")
	require.NoError(t, err)
	blocks.Commit()

	_, found, err := o.Find(root, "nope")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPlugReusesClearedSlot(t *testing.T) {
	o, blocks := newOps(t, 64)
	root, err := o.PlugOrAppend(types.TreeRoot{}, types.InoT(5), types.FileTypeReg, "a")
	require.NoError(t, err)
	blocks.Commit()

	m, found, err := o.Find(root, "a")
	require.NoError(t, err)
	require.True(t, found)

	root, err = o.ClearIno(root, m.Offset)
	require.NoError(t, err)
	blocks.Commit()

	_, found, err = o.Find(root, "a")
	require.NoError(t, err)
	require.False(t, found, "cleared entries must not match find")

	root, ok, err := o.Plug(root, types.InoT(9), types.FileTypeReg, "b")
	require.NoError(t, err)
	require.True(t, ok, "plug should reuse the cleared slot, not require append")
	blocks.Commit()

	m2, found, err := o.Find(root, "b")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.InoT(9), m2.Entry.Ino)
}

func TestPlugFallsBackToAppendWhenBlockIsFull(t *testing.T) {
	o, blocks := newOps(t, 64)
	root := types.TreeRoot{}
	added := 0
	for {
		name := fmt.Sprintf("name-%04d", added)
		var err error
		root, err = o.PlugOrAppend(root, types.InoT(added+1), types.FileTypeReg, name)
		require.NoError(t, err)
		blocks.Commit()
		added++
		if root.NBytes > types.BlockSize {
			break
		}
	}
	require.Greater(t, root.NBytes, uint64(types.BlockSize))

	m, found, err := o.Find(root, fmt.Sprintf("name-%04d", added-1))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.InoT(added), m.Entry.Ino)
}

func TestSetInoRepointsEntryInPlace(t *testing.T) {
	o, blocks := newOps(t, 64)
	root, err := o.PlugOrAppend(types.TreeRoot{}, types.InoT(1), types.FileTypeReg, "x")
	require.NoError(t, err)
	blocks.Commit()

	m, found, err := o.Find(root, "x")
	require.NoError(t, err)
	require.True(t, found)

	root, err = o.SetIno(root, m.Offset, types.InoT(42))
	require.NoError(t, err)
	blocks.Commit()

	m2, found, err := o.Find(root, "x")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.InoT(42), m2.Entry.Ino)
}

func TestPlugRejectsNameTooLong(t *testing.T) {
	o, _ := newOps(t, 64)
	longName := make([]byte, types.MaxNameLen+1)
	for i := range longName {
		longName[i] = 'a'
	}
	_, err := o.PlugOrAppend(types.TreeRoot{}, types.InoT(1), types.FileTypeReg, string(longName))
	require.ErrorIs(t, err, types.ErrNameTooLong)
}
