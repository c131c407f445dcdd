package format_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bpram/internal/engine/format"
	"github.com/deploymenttheory/go-bpram/internal/types"
	"github.com/deploymenttheory/go-bpram/testutil"
)

func TestFormatFiveBlockImage(t *testing.T) {
	dev := testutil.NewMemDevice(5)
	res, err := format.Format(dev, format.Options{CommitMode: types.CommitModeSCSP})
	require.NoError(t, err)

	require.Equal(t, types.Magic, res.Superblock.Magic)
	require.True(t, res.Superblock.EphemeralValid)
	require.True(t, res.Inodes.IsSet(uint64(types.RootIno)))

	rootInode, err := res.Crawler.ReadInode(res.Superblock.TreeRoot(), types.RootIno)
	require.NoError(t, err)
	require.EqualValues(t, 2, rootInode.NLinks)
	require.True(t, rootInode.IsDir())
}

func TestFormatRejectsImageTooSmall(t *testing.T) {
	dev := testutil.NewMemDevice(2)
	_, err := format.Format(dev, format.Options{})
	require.Error(t, err)
}

func TestFormatWritesMatchingSuperblockPair(t *testing.T) {
	dev := testutil.NewMemDevice(5)
	_, err := format.Format(dev, format.Options{CommitMode: types.CommitModeSCSP})
	require.NoError(t, err)

	primary, secondary, match, err := format.ReadSuperblockPair(dev)
	require.NoError(t, err)
	require.True(t, match)
	require.Equal(t, primary.TreeRoot(), secondary.TreeRoot())
}
