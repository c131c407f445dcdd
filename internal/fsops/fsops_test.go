package fsops_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bpram/internal/engine/format"
	"github.com/deploymenttheory/go-bpram/internal/engine/parentmap"
	"github.com/deploymenttheory/go-bpram/internal/fsops"
	"github.com/deploymenttheory/go-bpram/internal/types"
	"github.com/deploymenttheory/go-bpram/testutil"
)

// newFixture formats a fresh in-memory image of n blocks and returns an
// Ops over it, ready to drive operations against.
func newFixture(t *testing.T, n uint64) *fsops.Ops {
	t.Helper()
	dev := testutil.NewMemDevice(n)
	res, err := format.Format(dev, format.Options{CommitMode: types.CommitModeSCSP})
	require.NoError(t, err)
	return fsops.New(dev, res.Blocks, res.Inodes, res.Crawler, parentmap.New(), res.Superblock)
}

func TestGetattrOnRoot(t *testing.T) {
	o := newFixture(t, 64)

	attr, err := o.Getattr(types.RootIno)
	require.NoError(t, err)
	require.Equal(t, types.RootIno, attr.Ino)
	require.EqualValues(t, 2, attr.NLinks)
	require.Equal(t, types.ModeDir|0755, attr.Mode)
}

func TestGetattrUnknownInodeFails(t *testing.T) {
	o := newFixture(t, 64)

	_, err := o.Getattr(types.InoT(999))
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestSetattrPatchesModeAndBumpsCTime(t *testing.T) {
	o := newFixture(t, 64)
	before, err := o.Getattr(types.RootIno)
	require.NoError(t, err)

	mode := uint32(types.ModeDir | 0700)
	after, err := o.Setattr(types.RootIno, fsops.SetattrArgs{Mode: &mode})
	require.NoError(t, err)
	require.Equal(t, mode, after.Mode)
	require.GreaterOrEqual(t, after.CTime, before.CTime)
}

func TestSetattrGrowThenShrinkZeroesTail(t *testing.T) {
	o := newFixture(t, 64)
	ino, err := o.Create(types.RootIno, "f", 0644)
	require.NoError(t, err)

	_, err = o.Write(ino, 0, []byte("hello world"))
	require.NoError(t, err)

	grown := uint64(64)
	_, err = o.Setattr(ino, fsops.SetattrArgs{Size: &grown})
	require.NoError(t, err)

	shrunk := uint64(5)
	attr, err := o.Setattr(ino, fsops.SetattrArgs{Size: &shrunk})
	require.NoError(t, err)
	require.EqualValues(t, 5, attr.Size)

	grownAgain := uint64(64)
	_, err = o.Setattr(ino, fsops.SetattrArgs{Size: &grownAgain})
	require.NoError(t, err)

	data, err := o.Read(ino, 0, 64)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data[:5])
	for _, b := range data[5:] {
		require.Zero(t, b)
	}
}
