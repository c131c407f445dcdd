package fsops_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bpram/internal/types"
)

func TestRenameSelfIsNoopButBumpsCTime(t *testing.T) {
	o := newFixture(t, 64)
	ino, err := o.Create(types.RootIno, "a", 0644)
	require.NoError(t, err)
	before, err := o.Getattr(ino)
	require.NoError(t, err)

	require.NoError(t, o.Rename(types.RootIno, "a", types.RootIno, "a"))

	after, err := o.Getattr(ino)
	require.NoError(t, err)
	require.Equal(t, before.Generation, after.Generation)
	require.Equal(t, before.Size, after.Size)
	require.GreaterOrEqual(t, after.CTime, before.CTime)
}

func TestRenameAcrossDirectoriesMovesFileWithoutNlinksChange(t *testing.T) {
	o := newFixture(t, 64)
	a, err := o.Mkdir(types.RootIno, "a")
	require.NoError(t, err)
	b, err := o.Mkdir(types.RootIno, "b")
	require.NoError(t, err)
	x, err := o.Create(a, "x", 0644)
	require.NoError(t, err)
	beforeX, err := o.Getattr(x)
	require.NoError(t, err)
	aBefore, err := o.Getattr(a)
	require.NoError(t, err)
	bBefore, err := o.Getattr(b)
	require.NoError(t, err)

	require.NoError(t, o.Rename(a, "x", b, "x"))

	_, _, err = o.Lookup(a, "x")
	require.ErrorIs(t, err, types.ErrNotFound)
	movedIno, _, err := o.Lookup(b, "x")
	require.NoError(t, err)
	require.Equal(t, x, movedIno)

	afterX, err := o.Getattr(x)
	require.NoError(t, err)
	require.Equal(t, beforeX.Generation, afterX.Generation)
	require.GreaterOrEqual(t, afterX.CTime, beforeX.CTime)

	aAfter, err := o.Getattr(a)
	require.NoError(t, err)
	require.Equal(t, aBefore.NLinks, aAfter.NLinks)
	bAfter, err := o.Getattr(b)
	require.NoError(t, err)
	require.Equal(t, bBefore.NLinks, bAfter.NLinks)
}

func TestRenameDirectoryAdjustsParentNlinks(t *testing.T) {
	o := newFixture(t, 64)
	a, err := o.Mkdir(types.RootIno, "a")
	require.NoError(t, err)
	b, err := o.Mkdir(types.RootIno, "b")
	require.NoError(t, err)
	sub, err := o.Mkdir(a, "sub")
	require.NoError(t, err)

	aBefore, err := o.Getattr(a)
	require.NoError(t, err)
	bBefore, err := o.Getattr(b)
	require.NoError(t, err)

	require.NoError(t, o.Rename(a, "sub", b, "sub"))

	aAfter, err := o.Getattr(a)
	require.NoError(t, err)
	require.Equal(t, aBefore.NLinks-1, aAfter.NLinks)
	bAfter, err := o.Getattr(b)
	require.NoError(t, err)
	require.Equal(t, bBefore.NLinks+1, bAfter.NLinks)

	movedIno, _, err := o.Lookup(b, "sub")
	require.NoError(t, err)
	require.Equal(t, sub, movedIno)
}

func TestRenameRejectsExistingDestinationName(t *testing.T) {
	o := newFixture(t, 64)
	_, err := o.Create(types.RootIno, "a", 0644)
	require.NoError(t, err)
	_, err = o.Create(types.RootIno, "b", 0644)
	require.NoError(t, err)

	err = o.Rename(types.RootIno, "a", types.RootIno, "b")
	require.ErrorIs(t, err, types.ErrExists)
}

func TestRenameRejectsMovingDirectoryIntoItself(t *testing.T) {
	o := newFixture(t, 64)
	a, err := o.Mkdir(types.RootIno, "a")
	require.NoError(t, err)

	err = o.Rename(types.RootIno, "a", a, "a")
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}
