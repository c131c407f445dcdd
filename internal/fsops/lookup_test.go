package fsops_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bpram/internal/types"
)

func TestLookupDotAndDotDot(t *testing.T) {
	o := newFixture(t, 64)
	sub, err := o.Mkdir(types.RootIno, "sub")
	require.NoError(t, err)

	ino, ft, err := o.Lookup(sub, ".")
	require.NoError(t, err)
	require.Equal(t, sub, ino)
	require.Equal(t, types.FileTypeDir, ft)

	ino, ft, err = o.Lookup(sub, "..")
	require.NoError(t, err)
	require.Equal(t, types.RootIno, ino)
	require.Equal(t, types.FileTypeDir, ft)
}

func TestLookupMissingNameFails(t *testing.T) {
	o := newFixture(t, 64)
	_, _, err := o.Lookup(types.RootIno, "nope")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestReaddirListsSyntheticAndRealEntries(t *testing.T) {
	o := newFixture(t, 64)
	_, err := o.Mkdir(types.RootIno, "a")
	require.NoError(t, err)
	_, err = o.Create(types.RootIno, "b", 0644)
	require.NoError(t, err)

	entries, err := o.Readdir(types.RootIno, 0, 0)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	require.ElementsMatch(t, []string{".", "..", "a", "b"}, names)
}

func TestReaddirRespectsOffsetAndBudget(t *testing.T) {
	o := newFixture(t, 64)
	_, err := o.Mkdir(types.RootIno, "a")
	require.NoError(t, err)
	_, err = o.Mkdir(types.RootIno, "b")
	require.NoError(t, err)

	page, err := o.Readdir(types.RootIno, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := o.Readdir(types.RootIno, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 2)
}
