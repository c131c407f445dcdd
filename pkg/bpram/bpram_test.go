package bpram_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bpram/internal/types"
	"github.com/deploymenttheory/go-bpram/pkg/bpram"
)

func TestFormatThenOpenRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bpram.img")

	fs, err := bpram.Format(path, 64, types.CommitModeSCSP)
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	reopened, err := bpram.Open(path, true)
	require.NoError(t, err)
	defer reopened.Close()

	attr, err := reopened.Ops.Stat(types.RootIno)
	require.NoError(t, err)
	require.EqualValues(t, 2, attr.NLinks)
	require.EqualValues(t, types.ModeDir, attr.Mode&types.ModeFmt)
}

func TestCreateWriteReadSurvivesRemount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bpram.img")

	fs, err := bpram.Format(path, 64, types.CommitModeSCSP)
	require.NoError(t, err)

	ino, err := fs.Ops.Create(types.RootIno, "a.txt", 0o644)
	require.NoError(t, err)
	n, err := fs.Ops.Write(ino, 0, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, fs.Close())

	reopened, err := bpram.Open(path, true)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Ops.Read(ino, 0, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	mismatches, err := reopened.Fsck()
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func TestOpenRejectsMissingImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bpram.img")
	fs, err := bpram.Format(path, 16, types.CommitModeSP)
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	_, err = bpram.Open(path+".missing", false)
	require.Error(t, err)
}
