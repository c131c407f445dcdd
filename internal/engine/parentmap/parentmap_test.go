package parentmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bpram/internal/engine/parentmap"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

func TestFromDiscoverySeedsEntries(t *testing.T) {
	m := parentmap.FromDiscovery(map[types.InoT]types.InoT{
		types.RootIno: types.RootIno,
		2:             types.RootIno,
	})
	p, ok := m.Parent(2)
	require.True(t, ok)
	require.Equal(t, types.RootIno, p)
	require.Equal(t, 2, m.Len())
}

func TestMoveUpdatesParent(t *testing.T) {
	m := parentmap.New()
	m.Set(5, types.RootIno)
	m.Set(6, types.InoT(5))
	m.Move(6, types.RootIno)
	p, ok := m.Parent(6)
	require.True(t, ok)
	require.Equal(t, types.RootIno, p)
}

func TestDeleteRemovesEntry(t *testing.T) {
	m := parentmap.New()
	m.Set(5, types.RootIno)
	m.Delete(5)
	_, ok := m.Parent(5)
	require.False(t, ok)
}
