package p2pnet

import (
	"testing"

	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/stretchr/testify/require"
)

func TestNewIdentityFromSeedDeterministic(t *testing.T) {
	seed := []byte("test-seed-value")
	id1, err := NewIdentityFromSeed(seed, 1337, []string{"0x01"})
	require.NoError(t, err)
	id2, err := NewIdentityFromSeed(seed, 1337, []string{"0x01"})
	require.NoError(t, err)

	require.Equal(t, id1.ID(), id2.ID(), "same seed must derive the same node identity")
}

func TestNewIdentityFromSeedDiffersByInput(t *testing.T) {
	id1, err := NewIdentityFromSeed([]byte("seed-a"), 1337, nil)
	require.NoError(t, err)
	id2, err := NewIdentityFromSeed([]byte("seed-b"), 1337, nil)
	require.NoError(t, err)

	require.NotEqual(t, id1.ID(), id2.ID())
}

func TestIdentityLocalNodeCarriesChainAndMempoolEntries(t *testing.T) {
	id, err := NewIdentity(1337, []string{"0x01", "0x02"})
	require.NoError(t, err)

	ln := id.LocalNode(enode.OpenDB(""), "127.0.0.1", 4337, 4337)
	node := ln.Node()

	chainID, ok := nodeChainID(node)
	require.True(t, ok)
	require.EqualValues(t, 1337, chainID)

	mempoolIDs, ok := nodeMempoolIDs(node)
	require.True(t, ok)
	require.Equal(t, []string{"0x01", "0x02"}, mempoolIDs)
}

func TestNodeMempoolIDsEmptyWhenNoneAdvertised(t *testing.T) {
	id, err := NewIdentity(1, nil)
	require.NoError(t, err)
	ln := id.LocalNode(enode.OpenDB(""), "127.0.0.1", 30303, 30303)

	mempoolIDs, ok := nodeMempoolIDs(ln.Node())
	require.True(t, ok)
	require.Empty(t, mempoolIDs)
}
