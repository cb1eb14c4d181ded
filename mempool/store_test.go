package mempool

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/silius-bundler/silius-go/userop"
)

func sampleEntry(sender common.Address, nonce int64) *userop.MempoolEntry {
	op := &userop.UserOperation{
		Sender:               sender,
		Nonce:                big.NewInt(nonce),
		CallData:             []byte{0x01, 0x02},
		CallGasLimit:         big.NewInt(100_000),
		VerificationGasLimit: big.NewInt(200_000),
		PreVerificationGas:   big.NewInt(100_000),
		MaxFeePerGas:         big.NewInt(3_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
		Signature:            []byte{0x01},
	}
	outcome := &userop.ValidationOutcome{
		PreOpGas:   big.NewInt(1000),
		Prefund:    big.NewInt(2000),
		ValidAfter: time.Unix(100, 0),
		ValidUntil: time.Unix(200, 0),
		CodeHashes: []userop.CodeHash{{Address: sender, Hash: common.Hash{1}}},
		Entities:   []userop.Entity{{Kind: userop.EntityFactory, Address: common.HexToAddress("0xf1")}},
		StorageMap: []userop.StorageSlot{{Address: sender, Slot: common.Hash{2}, Value: common.Hash{3}}},
	}
	return &userop.MempoolEntry{
		Hash:        common.BytesToHash([]byte{byte(nonce)}),
		Op:          op,
		Outcome:     outcome,
		SubmittedAt: time.Unix(500, 0),
		EntryPoint:  common.HexToAddress("0xe1"),
	}
}

func TestMemStorePutGetDelete(t *testing.T) {
	s := NewMemStore()
	entry := sampleEntry(common.HexToAddress("0x1"), 0)

	require.NoError(t, s.Put(entry))

	got, ok, err := s.Get(entry.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry.Op.Sender, got.Op.Sender)

	require.NoError(t, s.Delete(entry.Hash))
	_, ok, err = s.Get(entry.Hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemStoreAllAndClear(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Put(sampleEntry(common.HexToAddress("0x1"), 0)))
	require.NoError(t, s.Put(sampleEntry(common.HexToAddress("0x2"), 1)))

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, s.Clear())
	all, err = s.All()
	require.NoError(t, err)
	require.Len(t, all, 0)
}

func TestPebbleStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mempool-db")
	s, err := OpenPebbleStore(dir)
	require.NoError(t, err)
	defer s.Close()

	entry := sampleEntry(common.HexToAddress("0x1"), 0)
	require.NoError(t, s.Put(entry))

	got, ok, err := s.Get(entry.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry.Op.Sender, got.Op.Sender)
	require.Equal(t, entry.Op.Nonce.String(), got.Op.Nonce.String())
	require.Equal(t, entry.Outcome.PreOpGas.String(), got.Outcome.PreOpGas.String())
	require.Equal(t, entry.Outcome.Prefund.String(), got.Outcome.Prefund.String())
	require.Len(t, got.Outcome.CodeHashes, 1)
	require.Len(t, got.Outcome.Entities, 1)
	require.Len(t, got.Outcome.StorageMap, 1)

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.Delete(entry.Hash))
	_, ok, err = s.Get(entry.Hash)
	require.NoError(t, err)
	require.False(t, ok)
}
