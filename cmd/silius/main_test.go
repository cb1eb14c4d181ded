package main

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/silius-bundler/silius-go/chain"
	"github.com/silius-bundler/silius-go/mempool"
	"github.com/silius-bundler/silius-go/tracer"
	"github.com/silius-bundler/silius-go/userop"
	"github.com/silius-bundler/silius-go/validation"
)

var testEntryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

type fakeChain struct {
	codes map[common.Address][]byte
}

func (f *fakeChain) GetCode(_ context.Context, addr common.Address, _ *big.Int) ([]byte, error) {
	return f.codes[addr], nil
}
func (f *fakeChain) GetBalance(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	return big.NewInt(1_000_000_000_000), nil
}
func (f *fakeChain) GetDeposit(_ context.Context, _, _ common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeChain) TraceValidation(_ context.Context, _ common.Address, _ []byte) (map[common.Address]tracer.Frame, *chain.ValidationResult, error) {
	return map[common.Address]tracer.Frame{}, &chain.ValidationResult{
		PreOpGas:   big.NewInt(50_000),
		Prefund:    big.NewInt(1_000_000_000),
		SenderInfo: chain.StakeInfo{Stake: big.NewInt(0)},
	}, nil
}
func (f *fakeChain) BlockNumber(_ context.Context) (uint64, error) { return 1, nil }
func (f *fakeChain) SuggestBaseFee(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

type fakeReputation struct{}

func (fakeReputation) Status(common.Address) userop.ReputationStatus { return userop.ReputationOk }
func (fakeReputation) IsStaked(common.Address) bool                  { return true }
func (fakeReputation) RecordSeen(common.Address)                     {}
func (fakeReputation) Penalize(common.Address)                       {}
func (fakeReputation) RecordIncluded([]common.Address)               {}

func testPool(t *testing.T) *mempool.Pool {
	t.Helper()
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	cr := &fakeChain{codes: map[common.Address][]byte{sender: {0x60, 0x00}}}
	cfg := validation.Config{
		EntryPoint:           testEntryPoint,
		MaxVerificationGas:   big.NewInt(1_500_000),
		MinPriorityFeePerGas: big.NewInt(0),
	}
	pool := mempool.New(testEntryPoint, big.NewInt(1337), cr, fakeReputation{}, nil, cfg, mempool.NewMemStore())

	for i := int64(0); i < 3; i++ {
		op := &userop.UserOperation{
			Sender:               sender,
			Nonce:                big.NewInt(i),
			CallData:             []byte{0x01},
			CallGasLimit:         big.NewInt(100_000),
			VerificationGasLimit: big.NewInt(200_000),
			PreVerificationGas:   big.NewInt(50_000),
			MaxFeePerGas:         big.NewInt(1_000_000_000),
			MaxPriorityFeePerGas: big.NewInt(1),
			Signature:            []byte{0x01},
		}
		_, err := pool.AddUserOperation(context.Background(), op)
		require.NoError(t, err)
	}
	return pool
}

func TestMempoolIDUsesLowercaseEntryPointHex(t *testing.T) {
	id := mempoolID(testEntryPoint)
	require.Equal(t, strings.ToLower(testEntryPoint.Hex()), id)
	require.Equal(t, testEntryPoint, common.HexToAddress(id))
}

func TestAggregateHashesPagesAcrossPools(t *testing.T) {
	pool := testPool(t)
	fn := aggregateHashes([]*mempool.Pool{pool})

	resp := fn(0)
	require.Len(t, resp.Hashes, 3)
	require.Equal(t, uint64(3), resp.NextOffset)

	empty := fn(resp.NextOffset)
	require.Empty(t, empty.Hashes)
}

func TestAggregateOpsByHashReturnsKnownAndOmitsUnknown(t *testing.T) {
	pool := testPool(t)
	hashes := aggregateHashes([]*mempool.Pool{pool})(0).Hashes
	require.Len(t, hashes, 3)

	fn := aggregateOpsByHash([]*mempool.Pool{pool})
	resp := fn(append(hashes, common.HexToHash("0xdeadbeef")))
	require.Len(t, resp.Ops, 3)
}
