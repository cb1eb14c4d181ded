package bundler

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/silius-bundler/silius-go/chain"
	"github.com/silius-bundler/silius-go/userop"
)

type fakeChain struct {
	codes    map[common.Address][]byte
	storage  map[common.Address]map[common.Hash]common.Hash
	nonce    uint64
	baseFee  *big.Int
	gasLimit uint64
	chainID  *big.Int

	sendErr  error
	receipt  *types.Receipt
	waitErr  error
	sentTx   *types.Transaction
}

func (f *fakeChain) BlockNumber(_ context.Context) (uint64, error) { return 100, nil }

func (f *fakeChain) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	limit := f.gasLimit
	if limit == 0 {
		limit = 30_000_000
	}
	return &types.Header{GasLimit: limit}, nil
}

func (f *fakeChain) GetCode(_ context.Context, addr common.Address, _ *big.Int) ([]byte, error) {
	return f.codes[addr], nil
}

func (f *fakeChain) StorageAt(_ context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	if m, ok := f.storage[addr]; ok {
		return m[slot], nil
	}
	return common.Hash{}, nil
}

func (f *fakeChain) GetTransactionCount(_ context.Context, _ common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeChain) GetStakeInfo(_ context.Context, _, addr common.Address) (chain.StakeInfo, error) {
	return chain.StakeInfo{Stake: big.NewInt(1e18), UnstakeDelaySec: 86400}, nil
}

func (f *fakeChain) SuggestBaseFee(_ context.Context) (*big.Int, error) {
	if f.baseFee != nil {
		return f.baseFee, nil
	}
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) SendRawTransaction(_ context.Context, tx *types.Transaction) error {
	f.sentTx = tx
	return f.sendErr
}

func (f *fakeChain) WaitMined(_ context.Context, _ common.Hash, _ time.Duration) (*types.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(101)}, nil
}

func (f *fakeChain) ChainID() *big.Int {
	if f.chainID != nil {
		return f.chainID
	}
	return big.NewInt(1337)
}

type fakePool struct {
	entries []*userop.MempoolEntry
	removed []common.Hash
}

func (p *fakePool) GetUserOperationsForBundle() []*userop.MempoolEntry { return p.entries }
func (p *fakePool) RemoveUserOperation(hash common.Hash) error {
	p.removed = append(p.removed, hash)
	for i, e := range p.entries {
		if e.Hash == hash {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			break
		}
	}
	return nil
}

type fakeRep struct {
	included [][]common.Address
	penal    map[common.Address]int
}

func newFakeRep() *fakeRep { return &fakeRep{penal: make(map[common.Address]int)} }

func (r *fakeRep) RecordIncluded(addrs []common.Address) { r.included = append(r.included, addrs) }
func (r *fakeRep) Penalize(addr common.Address)           { r.penal[addr]++ }

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func testEntry(sender common.Address, nonce int64, priorityFee, maxFee int64) *userop.MempoolEntry {
	op := &userop.UserOperation{
		Sender:               sender,
		Nonce:                big.NewInt(nonce),
		CallData:             []byte{0x01},
		CallGasLimit:         big.NewInt(100_000),
		VerificationGasLimit: big.NewInt(100_000),
		PreVerificationGas:   big.NewInt(50_000),
		MaxFeePerGas:         big.NewInt(maxFee),
		MaxPriorityFeePerGas: big.NewInt(priorityFee),
		Signature:            []byte{0x01},
	}
	return &userop.MempoolEntry{
		Hash: common.BytesToHash([]byte{byte(nonce), sender[0]}),
		Op:   op,
		Outcome: &userop.ValidationOutcome{
			PreOpGas: big.NewInt(50_000),
		},
		SubmittedAt: time.Now(),
	}
}

func testBuilder(t *testing.T, cr ChainReader, pool Pool, rep ReputationManager) *Builder {
	t.Helper()
	cfg := DefaultConfig(common.HexToAddress("0x5ff137d4b0fdcd49dca30c7cf57e578a026d2789"), testKey(t))
	return New(cr, pool, rep, nil, cfg)
}

func TestBuilderBuildEmptyPool(t *testing.T) {
	cr := &fakeChain{}
	pool := &fakePool{}
	rep := newFakeRep()
	b := testBuilder(t, cr, pool, rep)

	_, err := b.Build(context.Background())
	require.Error(t, err)
	var empty *EmptyBundleError
	require.ErrorAs(t, err, &empty)
}

func TestBuilderBuildHappyPath(t *testing.T) {
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	cr := &fakeChain{}
	pool := &fakePool{entries: []*userop.MempoolEntry{testEntry(sender, 0, 1_000_000_000, 3_000_000_000)}}
	rep := newFakeRep()
	b := testBuilder(t, cr, pool, rep)

	tx, err := b.Build(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, b.cfg.EntryPoint, *tx.To())

	require.Len(t, pool.entries, 0, "included op should be evicted")
	require.Len(t, rep.included, 1)
	require.Contains(t, rep.included[0], sender)
}

func TestBuilderRevalidateDropsStaleCodeHash(t *testing.T) {
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	entry := testEntry(sender, 0, 1_000_000_000, 3_000_000_000)
	entry.Outcome.CodeHashes = []userop.CodeHash{{Address: sender, Hash: common.Hash{0xAA}}}

	cr := &fakeChain{codes: map[common.Address][]byte{sender: {0x60, 0x00}}}
	pool := &fakePool{entries: []*userop.MempoolEntry{entry}}
	rep := newFakeRep()
	b := testBuilder(t, cr, pool, rep)

	_, err := b.Build(context.Background())
	require.Error(t, err)
	var empty *EmptyBundleError
	require.ErrorAs(t, err, &empty)
	require.Contains(t, pool.removed, entry.Hash)
}

func TestBuilderSelectBundlePreservesCandidateOrder(t *testing.T) {
	senderA := common.HexToAddress("0x1111111111111111111111111111111111111111")
	senderB := common.HexToAddress("0x2222222222222222222222222222222222222222")
	entryLow := testEntry(senderA, 0, 1_000_000_000, 3_000_000_000)
	entryHigh := testEntry(senderB, 0, 2_000_000_000, 4_000_000_000)

	cr := &fakeChain{}
	pool := &fakePool{entries: []*userop.MempoolEntry{entryLow, entryHigh}} // selectBundle does not re-sort; fee ordering is GetUserOperationsForBundle's job
	rep := newFakeRep()
	b := testBuilder(t, cr, pool, rep)

	selected, err := b.selectBundle(context.Background(), pool.entries)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	require.Equal(t, entryLow.Hash, selected[0].Hash, "selectBundle must preserve the pool's pre-sorted order")
	require.Equal(t, entryHigh.Hash, selected[1].Hash)
}

func TestBuilderGasEnvelopeStopsAtCapacity(t *testing.T) {
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	var entries []*userop.MempoolEntry
	for i := int64(0); i < 10; i++ {
		entries = append(entries, testEntry(common.BigToAddress(big.NewInt(int64(sender[0])+i)), i, 1_000_000_000, 3_000_000_000))
	}
	cr := &fakeChain{gasLimit: 1_000_000} // tiny block, BundleGasFactor(0.6) envelope = 600_000
	pool := &fakePool{entries: entries}
	rep := newFakeRep()
	b := testBuilder(t, cr, pool, rep)

	selected, err := b.selectBundle(context.Background(), entries)
	require.NoError(t, err)
	require.Less(t, len(selected), len(entries), "envelope should cap how many ops fit")
}

func TestBuilderRetriesOnFailedOp(t *testing.T) {
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	entry := testEntry(sender, 0, 1_000_000_000, 3_000_000_000)

	cr := &fakeChain{sendErr: &chain.FailedOp{OpIndex: 0, Reason: "AA21 didn't pay prefund"}}
	pool := &fakePool{entries: []*userop.MempoolEntry{entry}}
	rep := newFakeRep()
	b := testBuilder(t, cr, pool, rep)

	_, err := b.Build(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, rep.penal[sender])
}
