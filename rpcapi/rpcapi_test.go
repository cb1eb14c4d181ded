package rpcapi

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/bundler"
	"github.com/silius-bundler/silius-go/chain"
	"github.com/silius-bundler/silius-go/tracer"
	"github.com/silius-bundler/silius-go/userop"
)

type fakePool struct {
	entries   map[common.Hash]*userop.MempoolEntry
	addErr    error
	addHash   common.Hash
	cleared   bool
	lastAdded *userop.UserOperation
}

func newFakePool() *fakePool {
	return &fakePool{entries: make(map[common.Hash]*userop.MempoolEntry)}
}

func (p *fakePool) AddUserOperation(_ context.Context, op *userop.UserOperation) (common.Hash, error) {
	p.lastAdded = op
	if p.addErr != nil {
		return common.Hash{}, p.addErr
	}
	return p.addHash, nil
}

func (p *fakePool) GetAll() []*userop.MempoolEntry {
	out := make([]*userop.MempoolEntry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	return out
}

func (p *fakePool) GetByHash(hash common.Hash) (*userop.MempoolEntry, bool) {
	e, ok := p.entries[hash]
	return e, ok
}

func (p *fakePool) ClearState() error {
	p.cleared = true
	p.entries = make(map[common.Hash]*userop.MempoolEntry)
	return nil
}

type fakeScheduler struct {
	mode       bundler.Mode
	sentNow    int
	modeHist   []bundler.Mode
	sendCalled bool
}

func (s *fakeScheduler) SetMode(m bundler.Mode) { s.mode = m; s.modeHist = append(s.modeHist, m) }
func (s *fakeScheduler) Mode() bundler.Mode      { return s.mode }
func (s *fakeScheduler) SendBundleNow()          { s.sentNow++; s.sendCalled = true }

type fakeReputation struct {
	entries []userop.ReputationEntry
	cleared bool
}

func (r *fakeReputation) SetReputation(entries []userop.ReputationEntry) { r.entries = entries }
func (r *fakeReputation) DumpReputation() []userop.ReputationEntry      { return r.entries }
func (r *fakeReputation) ClearState()                                   { r.cleared = true; r.entries = nil }

type fakeChainReader struct {
	chainID    *big.Int
	baseFee    *big.Int
	code       map[common.Address][]byte
	deposit    *big.Int
	estimate   uint64
	estimateErr error
	blockNum   uint64
}

func newFakeChainReader() *fakeChainReader {
	return &fakeChainReader{
		chainID: big.NewInt(1337),
		baseFee: big.NewInt(1_000_000_000),
		code:    make(map[common.Address][]byte),
		deposit: big.NewInt(0),
	}
}

func (c *fakeChainReader) GetCode(_ context.Context, addr common.Address, _ *big.Int) ([]byte, error) {
	return c.code[addr], nil
}

func (c *fakeChainReader) GetBalance(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (c *fakeChainReader) GetDeposit(_ context.Context, _, _ common.Address) (*big.Int, error) {
	return c.deposit, nil
}

func (c *fakeChainReader) TraceValidation(_ context.Context, _ common.Address, _ []byte) (map[common.Address]tracer.Frame, *chain.ValidationResult, error) {
	return map[common.Address]tracer.Frame{}, &chain.ValidationResult{
		SenderInfo: chain.StakeInfo{},
		ValidAfter: 0,
		ValidUntil: 0,
	}, nil
}

func (c *fakeChainReader) BlockNumber(_ context.Context) (uint64, error) { return c.blockNum, nil }

func (c *fakeChainReader) ChainID() *big.Int { return c.chainID }

func (c *fakeChainReader) SuggestBaseFee(_ context.Context) (*big.Int, error) { return c.baseFee, nil }

func (c *fakeChainReader) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	if c.estimateErr != nil {
		return 0, c.estimateErr
	}
	return c.estimate, nil
}

var errBoom = errors.New("boom")
