// Command silius runs the ERC-4337 bundler: mempool admission, bundle
// building, the eth/debug JSON-RPC façade, and the optional libp2p gossip
// overlay, all in one process (the gRPC split between those roles that
// the upstream project's multi-binary layout implies is out of scope
// here; --enable-p2p and the node/bundler/uopool/rpc subcommands instead
// toggle which subsystems this one process starts).
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/urfave/cli/v2"

	"github.com/silius-bundler/silius-go/bundler"
	"github.com/silius-bundler/silius-go/chain"
	"github.com/silius-bundler/silius-go/cmd/utils"
	"github.com/silius-bundler/silius-go/eventbus"
	"github.com/silius-bundler/silius-go/mempool"
	"github.com/silius-bundler/silius-go/p2pnet"
	"github.com/silius-bundler/silius-go/reputation"
	"github.com/silius-bundler/silius-go/rpcapi"
	"github.com/silius-bundler/silius-go/userop"
	"github.com/silius-bundler/silius-go/validation"
)

func main() {
	app := &cli.App{
		Name:  "silius",
		Usage: "an ERC-4337 bundler",
		Commands: []*cli.Command{
			{
				Name:   "node",
				Usage:  "run mempool, bundler and RPC façade together",
				Flags:  utils.SharedFlags,
				Action: runMode("node"),
			},
			{
				Name:   "bundler",
				Usage:  "run mempool, bundler and RPC façade without a separate uopool",
				Flags:  utils.SharedFlags,
				Action: runMode("bundler"),
			},
			{
				Name:   "uopool",
				Usage:  "run mempool admission and RPC façade only; no bundle building",
				Flags:  utils.SharedFlags,
				Action: runMode("uopool"),
			},
			{
				Name:   "rpc",
				Usage:  "run the RPC façade over a local mempool, without bundling",
				Flags:  utils.SharedFlags,
				Action: runMode("rpc"),
			},
			{
				Name:  "create-wallet",
				Usage: "generate a fresh signing mnemonic and print its address",
				Action: func(ctx *cli.Context) error {
					mnemonic, err := utils.NewMnemonic()
					if err != nil {
						return fmt.Errorf("generating mnemonic: %w", err)
					}
					signer, err := utils.SignerFromMnemonic(mnemonic)
					if err != nil {
						return fmt.Errorf("deriving signer: %w", err)
					}
					fmt.Println("mnemonic:", mnemonic)
					fmt.Println("address: ", crypto.PubkeyToAddress(signer.PublicKey))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// runMode returns a cli.ActionFunc that wires up and runs the subsystems
// `mode` implies, blocking until SIGINT/SIGTERM and then shutting every
// started subsystem down in reverse order.
func runMode(mode string) cli.ActionFunc {
	return func(cliCtx *cli.Context) error {
		if err := utils.SetupLogging(cliCtx); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		n, err := buildNode(ctx, cliCtx, mode)
		if err != nil {
			return fmt.Errorf("starting %s: %w", mode, err)
		}

		log.Info("silius started", "mode", mode, "entryPoints", len(n.entryPoints))
		<-ctx.Done()
		log.Info("shutting down")
		n.shutdown()
		return nil
	}
}

// runningNode holds everything a wiring pass started, so shutdown can
// unwind it in the right order.
type runningNode struct {
	chainClient *chain.Client
	reputation  *reputation.Manager
	schedulers  []*bundler.Scheduler
	rpcServer   *rpcapi.Server
	p2pNode     *p2pnet.Node
	entryPoints []common.Address
}

func (n *runningNode) shutdown() {
	if n.p2pNode != nil {
		if err := n.p2pNode.Close(); err != nil {
			log.Warn("closing p2p node", "err", err)
		}
	}
	if n.rpcServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.rpcServer.Stop(shutdownCtx); err != nil {
			log.Warn("stopping rpc server", "err", err)
		}
	}
	for _, s := range n.schedulers {
		s.Stop()
	}
	if n.reputation != nil {
		n.reputation.Stop()
	}
	if n.chainClient != nil {
		n.chainClient.Close()
	}
}

// noopScheduler answers debug_setBundlingMode / debug_sendBundleNow for
// an EntryPoint that has no real bundle builder running (the uopool and
// rpc subcommands).
type noopScheduler struct {
	mode bundler.Mode
}

func (n *noopScheduler) SetMode(mode bundler.Mode) { n.mode = mode }
func (n *noopScheduler) Mode() bundler.Mode        { return n.mode }
func (n *noopScheduler) SendBundleNow()            {}

func buildNode(ctx context.Context, cliCtx *cli.Context, mode string) (*runningNode, error) {
	n := &runningNode{}

	cl, err := chain.Dial(ctx, cliCtx.String(utils.EthClientAddressFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("dialing eth client: %w", err)
	}
	n.chainClient = cl

	if want := cliCtx.Int64(utils.ChainIDFlag.Name); want != 0 && cl.ChainID().Cmp(big.NewInt(want)) != 0 {
		cl.Close()
		return nil, fmt.Errorf("chain id mismatch: eth client reports %s, expected %d", cl.ChainID(), want)
	}

	entryPoints, err := utils.ParseEntryPoints(cliCtx)
	if err != nil {
		cl.Close()
		return nil, err
	}
	n.entryPoints = entryPoints

	signer, err := loadSigner(cliCtx)
	if err != nil {
		cl.Close()
		return nil, err
	}

	var beneficiary common.Address
	if b := cliCtx.String(utils.BeneficiaryFlag.Name); b != "" {
		if !common.IsHexAddress(b) {
			cl.Close()
			return nil, fmt.Errorf("--%s: %q is not a valid address", utils.BeneficiaryFlag.Name, b)
		}
		beneficiary = common.HexToAddress(b)
	}

	minStake, err := utils.ParseBigIntFlag(cliCtx, utils.MinStakeFlag)
	if err != nil {
		cl.Close()
		return nil, err
	}
	minPriorityFee, err := utils.ParseBigIntFlag(cliCtx, utils.MinPriorityFeePerGasFlag)
	if err != nil {
		cl.Close()
		return nil, err
	}
	maxVerificationGas, err := utils.ParseBigIntFlag(cliCtx, utils.MaxVerificationGasFlag)
	if err != nil {
		cl.Close()
		return nil, err
	}
	minUnstakeDelay := time.Duration(cliCtx.Int64(utils.MinUnstakeDelayFlag.Name)) * time.Second

	bus := eventbus.New()

	repCfg := reputation.DefaultConfig
	repCfg.MinStake = minStake
	repCfg.MinUnstakeDelay = minUnstakeDelay
	rep := reputation.New(repCfg)
	rep.Start(ctx, bus)
	n.reputation = rep

	var pools []*mempool.Pool
	var services []*rpcapi.EntryPointServices
	runsBuilder := mode == "node" || mode == "bundler"

	var dataDir string
	if d := cliCtx.String(utils.DataDirFlag.Name); d != "" {
		dataDir = d
	}

	for _, ep := range entryPoints {
		valCfg := validation.Config{
			EntryPoint:           ep,
			MaxVerificationGas:   maxVerificationGas,
			MinPriorityFeePerGas: minPriorityFee,
			MinStake:             minStake,
			MinUnstakeDelay:      minUnstakeDelay,
		}

		store, err := openStore(dataDir, ep)
		if err != nil {
			cl.Close()
			return nil, err
		}

		pool := mempool.New(ep, cl.ChainID(), cl, rep, bus, valCfg, store)
		pools = append(pools, pool)

		var sched rpcapi.Scheduler = &noopScheduler{}
		if runsBuilder {
			if signer == nil {
				cl.Close()
				return nil, fmt.Errorf("--%s is required to run bundle building", utils.MnemonicFileFlag.Name)
			}
			builderCfg := bundler.DefaultConfig(ep, signer)
			if beneficiary != (common.Address{}) {
				builderCfg.Beneficiary = beneficiary
			}
			builder := bundler.New(cl, pool, rep, bus, builderCfg)
			realSched := bundler.NewScheduler(builder, builderCfg.PollInterval)
			realSched.Start(ctx, bus)
			n.schedulers = append(n.schedulers, realSched)
			sched = realSched
		}

		services = append(services, &rpcapi.EntryPointServices{
			EntryPoint: ep,
			Pool:       pool,
			Scheduler:  sched,
			Config:     valCfg,
		})
	}

	go cl.WatchNewHeads(ctx, bus, 2*time.Second)
	go driveMempools(ctx, bus, pools)

	ethAPI, debugAPI := rpcapi.NewFacade(ctx, cl.ChainID(), cl, services, rep, bus)

	rpcCfg := rpcapi.Config{
		EnableHTTP: cliCtx.Bool(utils.HTTPFlag.Name),
		HTTPAddr:   "0.0.0.0",
		HTTPPort:   cliCtx.Int(utils.HTTPPortFlag.Name),
		HTTPAPIs:   utils.SplitAndTrim(cliCtx.String(utils.HTTPApiFlag.Name)),
		EnableWS:   cliCtx.Bool(utils.WSFlag.Name),
		WSAddr:     "0.0.0.0",
		WSPort:     cliCtx.Int(utils.WSPortFlag.Name),
		WSAPIs:     utils.SplitAndTrim(cliCtx.String(utils.WSApiFlag.Name)),
	}
	rpcServer, err := rpcapi.NewServer(rpcCfg, ethAPI, debugAPI)
	if err != nil {
		cl.Close()
		return nil, err
	}
	if err := rpcServer.Start(); err != nil {
		cl.Close()
		return nil, err
	}
	n.rpcServer = rpcServer

	if cliCtx.Bool(utils.EnableP2PFlag.Name) {
		p2pNode, err := buildP2PNode(ctx, cliCtx, cl.ChainID().Uint64(), entryPoints, pools)
		if err != nil {
			return nil, fmt.Errorf("starting p2p overlay: %w", err)
		}
		n.p2pNode = p2pNode
	}

	return n, nil
}

// driveMempools feeds every pool's OnNewBlock from the shared chain-head
// feed; each pool only needs the notification, not a dedicated watcher.
func driveMempools(ctx context.Context, bus *eventbus.Bus, pools []*mempool.Pool) {
	heads := make(chan eventbus.NewBlockEvent, 16)
	sub := bus.SubscribeNewBlock(heads)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case head := <-heads:
			for _, p := range pools {
				p.OnNewBlock(ctx, head)
			}
		}
	}
}

func openStore(dataDir string, ep common.Address) (mempool.Store, error) {
	if dataDir == "" {
		return mempool.NewMemStore(), nil
	}
	dir := fmt.Sprintf("%s/mempool-%s", dataDir, strings.ToLower(ep.Hex()))
	return mempool.OpenPebbleStore(dir)
}

func buildP2PNode(ctx context.Context, cliCtx *cli.Context, chainID uint64, entryPoints []common.Address, pools []*mempool.Pool) (*p2pnet.Node, error) {
	mempoolIDs := make([]string, len(entryPoints))
	for i, ep := range entryPoints {
		mempoolIDs[i] = mempoolID(ep)
	}

	identity, err := buildIdentity(chainID, mempoolIDs)
	if err != nil {
		return nil, err
	}

	var bootnodes []*enode.Node
	for _, raw := range utils.SplitAndTrim(cliCtx.String(utils.BootnodesFlag.Name)) {
		node, err := enode.ParseV4(raw)
		if err != nil {
			return nil, fmt.Errorf("--%s: %q: %w", utils.BootnodesFlag.Name, raw, err)
		}
		bootnodes = append(bootnodes, node)
	}

	cfg := p2pnet.Config{
		Identity:      identity,
		ListenAddr:    cliCtx.String(utils.P2PBindAddrFlag.Name),
		DiscoveryAddr: fmt.Sprintf("0.0.0.0:%d", cliCtx.Int(utils.DiscoveryPortFlag.Name)),
		Bootnodes:     bootnodes,
	}

	handlers := p2pnet.Handlers{
		Status: func() p2pnet.StatusMsg {
			return p2pnet.StatusMsg{ChainID: chainID, MempoolIDs: mempoolIDs}
		},
		Metadata: func() p2pnet.MetadataMsg {
			return p2pnet.MetadataMsg{MempoolIDs: mempoolIDs}
		},
		PooledOpHashes:  aggregateHashes(pools),
		PooledOpsByHash: aggregateOpsByHash(pools),
	}

	// The gossip layer hands onOp the decoded op without saying which
	// topic it arrived on, so every entry point's hash for it is marked
	// known; the ones that don't match its real entry point are just
	// hashes nothing will ever look up again.
	var node *p2pnet.Node
	onOp := func(op *userop.UserOperation) {
		for _, ep := range entryPoints {
			if node != nil {
				node.MarkKnown(userop.Hash(op, ep, big.NewInt(int64(chainID))))
			}
		}
	}

	node, err = p2pnet.NewNode(ctx, cfg, handlers, onOp)
	if err != nil {
		return nil, err
	}

	for i, ep := range entryPoints {
		if err := node.JoinMempool(ctx, mempoolIDs[i], ep, pools[i]); err != nil {
			node.Close()
			return nil, fmt.Errorf("joining mempool %s: %w", mempoolIDs[i], err)
		}
	}

	return node, nil
}

func mempoolID(ep common.Address) string {
	return strings.ToLower(ep.Hex())
}

func aggregateHashes(pools []*mempool.Pool) func(offset uint64) p2pnet.HashesResponse {
	return func(offset uint64) p2pnet.HashesResponse {
		var all []common.Hash
		for _, p := range pools {
			for _, e := range p.GetAll() {
				all = append(all, e.Hash)
			}
		}
		if offset >= uint64(len(all)) {
			return p2pnet.HashesResponse{NextOffset: offset}
		}
		const pageSize = 256
		end := offset + pageSize
		if end > uint64(len(all)) {
			end = uint64(len(all))
		}
		return p2pnet.HashesResponse{NextOffset: end, Hashes: all[offset:end]}
	}
}

func aggregateOpsByHash(pools []*mempool.Pool) func(hashes []common.Hash) p2pnet.OpsByHashResponse {
	return func(hashes []common.Hash) p2pnet.OpsByHashResponse {
		resp := p2pnet.OpsByHashResponse{}
		for _, h := range hashes {
			for _, p := range pools {
				if entry, ok := p.GetByHash(h); ok {
					resp.Ops = append(resp.Ops, entry.Op)
					break
				}
			}
		}
		return resp
	}
}

func buildIdentity(chainID uint64, mempoolIDs []string) (*p2pnet.Identity, error) {
	if seed := os.Getenv("P2P_PRIVATE_SEED"); seed != "" {
		return p2pnet.NewIdentityFromSeed([]byte(seed), chainID, mempoolIDs)
	}
	return p2pnet.NewIdentity(chainID, mempoolIDs)
}

func loadSigner(cliCtx *cli.Context) (*ecdsa.PrivateKey, error) {
	path := cliCtx.String(utils.MnemonicFileFlag.Name)
	if path == "" {
		return nil, nil
	}
	return utils.SignerFromMnemonicFile(path)
}
