// Package utils contains shared flag definitions and config-building
// helpers for the silius command-line tools.
package utils

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

// Shared flags, one var per §6 CLI surface entry.
var (
	EthClientAddressFlag = &cli.StringFlag{
		Name:     "eth-client-address",
		Usage:    "execution-layer JSON-RPC endpoint to use as the chain oracle",
		Required: true,
	}
	EntryPointsFlag = &cli.StringFlag{
		Name:     "entry-points",
		Usage:    "comma-separated EntryPoint contract addresses to serve",
		Required: true,
	}
	MnemonicFileFlag = &cli.StringFlag{
		Name:  "mnemonic-file",
		Usage: "path to a file holding the bundler's signing mnemonic",
	}
	BeneficiaryFlag = &cli.StringFlag{
		Name:  "beneficiary",
		Usage: "address credited with the handleOps beneficiary fee (defaults to the signer's own address)",
	}
	ChainIDFlag = &cli.Int64Flag{
		Name:  "chain-id",
		Usage: "expected chain ID; a mismatch against --eth-client-address aborts startup",
	}
	DataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "directory for the persistent mempool store",
		Value: "./silius-data",
	}
	HTTPFlag = &cli.BoolFlag{
		Name:  "http",
		Usage: "enable the HTTP JSON-RPC transport",
	}
	WSFlag = &cli.BoolFlag{
		Name:  "ws",
		Usage: "enable the WebSocket JSON-RPC transport",
	}
	HTTPPortFlag = &cli.IntFlag{
		Name:  "http.port",
		Usage: "HTTP JSON-RPC listening port",
		Value: 3000,
	}
	WSPortFlag = &cli.IntFlag{
		Name:  "ws.port",
		Usage: "WebSocket JSON-RPC listening port",
		Value: 3001,
	}
	HTTPApiFlag = &cli.StringFlag{
		Name:  "http.api",
		Usage: "comma-separated namespaces exposed over HTTP",
		Value: "eth",
	}
	WSApiFlag = &cli.StringFlag{
		Name:  "ws.api",
		Usage: "comma-separated namespaces exposed over WebSocket",
		Value: "eth",
	}
	EnableP2PFlag = &cli.BoolFlag{
		Name:  "enable-p2p",
		Usage: "join the libp2p UserOperation gossip overlay",
	}
	BootnodesFlag = &cli.StringFlag{
		Name:  "bootnodes",
		Usage: "comma-separated enode:// bootstrap node records for discv5",
	}
	P2PBindAddrFlag = &cli.StringFlag{
		Name:  "p2p.baddr",
		Usage: "libp2p tcp multiaddr to listen on",
		Value: "/ip4/0.0.0.0/tcp/4337",
	}
	DiscoveryPortFlag = &cli.IntFlag{
		Name:  "discovery.port",
		Usage: "discv5 UDP listening port",
		Value: 4337,
	}
	P2PPortFlag = &cli.IntFlag{
		Name:  "p2p.port",
		Usage: "libp2p TCP port (not read; the listen address comes from --p2p.baddr)",
		Value: 4337,
	}
	MinStakeFlag = &cli.StringFlag{
		Name:  "min-stake",
		Usage: "minimum EntryPoint stake (wei) for an entity to be treated as staked",
		Value: "100000000000000000",
	}
	MinUnstakeDelayFlag = &cli.Int64Flag{
		Name:  "min-unstake-delay",
		Usage: "minimum EntryPoint unstake delay (seconds) for an entity to be treated as staked",
		Value: 86400,
	}
	MinPriorityFeePerGasFlag = &cli.StringFlag{
		Name:  "min-priority-fee-per-gas",
		Usage: "minimum maxPriorityFeePerGas (wei) accepted from a UserOperation",
		Value: "0",
	}
	MaxVerificationGasFlag = &cli.StringFlag{
		Name:  "max-verification-gas",
		Usage: "maximum verificationGasLimit accepted from a UserOperation",
		Value: "1500000",
	}
	VerbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "log verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
)

// legacyLevelNames maps SILIUS_LOG's accepted names onto geth's legacy
// 0-5 verbosity scale.
var legacyLevelNames = map[string]int{
	"crit": 0, "error": 1, "warn": 2, "info": 3, "debug": 4, "trace": 5,
}

// SharedFlags is the flag set common to every subcommand that wires up a
// running node (node, bundler, uopool, rpc).
var SharedFlags = []cli.Flag{
	EthClientAddressFlag,
	EntryPointsFlag,
	MnemonicFileFlag,
	BeneficiaryFlag,
	ChainIDFlag,
	DataDirFlag,
	HTTPFlag,
	WSFlag,
	HTTPPortFlag,
	WSPortFlag,
	HTTPApiFlag,
	WSApiFlag,
	EnableP2PFlag,
	BootnodesFlag,
	P2PBindAddrFlag,
	DiscoveryPortFlag,
	P2PPortFlag,
	MinStakeFlag,
	MinUnstakeDelayFlag,
	MinPriorityFeePerGasFlag,
	MaxVerificationGasFlag,
	VerbosityFlag,
}

// SplitAndTrim splits a comma-separated flag value into its trimmed,
// non-empty fields.
func SplitAndTrim(input string) []string {
	var out []string
	for _, s := range strings.Split(input, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseEntryPoints parses --entry-points into a list of addresses,
// rejecting anything that doesn't parse as a 20-byte hex address.
func ParseEntryPoints(ctx *cli.Context) ([]common.Address, error) {
	fields := SplitAndTrim(ctx.String(EntryPointsFlag.Name))
	if len(fields) == 0 {
		return nil, fmt.Errorf("--%s: at least one EntryPoint is required", EntryPointsFlag.Name)
	}
	out := make([]common.Address, 0, len(fields))
	for _, f := range fields {
		if !common.IsHexAddress(f) {
			return nil, fmt.Errorf("--%s: %q is not a valid address", EntryPointsFlag.Name, f)
		}
		out = append(out, common.HexToAddress(f))
	}
	return out, nil
}

// ParseBigIntFlag parses a decimal-string flag value into a *big.Int.
func ParseBigIntFlag(ctx *cli.Context, flag *cli.StringFlag) (*big.Int, error) {
	s := ctx.String(flag.Name)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("--%s: %q is not a valid integer", flag.Name, s)
	}
	return v, nil
}

// SetupLogging configures the default logger from --verbosity, the same
// log.NewGlogHandler(log.NewTerminalHandler(...))/log.SetDefault wiring
// geth's own cmd/utils/flags.go uses. SILIUS_LOG overrides the flag when
// set, mirroring RUST_LOG-style env precedence; it accepts either a bare
// level name or geth's legacy 0-5 integer scale.
func SetupLogging(ctx *cli.Context) error {
	v := ctx.Int(VerbosityFlag.Name)
	if env := os.Getenv("SILIUS_LOG"); env != "" {
		if n, ok := legacyLevelNames[strings.ToLower(env)]; ok {
			v = n
		} else if n, err := strconv.Atoi(env); err == nil {
			v = n
		} else {
			return fmt.Errorf("SILIUS_LOG: %q is not a recognized level", env)
		}
	}
	glogger := log.NewGlogHandler(log.NewTerminalHandler(os.Stderr, false))
	glogger.Verbosity(log.FromLegacyLevel(v))
	log.SetDefault(log.NewLogger(glogger))
	return nil
}
