package rpcapi

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/bundler"
	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/userop"
)

// DebugAPI implements the debug_* namespace: operator-only controls over
// mempool state, reputation, and the bundling scheduler. Real deployments
// gate this namespace out of the public --http.api/--ws.api list by
// default (§6); the façade itself doesn't enforce that, the CLI's flag
// wiring does.
type DebugAPI struct {
	byEntry map[common.Address]*EntryPointServices
	rep     ReputationManager
}

// NewDebugAPI returns a DebugAPI dispatching to services and the shared
// reputation manager.
func NewDebugAPI(services []*EntryPointServices, rep ReputationManager) *DebugAPI {
	byEntry := make(map[common.Address]*EntryPointServices, len(services))
	for _, s := range services {
		byEntry[s.EntryPoint] = s
	}
	return &DebugAPI{byEntry: byEntry, rep: rep}
}

func (api *DebugAPI) serviceFor(entryPoint common.Address) (*EntryPointServices, error) {
	s, ok := api.byEntry[entryPoint]
	if !ok {
		return nil, newRPCError(params.RPCInvalidUserOp, "unsupported entry point "+entryPoint.Hex())
	}
	return s, nil
}

// ClearState implements debug_clearState: drops every EntryPoint's pending
// mempool and resets reputation to its zero state.
func (api *DebugAPI) ClearState() error {
	for _, s := range api.byEntry {
		if err := s.Pool.ClearState(); err != nil {
			return toRPCError(err)
		}
	}
	if api.rep != nil {
		api.rep.ClearState()
	}
	return nil
}

// DumpMempool implements debug_dumpMempool(entryPoint).
func (api *DebugAPI) DumpMempool(entryPoint common.Address) ([]RPCMempoolEntry, error) {
	svc, err := api.serviceFor(entryPoint)
	if err != nil {
		return nil, err
	}
	all := svc.Pool.GetAll()
	out := make([]RPCMempoolEntry, len(all))
	for i, e := range all {
		out[i] = fromMempoolEntry(e)
	}
	return out, nil
}

// SetReputation implements debug_setReputation.
func (api *DebugAPI) SetReputation(entries []RPCReputationEntry) error {
	if api.rep == nil {
		return newRPCError(params.RPCInvalidUserOp, "reputation manager not configured")
	}
	core := make([]userop.ReputationEntry, len(entries))
	for i, e := range entries {
		core[i] = toReputationEntry(e)
	}
	api.rep.SetReputation(core)
	return nil
}

// DumpReputation implements debug_dumpReputation.
func (api *DebugAPI) DumpReputation() ([]RPCReputationEntry, error) {
	if api.rep == nil {
		return nil, nil
	}
	dumped := api.rep.DumpReputation()
	out := make([]RPCReputationEntry, len(dumped))
	for i, e := range dumped {
		out[i] = fromReputationEntry(e)
	}
	return out, nil
}

// SetBundlingMode implements debug_setBundlingMode("auto"|"manual") across
// every EntryPoint's scheduler.
func (api *DebugAPI) SetBundlingMode(mode string) error {
	var m bundler.Mode
	switch mode {
	case "auto":
		m = bundler.ModeAuto
	case "manual":
		m = bundler.ModeManual
	default:
		return newRPCError(params.RPCInvalidUserOp, "bundling mode must be \"auto\" or \"manual\"")
	}
	for _, s := range api.byEntry {
		s.Scheduler.SetMode(m)
	}
	return nil
}

// SendBundleNow implements debug_sendBundleNow across every EntryPoint.
func (api *DebugAPI) SendBundleNow() error {
	for _, s := range api.byEntry {
		s.Scheduler.SendBundleNow()
	}
	return nil
}
