package chain

import (
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

// metrics
var (
	rpcErrorMeter  = metrics.NewRegisteredMeter("chain/rpc/errors", nil)
	traceCallTimer = metrics.NewRegisteredTimer("chain/trace_validation", nil)
)

// MetricsTraceValidationCost records the wall-clock time spent waiting on
// the simulateValidation debug_traceCall round trip.
func MetricsTraceValidationCost(start time.Time) {
	traceCallTimer.Update(time.Since(start))
}
