package mempool

import (
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

// metrics
var (
	pendingOpsGauge  = metrics.NewRegisteredGauge("mempool/ops/pending", nil)
	opsRejectedMeter = metrics.NewRegisteredMeter("mempool/ops/rejected", nil)

	admissionTimer = metrics.NewRegisteredTimer("mempool/admission", nil)
)

// MetricsAdmissionCost records how long a single AddUserOperation call
// spent in the validator; admit() is not included.
func MetricsAdmissionCost(start time.Time) {
	admissionTimer.Update(time.Since(start))
}
