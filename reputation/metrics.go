package reputation

import "github.com/ethereum/go-ethereum/metrics"

// metrics
var (
	opsSeenGauge     = metrics.NewRegisteredGauge("reputation/ops/seen", nil)
	opsIncludedGauge = metrics.NewRegisteredGauge("reputation/ops/included", nil)
	penalizedMeter   = metrics.NewRegisteredMeter("reputation/penalized", nil)
)
