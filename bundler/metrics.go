package bundler

import (
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

// metrics
var (
	bundlesSubmittedMeter = metrics.NewRegisteredMeter("bundler/bundles/submitted", nil)
	bundlesIncludedMeter  = metrics.NewRegisteredMeter("bundler/bundles/included", nil)
	bundlesFailedMeter    = metrics.NewRegisteredMeter("bundler/bundles/failed", nil)
	bundlesOrphanedMeter  = metrics.NewRegisteredMeter("bundler/bundles/orphaned", nil)

	buildTimer = metrics.NewRegisteredTimer("bundler/build", nil)
)

// MetricsBuildCost records how long one Build() call took end to end,
// from candidate selection through submission.
func MetricsBuildCost(start time.Time) {
	buildTimer.Update(time.Since(start))
}
