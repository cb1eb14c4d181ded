package reputation

import (
	"fmt"
	"math/big"
	"time"

	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/userop"
)

// DefaultConfig is a reasonable starting point for a bundler operator who
// hasn't tuned staking thresholds yet.
var DefaultConfig = Config{
	MinStake:        big.NewInt(1e17), // 0.1 ether
	MinUnstakeDelay: 24 * time.Hour,
}

// Config carries the staking thresholds an entity must clear to be treated
// as staked: subject to the MaxMempoolEntriesPerEntityStaked per-entity
// mempool cap (unstaked entities are not counted against it), and
// permitted to touch storage outside its own frame during simulation.
type Config struct {
	MinStake        *big.Int
	MinUnstakeDelay time.Duration
}

func (c Config) String() string {
	return fmt.Sprintf("MinStake: %s, MinUnstakeDelay: %v", c.MinStake, c.MinUnstakeDelay)
}

// IsStaked reports whether stake/unstakeDelay clear this config's minima.
func (c Config) IsStaked(stake *big.Int, unstakeDelay time.Duration) bool {
	if stake == nil || stake.Cmp(c.MinStake) < 0 {
		return false
	}
	return unstakeDelay >= c.MinUnstakeDelay
}

// statusFor derives a ReputationStatus from the raw seen/included counters,
// per the MIN_INCLUSION_RATE_DENOM/THROTTLING_SLACK/BAN_SLACK formula.
func statusFor(opsSeen, opsIncluded uint64) userop.ReputationStatus {
	expected := opsSeen / params.MinInclusionRateDenom
	var excess uint64
	if opsSeen > opsIncluded+expected {
		excess = opsSeen - opsIncluded - expected
	}
	switch {
	case excess > params.BanSlack:
		return userop.ReputationBanned
	case excess > params.ThrottlingSlack:
		return userop.ReputationThrottled
	default:
		return userop.ReputationOk
	}
}
