package reputation

import (
	"math/big"
	"testing"
	"time"

	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/userop"
)

func TestConfigIsStaked(t *testing.T) {
	cfg := Config{MinStake: big.NewInt(100), MinUnstakeDelay: time.Hour}

	tests := []struct {
		name         string
		stake        *big.Int
		unstakeDelay time.Duration
		want         bool
	}{
		{"nil stake", nil, 2 * time.Hour, false},
		{"stake below minimum", big.NewInt(50), 2 * time.Hour, false},
		{"delay below minimum", big.NewInt(100), 30 * time.Minute, false},
		{"meets both minima", big.NewInt(100), time.Hour, true},
		{"exceeds both minima", big.NewInt(1000), 48 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.IsStaked(tt.stake, tt.unstakeDelay); got != tt.want {
				t.Errorf("IsStaked(%v, %v) = %v, want %v", tt.stake, tt.unstakeDelay, got, tt.want)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name        string
		opsSeen     uint64
		opsIncluded uint64
		want        userop.ReputationStatus
	}{
		{"no history", 0, 0, userop.ReputationOk},
		{"perfectly included", 100, 100, userop.ReputationOk},
		{"within inclusion rate slack", 100, 80, userop.ReputationOk},
		{"throttled", 200, 150, userop.ReputationThrottled},
		{"banned", 1000, 0, userop.ReputationBanned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.opsSeen, tt.opsIncluded); got != tt.want {
				t.Errorf("statusFor(%d, %d) = %v, want %v", tt.opsSeen, tt.opsIncluded, got, tt.want)
			}
		})
	}
}

func TestStatusForBoundaries(t *testing.T) {
	// opsSeen=100 gives expected=opsSeen/MinInclusionRateDenom=10 exactly, so
	// excess = 90 - opsIncluded with no rounding to account for.
	if params.MinInclusionRateDenom != 10 {
		t.Fatalf("test assumes MinInclusionRateDenom == 10, got %d", params.MinInclusionRateDenom)
	}

	// excess == ThrottlingSlack is not yet throttled; ThrottlingSlack+1 is.
	if got := statusFor(100, 90-params.ThrottlingSlack); got != userop.ReputationOk {
		t.Errorf("excess == ThrottlingSlack: got %v, want Ok", got)
	}
	if got := statusFor(100, 90-params.ThrottlingSlack-1); got != userop.ReputationThrottled {
		t.Errorf("excess == ThrottlingSlack+1: got %v, want Throttled", got)
	}

	// excess == BanSlack is still only throttled; BanSlack+1 is banned.
	if got := statusFor(100, 90-params.BanSlack); got != userop.ReputationThrottled {
		t.Errorf("excess == BanSlack: got %v, want Throttled", got)
	}
	if got := statusFor(100, 90-params.BanSlack-1); got != userop.ReputationBanned {
		t.Errorf("excess == BanSlack+1: got %v, want Banned", got)
	}
}
