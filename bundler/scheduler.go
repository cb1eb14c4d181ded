package bundler

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/silius-bundler/silius-go/eventbus"
)

// Mode selects how the Scheduler decides when to trigger a build.
type Mode uint8

const (
	// ModeAuto triggers a build on every new block head once bundleInterval
	// has elapsed since the last one, provided the mempool looks non-empty.
	ModeAuto Mode = iota
	// ModeManual ignores block heads; only SendBundleNow triggers a build.
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

// Scheduler drives a Builder through Idle -> Building -> (Submitting ->
// Idle) | (Idle on empty). Only one build may be in flight; triggers that
// arrive while one is running are coalesced into a single pending retry
// rather than queued.
type Scheduler struct {
	builder        *Builder
	bundleInterval time.Duration

	mu         sync.Mutex
	mode       Mode
	building   bool
	lastBundle time.Time

	triggerCh  chan struct{}
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewScheduler returns a Scheduler in ModeAuto with the given minimum
// interval between triggered builds (the spec's default is one block).
func NewScheduler(builder *Builder, bundleInterval time.Duration) *Scheduler {
	if bundleInterval <= 0 {
		bundleInterval = 12 * time.Second
	}
	return &Scheduler{
		builder:        builder,
		bundleInterval: bundleInterval,
		triggerCh:      make(chan struct{}, 1),
		shutdownCh:     make(chan struct{}),
	}
}

// SetMode switches between Auto and Manual scheduling.
func (s *Scheduler) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Mode returns the scheduler's current mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SendBundleNow triggers exactly one build regardless of mode, coalescing
// with any trigger already pending.
func (s *Scheduler) SendBundleNow() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Start subscribes to new block heads and runs the scheduling loop until
// Stop is called or ctx is canceled.
func (s *Scheduler) Start(ctx context.Context, bus *eventbus.Bus) {
	heads := make(chan eventbus.NewBlockEvent, 16)
	sub := bus.SubscribeNewBlock(heads)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sub.Unsubscribe()
		s.loop(ctx, heads)
	}()
}

// Stop ends the scheduling loop and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.shutdownCh)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, heads <-chan eventbus.NewBlockEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		case <-heads:
			if s.Mode() == ModeAuto && time.Since(s.lastBundleAt()) >= s.bundleInterval {
				s.maybeTrigger(ctx)
			}
		case <-s.triggerCh:
			s.maybeTrigger(ctx)
		}
	}
}

func (s *Scheduler) lastBundleAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBundle
}

// maybeTrigger runs one build if none is already in flight, coalescing the
// trigger into the "bundling" flag rather than queuing a second run.
func (s *Scheduler) maybeTrigger(ctx context.Context) {
	s.mu.Lock()
	if s.building {
		s.mu.Unlock()
		return
	}
	s.building = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.building = false
		s.lastBundle = time.Now()
		s.mu.Unlock()
	}()

	_, err := s.builder.Build(ctx)
	if err != nil {
		if _, empty := err.(*EmptyBundleError); empty {
			return
		}
		log.Error("bundler: build failed", "err", err)
	}
}
