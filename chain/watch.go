package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/silius-bundler/silius-go/eventbus"
)

// WatchNewHeads polls for new block headers and publishes a
// eventbus.NewBlockEvent for each one observed, until ctx is canceled.
// Polling, rather than an eth_subscribe websocket stream, keeps the chain
// oracle usable against plain HTTP endpoints.
func (c *Client) WatchNewHeads(ctx context.Context, bus *eventbus.Bus, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeen uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			head, err := c.HeaderByNumber(ctx, nil)
			if err != nil {
				log.Warn("chain: failed to fetch head header", "err", err)
				continue
			}
			number := head.Number.Uint64()
			if number <= lastSeen {
				continue
			}
			lastSeen = number
			bus.PublishNewBlock(eventbus.NewBlockEvent{
				Number:    number,
				Hash:      head.Hash(),
				BaseFee:   head.BaseFee,
				Timestamp: head.Time,
			})
		}
	}
}
