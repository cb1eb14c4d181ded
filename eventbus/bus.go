package eventbus

import "github.com/ethereum/go-ethereum/event"

// Bus fans out the node's internal event stream via one event.Feed per
// event type, mirroring the Subscribe-by-channel convention used
// throughout go-ethereum's transaction pool. Every method is safe for
// concurrent use; event.Feed itself handles the locking.
type Bus struct {
	newBlockFeed  event.Feed
	newUserOpFeed event.Feed
	removedOpFeed event.Feed
	bundleSubFeed event.Feed
	bundleIncFeed event.Feed
	opIncFeed     event.Feed
}

// New returns a ready-to-use Bus. The zero value would also work since
// event.Feed needs no initialization, but New documents the intended
// construction point (one Bus per node).
func New() *Bus {
	return &Bus{}
}

// SubscribeNewBlock registers ch to receive NewBlockEvent.
func (b *Bus) SubscribeNewBlock(ch chan<- NewBlockEvent) event.Subscription {
	return b.newBlockFeed.Subscribe(ch)
}

// PublishNewBlock sends ev to every current NewBlockEvent subscriber.
func (b *Bus) PublishNewBlock(ev NewBlockEvent) int {
	return b.newBlockFeed.Send(ev)
}

// SubscribeNewUserOp registers ch to receive NewUserOpEvent.
func (b *Bus) SubscribeNewUserOp(ch chan<- NewUserOpEvent) event.Subscription {
	return b.newUserOpFeed.Subscribe(ch)
}

// PublishNewUserOp sends ev to every current NewUserOpEvent subscriber.
func (b *Bus) PublishNewUserOp(ev NewUserOpEvent) int {
	return b.newUserOpFeed.Send(ev)
}

// SubscribeRemovedUserOp registers ch to receive RemovedUserOpEvent.
func (b *Bus) SubscribeRemovedUserOp(ch chan<- RemovedUserOpEvent) event.Subscription {
	return b.removedOpFeed.Subscribe(ch)
}

// PublishRemovedUserOp sends ev to every current RemovedUserOpEvent subscriber.
func (b *Bus) PublishRemovedUserOp(ev RemovedUserOpEvent) int {
	return b.removedOpFeed.Send(ev)
}

// SubscribeBundleSubmitted registers ch to receive NewBundleSubmittedEvent.
func (b *Bus) SubscribeBundleSubmitted(ch chan<- NewBundleSubmittedEvent) event.Subscription {
	return b.bundleSubFeed.Subscribe(ch)
}

// PublishBundleSubmitted sends ev to every current NewBundleSubmittedEvent subscriber.
func (b *Bus) PublishBundleSubmitted(ev NewBundleSubmittedEvent) int {
	return b.bundleSubFeed.Send(ev)
}

// SubscribeBundleIncluded registers ch to receive BundleIncludedEvent.
func (b *Bus) SubscribeBundleIncluded(ch chan<- BundleIncludedEvent) event.Subscription {
	return b.bundleIncFeed.Subscribe(ch)
}

// PublishBundleIncluded sends ev to every current BundleIncludedEvent subscriber.
func (b *Bus) PublishBundleIncluded(ev BundleIncludedEvent) int {
	return b.bundleIncFeed.Send(ev)
}

// SubscribeUserOpIncluded registers ch to receive UserOpIncludedEvent.
func (b *Bus) SubscribeUserOpIncluded(ch chan<- UserOpIncludedEvent) event.Subscription {
	return b.opIncFeed.Subscribe(ch)
}

// PublishUserOpIncluded sends ev to every current UserOpIncludedEvent subscriber.
func (b *Bus) PublishUserOpIncluded(ev UserOpIncludedEvent) int {
	return b.opIncFeed.Send(ev)
}
