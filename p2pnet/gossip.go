package p2pnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/golang/snappy"

	"github.com/silius-bundler/silius-go/userop"
)

// gossipEnvelopeFixedLen is the length of the fixed-size header prefixed
// to every gossiped message, ahead of the SSZ-encoded UserOperation: the
// sending entry point and the sender's origin timestamp (unix seconds),
// matching §4.7's "SSZ-encoded UOs plus metadata (sender entry point,
// origin timestamp)".
const gossipEnvelopeFixedLen = 20 + 8

// Validator is the subset of *mempool.Pool a gossip topic re-validates
// an incoming UserOperation through before it is eligible for
// re-broadcast (and, on failure, before the sending peer's score is
// docked).
type Validator interface {
	AddUserOperation(ctx context.Context, op *userop.UserOperation) (common.Hash, error)
}

// topicName is the wire name for a mempool-id's gossip topic:
// userOp/<mempool-id>/ssz_snappy.
func topicName(mempoolID string) string {
	return fmt.Sprintf("userOp/%s/ssz_snappy", mempoolID)
}

// GossipRouter owns one libp2p-pubsub topic per mempool-id this node
// serves, publishing admitted UserOperations and re-validating everything
// it receives before counting it towards re-broadcast.
type GossipRouter struct {
	ps    *pubsub.PubSub
	peers *peerSet

	mu     sync.RWMutex
	topics map[string]*topicHandle
}

type topicHandle struct {
	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

// NewGossipRouter constructs a GossipSub instance over host and returns a
// router ready to Join topics.
func NewGossipRouter(ctx context.Context, h libp2phost.Host, peers *peerSet) (*GossipRouter, error) {
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}
	return &GossipRouter{ps: ps, peers: peers, topics: make(map[string]*topicHandle)}, nil
}

// Join subscribes to the gossip topic for mempoolID, registering a
// validator that re-runs the full admission pipeline (via validate) on
// every message before it is allowed to propagate, and routes accepted
// messages to onAccepted (typically the mempool's AddUserOperation via a
// thin adapter, or a direct channel send).
func (r *GossipRouter) Join(ctx context.Context, mempoolID string, entryPoint common.Address, validate Validator, onAccepted func(*userop.UserOperation)) error {
	name := topicName(mempoolID)
	r.mu.RLock()
	_, exists := r.topics[name]
	r.mu.RUnlock()
	if exists {
		return nil
	}

	if err := r.ps.RegisterTopicValidator(name, r.makeValidator(ctx, validate)); err != nil {
		return err
	}
	topic, err := r.ps.Join(name)
	if err != nil {
		return err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.topics[name] = &topicHandle{topic: topic, sub: sub}
	r.mu.Unlock()

	go r.readLoop(ctx, mempoolID, sub, onAccepted)
	return nil
}

// Publish gossips op to mempoolID's topic, SSZ-encoding and snappy-framing
// it with the given entryPoint and the current time as origin timestamp.
func (r *GossipRouter) Publish(ctx context.Context, mempoolID string, entryPoint common.Address, op *userop.UserOperation) error {
	r.mu.RLock()
	th, ok := r.topics[topicName(mempoolID)]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("p2pnet: not joined to mempool %q", mempoolID)
	}
	data, err := encodeGossipMessage(entryPoint, time.Now(), op)
	if err != nil {
		return err
	}
	return th.topic.Publish(ctx, data)
}

// makeValidator returns a pubsub.ValidatorEx that decodes the message,
// re-runs admission via validate, and rewards or penalizes the
// originating peer's score accordingly. Messages that fail to decode or
// fail admission are rejected (not propagated further); messages that
// pass are accepted and the originator's score is increased.
func (r *GossipRouter) makeValidator(ctx context.Context, validate Validator) pubsub.ValidatorEx {
	return func(_ context.Context, from libp2ppeer.ID, msg *pubsub.Message) pubsub.ValidationResult {
		pi := r.peers.getOrCreate(from)

		_, _, op, err := decodeGossipMessage(msg.Data)
		if err != nil {
			pi.PenalizeInvalidDelivery()
			return pubsub.ValidationReject
		}

		if _, err := validate.AddUserOperation(ctx, op); err != nil {
			pi.PenalizeInvalidDelivery()
			log.Debug("p2pnet: rejecting gossiped UserOperation", "peer", from, "err", err)
			return pubsub.ValidationReject
		}

		pi.RewardValidDelivery()
		return pubsub.ValidationAccept
	}
}

func (r *GossipRouter) readLoop(ctx context.Context, mempoolID string, sub *pubsub.Subscription, onAccepted func(*userop.UserOperation)) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return // ctx canceled or subscription closed
		}
		// The validator already ran (pubsub only surfaces accepted
		// messages here); decode once more to hand the op to the caller.
		_, _, op, err := decodeGossipMessage(msg.Data)
		if err != nil {
			continue
		}
		if onAccepted != nil {
			onAccepted(op)
		}
	}
}

func encodeGossipMessage(entryPoint common.Address, originTime time.Time, op *userop.UserOperation) ([]byte, error) {
	w, err := userop.ToSSZ(op)
	if err != nil {
		return nil, err
	}
	payload, err := w.MarshalSSZ()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, gossipEnvelopeFixedLen, gossipEnvelopeFixedLen+len(payload))
	copy(buf[:20], entryPoint.Bytes())
	binary.LittleEndian.PutUint64(buf[20:28], uint64(originTime.Unix()))
	buf = append(buf, payload...)

	return snappy.Encode(nil, buf), nil
}

func decodeGossipMessage(frame []byte) (common.Address, time.Time, *userop.UserOperation, error) {
	raw, err := snappy.Decode(nil, frame)
	if err != nil {
		return common.Address{}, time.Time{}, nil, err
	}
	if len(raw) < gossipEnvelopeFixedLen {
		return common.Address{}, time.Time{}, nil, errShortGossipMessage
	}
	entryPoint := common.BytesToAddress(raw[:20])
	ts := time.Unix(int64(binary.LittleEndian.Uint64(raw[20:28])), 0)

	var w userop.SSZUserOp
	if err := w.UnmarshalSSZ(raw[gossipEnvelopeFixedLen:]); err != nil {
		return common.Address{}, time.Time{}, nil, err
	}
	return entryPoint, ts, userop.FromSSZ(&w), nil
}

var errShortGossipMessage = errors.New("p2pnet: gossip message shorter than envelope header")
