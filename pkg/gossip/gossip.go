// Package gossip implements the node's broadcast layer (component C8):
// bounded fan-out to healthy peers, loop suppression via a
// time-bounded message-id cache, and rate limiting of the chattier
// peer-list sync path.
package gossip

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a gossip message.
type Kind string

const (
	KindTx       Kind = "tx"
	KindBlock    Kind = "block"
	KindPeerList Kind = "peer_list"
)

const (
	// HistoryTTL is how long a seen message-id suppresses a repeat
	// delivery of the same message before it's forgotten.
	HistoryTTL = 10 * time.Second

	// TxBlockTimeout bounds a single peer delivery of a tx or block
	// gossip message.
	TxBlockTimeout = 3 * time.Second
	// PeerListTimeout bounds a single peer delivery of a peer-list sync.
	PeerListTimeout = 5 * time.Second

	// PeerListRateLimit is the maximum number of peer-list syncs
	// originated by this node per minute.
	PeerListRateLimit = 10
	// PeerListMinSpacing is the minimum gap between two peer-list syncs
	// originated by this node, regardless of the per-minute budget.
	PeerListMinSpacing = 1 * time.Second

	// NewPeerFanoutDelay is how long the node waits before the follow-up
	// fan-out of a peer-list sync that added new peers, damping
	// rebroadcast storms.
	NewPeerFanoutDelay = 2 * time.Second
)

// Message is the envelope gossiped between nodes. ID is set by the
// originator (a fresh UUID for peer-list syncs, the txid or block hash
// for transaction and block gossip) and carried unchanged through every
// relay, which is what makes loop suppression possible.
type Message struct {
	ID      string          `json:"message_id"`
	Kind    Kind            `json:"kind"`
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// New mints a fresh message with a random id.
func New(kind Kind, origin string, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: uuid.NewString(), Kind: kind, Origin: origin, Payload: raw}, nil
}

// Transport delivers a gossip message to a single peer. The HTTP
// implementation lives in pkg/api; tests substitute a fake.
type Transport interface {
	Send(ctx context.Context, peerURL string, msg Message) error
}

// Broadcaster fans messages out to the known peer set, subject to loop
// suppression and peer-list rate limiting.
type Broadcaster struct {
	transport Transport

	mu      sync.Mutex
	seen    map[string]time.Time
	peerLog []time.Time // recent peer-list sync origination timestamps
}

// NewBroadcaster returns a Broadcaster that delivers through transport.
func NewBroadcaster(transport Transport) *Broadcaster {
	return &Broadcaster{transport: transport, seen: make(map[string]time.Time)}
}

// alreadySeen reports (and records) whether msg.ID was gossiped
// recently enough to suppress a repeat, purging stale history entries
// as it goes.
func (b *Broadcaster) alreadySeen(id string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, t := range b.seen {
		if now.Sub(t) > HistoryTTL {
			delete(b.seen, k)
		}
	}
	if t, ok := b.seen[id]; ok && now.Sub(t) <= HistoryTTL {
		return true
	}
	b.seen[id] = now
	return false
}

// allowPeerListSync enforces the 10/minute budget plus 1s minimum
// spacing for originating a peer-list sync. It does not rate-limit
// relaying a peer-list message that originated elsewhere.
func (b *Broadcaster) allowPeerListSync(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := now.Add(-1 * time.Minute)
	kept := b.peerLog[:0]
	for _, t := range b.peerLog {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.peerLog = kept
	if len(b.peerLog) >= PeerListRateLimit {
		return false
	}
	if len(b.peerLog) > 0 && now.Sub(b.peerLog[len(b.peerLog)-1]) < PeerListMinSpacing {
		return false
	}
	b.peerLog = append(b.peerLog, now)
	return true
}

// Broadcast fans msg out to peers (already filtered to healthy,
// excluding the message's source) concurrently, bounded by each
// message kind's timeout. It blocks until every delivery attempt
// completes or times out; delivery failures are not
// propagated as an error, since gossip is best-effort.
//
// Originate should be true when this node is the one generating msg
// (not relaying an inbound one); it gates the peer-list rate limiter and
// refreshes the loop-suppression cache so this node doesn't immediately
// re-relay its own message if a peer echoes it back.
func (b *Broadcaster) Broadcast(ctx context.Context, msg Message, peers []string, originate bool, now time.Time) {
	if b.alreadySeen(msg.ID, now) && !originate {
		return
	}
	if originate {
		b.mu.Lock()
		b.seen[msg.ID] = now
		b.mu.Unlock()
	}
	if msg.Kind == KindPeerList && originate && !b.allowPeerListSync(now) {
		return
	}

	timeout := TxBlockTimeout
	if msg.Kind == KindPeerList {
		timeout = PeerListTimeout
	}

	var wg sync.WaitGroup
	for _, p := range peers {
		peerURL := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			deliverCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			_ = b.transport.Send(deliverCtx, peerURL, msg)
		}()
	}
	wg.Wait()
}

// ScheduleNewPeerFanout re-delivers msg to peerURL after
// NewPeerFanoutDelay, bounded by msg's kind timeout; the peer-list sync
// handler calls it for each relay target when the sync added new peers.
// It does not block the caller.
func (b *Broadcaster) ScheduleNewPeerFanout(ctx context.Context, msg Message, peerURL string) {
	timeout := TxBlockTimeout
	if msg.Kind == KindPeerList {
		timeout = PeerListTimeout
	}
	time.AfterFunc(NewPeerFanoutDelay, func() {
		deliverCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		_ = b.transport.Send(deliverCtx, peerURL, msg)
	})
}
