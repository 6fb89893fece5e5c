package raft

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client is the thin leader-discovery loop described in §4.6: it retries
// ClientAppend against whichever peer it currently believes is leader until
// the payload is known committed. It has no notion of term, so retries on
// transport failure can double-apply a payload — see §9's note on client
// idempotence, and AppendIdempotent below for the opt-in fix.
type Client struct {
	mu      sync.Mutex
	peers   Peers
	leader  PeerID
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewClient returns a Client that will contact the given peers.
func NewClient(peers Peers, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = NewDevelopmentLogger()
	}
	return &Client{peers: peers, timeout: timeout, logger: logger}
}

// AppendEntries blocks until payload is committed, ctx is canceled, or a
// non-transient error is encountered.
func (c *Client) AppendEntries(ctx context.Context, payload []byte) error {
	for {
		target, err := c.currentTargetLocked()
		if err != nil {
			return err
		}

		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, ok := target.SendClientAppend(rctx, ClientAppendRequest{Payload: payload})
		cancel()

		if ok && resp.Success {
			return nil
		}

		var wait time.Duration
		c.mu.Lock()
		switch {
		case !ok:
			// Transport failure: retry the same peer after a beat.
			wait = c.timeout
		case resp.Leader == "":
			// Election in progress: drop the cached leader and retry.
			c.leader = ""
			wait = c.timeout
		default:
			// Redirected: retry immediately against the new leader.
			c.leader = resp.Leader
			wait = 0
		}
		c.mu.Unlock()

		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
}

func (c *Client) currentTargetLocked() (Peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leader == "" {
		ids := c.peers.IDs()
		if len(ids) == 0 {
			return nil, ErrUnknownLeader
		}
		c.leader = ids[rand.Intn(len(ids))]
	}
	target, ok := c.peers[c.leader]
	if !ok {
		c.leader = ""
		return nil, ErrUnknownLeader
	}
	return target, nil
}

// idempotentEnvelope pairs a client-generated request id with the payload.
// The HTTP transport's leader-side handler (see the http package) unwraps
// this, deduplicates on RequestID, and forwards the bare Payload into the
// core — the core's ClientAppend never sees the envelope.
type idempotentEnvelope struct {
	RequestID string `json:"request_id"`
	Payload   []byte `json:"payload"`
}

// AppendIdempotent is the supplemental, opt-in extension described in §9's
// "Client idempotence" note: it tags the payload with a fresh request id so
// a deduplicating edge (see http.idempotentCache) can recognize and
// short-circuit a retried append instead of committing it twice.
func (c *Client) AppendIdempotent(ctx context.Context, payload []byte) error {
	env := idempotentEnvelope{RequestID: uuid.NewString(), Payload: payload}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.AppendEntries(ctx, body)
}
