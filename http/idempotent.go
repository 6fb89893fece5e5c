package rafthttp

import (
	"encoding/json"

	lru "github.com/hashicorp/golang-lru"

	"github.com/pinkant/raft"
)

// envelope mirrors the wire shape raft.Client.AppendIdempotent produces.
// The core package keeps its own copy unexported; HTTP is the one edge that
// needs to parse it back out.
type envelope struct {
	RequestID string `json:"request_id"`
	Payload   []byte `json:"payload"`
}

// decodeEnvelope reports whether raw is an idempotent envelope rather than a
// bare payload. A bare payload that happens to parse as JSON but lacks
// request_id is treated as non-enveloped.
func decodeEnvelope(raw []byte) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, false
	}
	if env.RequestID == "" {
		return envelope{}, false
	}
	return env, true
}

// idempotentCache remembers the successful response already produced for a
// given client request id, so a retried AppendIdempotent call never re-applies a
// payload that already committed. Bounded by an LRU rather than a map so a
// long-lived leader doesn't leak memory over client churn.
type idempotentCache struct {
	cache *lru.Cache
}

func newIdempotentCache(size int) *idempotentCache {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &idempotentCache{cache: c}
}

func (c *idempotentCache) Get(requestID string) (raft.ClientAppendResponse, bool) {
	v, ok := c.cache.Get(requestID)
	if !ok {
		return raft.ClientAppendResponse{}, false
	}
	return v.(raft.ClientAppendResponse), true
}

func (c *idempotentCache) Add(requestID string, resp raft.ClientAppendResponse) {
	c.cache.Add(requestID, resp)
}
