package raft

import (
	"math/rand"
	"time"
)

// Timing holds the deployment-tunable interval constants. The only invariant
// that must hold is MinVoting/2 (the heartbeat upper bound) well under
// MinVoting itself, so heartbeats refresh talkedToLeader before the next
// election timer can fire.
type Timing struct {
	// Request bounds a single outbound RPC (client/leader -> peer).
	Request time.Duration
	// MinVoting and MaxVoting bound the randomized election timeout.
	MinVoting time.Duration
	MaxVoting time.Duration
}

// DefaultTiming matches the source-implied defaults: REQUEST ~= 1s,
// MIN_VOTING ~= 5s, MAX_VOTING ~= 10s.
func DefaultTiming() Timing {
	return Timing{
		Request:   1 * time.Second,
		MinVoting: 5 * time.Second,
		MaxVoting: 10 * time.Second,
	}
}

func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
