package raft_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pinkant/raft"
)

func fastTiming() raft.Timing {
	return raft.Timing{
		Request:   10 * time.Millisecond,
		MinVoting: 40 * time.Millisecond,
		MaxVoting: 80 * time.Millisecond,
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	backoff := 5 * time.Millisecond
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(backoff)
	}
	require.True(t, cond(), "condition never became true within %s", timeout)
}

// nonresponsivePeer never replies: every send reports a delivery failure.
type nonresponsivePeer string

func (p nonresponsivePeer) ID() raft.PeerID { return string(p) }
func (p nonresponsivePeer) SendAppendEntries(context.Context, raft.AppendEntriesRequest) (raft.AppendEntriesResponse, bool) {
	return raft.AppendEntriesResponse{}, false
}
func (p nonresponsivePeer) SendRequestVote(context.Context, raft.RequestVoteRequest) (raft.RequestVoteResponse, bool) {
	return raft.RequestVoteResponse{}, false
}
func (p nonresponsivePeer) SendClientAppend(context.Context, raft.ClientAppendRequest) (raft.ClientAppendResponse, bool) {
	return raft.ClientAppendResponse{}, false
}

// approvingPeer always grants any vote requested of it.
type approvingPeer string

func (p approvingPeer) ID() raft.PeerID { return string(p) }
func (p approvingPeer) SendAppendEntries(context.Context, raft.AppendEntriesRequest) (raft.AppendEntriesResponse, bool) {
	return raft.AppendEntriesResponse{Success: true}, true
}
func (p approvingPeer) SendRequestVote(_ context.Context, req raft.RequestVoteRequest) (raft.RequestVoteResponse, bool) {
	return raft.RequestVoteResponse{Term: req.Term, VoteGranted: true}, true
}
func (p approvingPeer) SendClientAppend(context.Context, raft.ClientAppendRequest) (raft.ClientAppendResponse, bool) {
	return raft.ClientAppendResponse{}, false
}

// disapprovingPeer always rejects vote requests.
type disapprovingPeer string

func (p disapprovingPeer) ID() raft.PeerID { return string(p) }
func (p disapprovingPeer) SendAppendEntries(context.Context, raft.AppendEntriesRequest) (raft.AppendEntriesResponse, bool) {
	return raft.AppendEntriesResponse{Success: true}, true
}
func (p disapprovingPeer) SendRequestVote(_ context.Context, req raft.RequestVoteRequest) (raft.RequestVoteResponse, bool) {
	return raft.RequestVoteResponse{Term: req.Term, VoteGranted: false}, true
}
func (p disapprovingPeer) SendClientAppend(context.Context, raft.ClientAppendRequest) (raft.ClientAppendResponse, bool) {
	return raft.ClientAppendResponse{}, false
}

func TestReplicaStartsAsFollower(t *testing.T) {
	r := raft.NewReplica("1", []string{"2", "3"}, fastTiming(), zaptest.NewLogger(t).Sugar())
	assert.Equal(t, raft.Follower, r.State())
}

func TestFollowerToCandidateOnElectionTimeout(t *testing.T) {
	r := raft.NewReplica("1", []string{"2", "3"}, fastTiming(), zaptest.NewLogger(t).Sugar())
	r.SetPeers(raft.Peers{
		"2": nonresponsivePeer("2"),
		"3": nonresponsivePeer("3"),
	})
	r.Start()
	defer r.Stop()

	eventually(t, time.Second, func() bool {
		return r.State() == raft.Candidate
	})
}

func TestCandidateBecomesLeaderWithMajority(t *testing.T) {
	r := raft.NewReplica("1", []string{"2", "3"}, fastTiming(), zaptest.NewLogger(t).Sugar())
	r.SetPeers(raft.Peers{
		"2": approvingPeer("2"),
		"3": nonresponsivePeer("3"),
	})
	r.Start()
	defer r.Stop()

	eventually(t, time.Second, func() bool {
		return r.State() == raft.Leader
	})
}

func TestFailedElectionStaysNonLeader(t *testing.T) {
	r := raft.NewReplica("1", []string{"2", "3"}, fastTiming(), zaptest.NewLogger(t).Sugar())
	r.SetPeers(raft.Peers{
		"2": disapprovingPeer("2"),
		"3": nonresponsivePeer("3"),
	})
	r.Start()
	defer r.Stop()

	time.Sleep(3 * fastTiming().MaxVoting)
	assert.NotEqual(t, raft.Leader, r.State())
}

func TestStepsDownOnHigherTerm(t *testing.T) {
	r := raft.NewReplica("1", nil, fastTiming(), zaptest.NewLogger(t).Sugar())
	resp := r.AppendEntries(raft.AppendEntriesRequest{
		Term:         5,
		LeaderID:     "9",
		PrevLogIndex: 0,
		PrevLogTerm:  0,
	})
	assert.True(t, resp.Success)
	assert.Equal(t, raft.Follower, r.State())
	assert.Equal(t, uint64(5), r.Term())
}

func TestThreeNodeClusterElectsLeaderAndCommits(t *testing.T) {
	timing := fastTiming()
	logger := zaptest.NewLogger(t).Sugar()

	ids := []string{"1", "2", "3"}
	replicas := map[string]*raft.Replica{}
	for _, id := range ids {
		peers := []string{}
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		replicas[id] = raft.NewReplica(id, peers, timing, logger)
	}

	for _, id := range ids {
		peers := raft.Peers{}
		for _, other := range ids {
			if other != id {
				peers[other] = raft.NewLocalPeer(replicas[other])
			}
		}
		replicas[id].SetPeers(peers)
	}

	for _, r := range replicas {
		r.Start()
		defer r.Stop()
	}

	var leaderID string
	eventually(t, 2*time.Second, func() bool {
		for id, r := range replicas {
			if r.State() == raft.Leader {
				leaderID = id
				return true
			}
		}
		return false
	})

	resp := replicas[leaderID].ClientAppend([]byte(`{"a":1}`))
	require.True(t, resp.Success)

	// A majority (including the leader) must show commitIndex >= 1.
	eventually(t, time.Second, func() bool {
		committed := 0
		for _, r := range replicas {
			if r.CommitIndex() >= 1 {
				committed++
			}
		}
		return committed >= 2
	})
}

func TestConcurrentClientAppendsAreSerialized(t *testing.T) {
	timing := fastTiming()
	logger := zaptest.NewLogger(t).Sugar()

	ids := []string{"1", "2", "3"}
	replicas := map[string]*raft.Replica{}
	for _, id := range ids {
		var peers []string
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		replicas[id] = raft.NewReplica(id, peers, timing, logger)
	}
	for _, id := range ids {
		peers := raft.Peers{}
		for _, other := range ids {
			if other != id {
				peers[other] = raft.NewLocalPeer(replicas[other])
			}
		}
		replicas[id].SetPeers(peers)
	}
	for _, r := range replicas {
		r.Start()
		defer r.Stop()
	}

	var leaderID string
	eventually(t, 2*time.Second, func() bool {
		for id, r := range replicas {
			if r.State() == raft.Leader {
				leaderID = id
				return true
			}
		}
		return false
	})

	var wg sync.WaitGroup
	results := make([]raft.ClientAppendResponse, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = replicas[leaderID].ClientAppend([]byte(fmt.Sprintf(`{"n":%d}`, i)))
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.True(t, res.Success)
	}
}
