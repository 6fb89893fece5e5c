package raft

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Role is a Replica's place in the Follower/Candidate/Leader state machine.
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// Replica is the state machine each node in the cluster runs: role
// transitions, voting, log replication and commitment. All mutable state is
// guarded by mu and is mutated only from (a) the RPC handlers below and (b)
// the two driver goroutines (electionLoop, heartbeatLoop) started by Start.
// Outbound RPCs are never issued while mu is held.
type Replica struct {
	mu sync.Mutex

	id     PeerID
	peers  Peers
	timing Timing
	logger *zap.SugaredLogger

	role           Role
	currentTerm    uint64
	votedFor       PeerID // "" means no vote cast this term
	log            *Log
	commitIndex    uint64
	lastApplied    uint64
	leaderID       PeerID // "" means unknown
	talkedToLeader bool

	nextIndex  map[PeerID]uint64
	matchIndex map[PeerID]uint64

	promoted chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReplica creates a Replica with the given id and peer ids. Call SetPeers
// once real (or local, for tests) transports are available, then Start.
func NewReplica(id PeerID, peerIDs []PeerID, timing Timing, logger *zap.SugaredLogger) *Replica {
	if logger == nil {
		logger = NewDevelopmentLogger()
	}
	r := &Replica{
		id:       id,
		peers:    make(Peers, len(peerIDs)),
		timing:   timing,
		logger:   logger.With("id", id),
		role:     Follower,
		log:      NewLog(),
		promoted: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	for _, pid := range peerIDs {
		r.peers[pid] = nil
	}
	return r
}

// SetPeers injects the peer transports this Replica will talk to. Keys not
// already known from construction are ignored; this mirrors NewServer/
// SetPeers split in the teacher so tests can wire up LocalPeer loops after
// every Replica in a cluster has been constructed.
func (r *Replica) SetPeers(peers Peers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range peers {
		if _, known := r.peers[id]; known {
			r.peers[id] = p
		}
	}
}

// ID returns the replica's stable identifier.
func (r *Replica) ID() PeerID { return r.id }

// State returns the current role.
func (r *Replica) State() Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.role
}

// Term returns the current term.
func (r *Replica) Term() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentTerm
}

// CommitIndex returns the highest log index this replica knows to be
// committed. Exported mainly so tests and metrics collectors can observe
// replication progress without reaching into unexported state.
func (r *Replica) CommitIndex() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitIndex
}

// Start launches the election and heartbeat drivers.
func (r *Replica) Start() {
	r.wg.Add(2)
	go func() { defer r.wg.Done(); r.electionLoop() }()
	go func() { defer r.wg.Done(); r.heartbeatLoop() }()
}

// Stop terminates the drivers and waits for them to exit.
func (r *Replica) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Replica) majorityLocked() int {
	return (len(r.peers)+1)/2 + 1
}

func (r *Replica) peersSnapshotLocked() []Peer {
	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// checkResponseTermLocked steps down to Follower and adopts term if it is
// newer than ours. Returns false when that happened, signaling the caller to
// abort whatever it was doing.
func (r *Replica) checkResponseTermLocked(term uint64) bool {
	if term > r.currentTerm {
		r.logger.Infow("stepping down: saw higher term", "theirTerm", term, "ourTerm", r.currentTerm)
		r.currentTerm = term
		r.role = Follower
		r.votedFor = ""
		r.leaderID = ""
		return false
	}
	return true
}

// AppendEntries handles an inbound AppendEntries RPC. See §4.2.
func (r *Replica) AppendEntries(req AppendEntriesRequest) AppendEntriesResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Term < r.currentTerm {
		r.logger.Debugw("rejecting append entries: stale term", "reqTerm", req.Term, "ourTerm", r.currentTerm)
		return AppendEntriesResponse{Term: r.currentTerm, Success: false}
	}

	r.role = Follower
	r.talkedToLeader = true
	r.leaderID = req.LeaderID
	r.currentTerm = req.Term
	r.votedFor = ""

	if !r.log.SyncAtItem(req.PrevLogIndex, req.PrevLogTerm) {
		r.logger.Debugw("rejecting append entries: log conflict",
			"prevLogIndex", req.PrevLogIndex, "prevLogTerm", req.PrevLogTerm)
		return AppendEntriesResponse{Term: r.currentTerm, Success: false}
	}

	if req.HasEntry {
		r.log.AppendItem(req.Term, req.Entry)
	}

	if req.LeaderCommit > r.commitIndex {
		if req.LeaderCommit < r.log.Len() {
			r.commitIndex = req.LeaderCommit
		} else {
			r.commitIndex = r.log.Len()
		}
	}

	return AppendEntriesResponse{Term: r.currentTerm, Success: true}
}

// RequestVote handles an inbound RequestVote RPC. See §4.3.
func (r *Replica) RequestVote(req RequestVoteRequest) RequestVoteResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Term < r.currentTerm {
		return RequestVoteResponse{Term: r.currentTerm, VoteGranted: false}
	}

	if r.votedFor != "" && r.votedFor != req.CandidateID {
		return RequestVoteResponse{Term: r.currentTerm, VoteGranted: false}
	}

	myLastTerm := r.log.GetItemTerm(r.log.Len())
	myLastIndex := r.log.Len()
	if myLastTerm > req.LastLogTerm || myLastIndex > req.LastLogIndex {
		return RequestVoteResponse{Term: r.currentTerm, VoteGranted: false}
	}

	r.votedFor = req.CandidateID
	r.logger.Debugw("granting vote", "candidate", req.CandidateID, "term", req.Term)
	return RequestVoteResponse{Term: r.currentTerm, VoteGranted: true}
}

// ClientAppend handles an inbound client request. See §4.7. It blocks until
// the entry commits, leadership is lost, or the caller is no longer leader
// to begin with.
func (r *Replica) ClientAppend(payload []byte) ClientAppendResponse {
	r.mu.Lock()
	if r.role != Leader {
		resp := ClientAppendResponse{Success: false, Leader: r.leaderID}
		r.mu.Unlock()
		return resp
	}
	idx := r.log.AppendItem(r.currentTerm, payload)
	peers := r.peersSnapshotLocked()
	r.mu.Unlock()

	if len(peers) == 0 {
		// Single-node cluster: self alone is already a majority.
		r.mu.Lock()
		r.tryLeaderCommitLocked(idx)
		resp := ClientAppendResponse{Success: true, Leader: r.leaderID}
		r.mu.Unlock()
		return resp
	}

	peerIdx := 0
	for {
		r.mu.Lock()
		if r.role != Leader {
			resp := ClientAppendResponse{Success: false, Leader: r.leaderID}
			r.mu.Unlock()
			return resp
		}
		r.mu.Unlock()

		peer := peers[peerIdx%len(peers)]
		next, ok := r.appendEntryToFollower(peer)
		if !ok {
			peerIdx++
			continue
		}
		if next <= idx {
			continue // peer still catching up; retry the same peer
		}

		r.mu.Lock()
		committed := r.commitIndex >= idx
		resp := ClientAppendResponse{Success: true, Leader: r.leaderID}
		r.mu.Unlock()
		if committed {
			return resp
		}
		peerIdx++
	}
}

// appendEntryToFollower sends a single AppendEntries RPC to peer, advancing
// its nextIndex/matchIndex bookkeeping on success and attempting to commit.
// ok is false exactly when the RPC was unreachable or we are no longer
// leader for the term we sent.
func (r *Replica) appendEntryToFollower(peer Peer) (next uint64, ok bool) {
	r.mu.Lock()
	if r.role != Leader {
		r.mu.Unlock()
		return 0, false
	}
	term := r.currentTerm
	nextIdx := r.nextIndex[peer.ID()]
	prevIdx := nextIdx - 1
	prevTerm := r.log.GetItemTerm(prevIdx)
	entry, hasEntry := r.log.GetItem(nextIdx)
	req := AppendEntriesRequest{
		Term:         term,
		LeaderID:     r.id,
		PrevLogIndex: prevIdx,
		PrevLogTerm:  prevTerm,
		Entry:        entry,
		HasEntry:     hasEntry,
		LeaderCommit: r.commitIndex,
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timing.Request)
	resp, sent := peer.SendAppendEntries(ctx, req)
	cancel()
	if !sent {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.checkResponseTermLocked(resp.Term) {
		return 0, false
	}
	if r.role != Leader || r.currentTerm != term {
		return 0, false
	}

	if !resp.Success {
		if r.nextIndex[peer.ID()] > 1 {
			r.nextIndex[peer.ID()]--
		}
		return r.nextIndex[peer.ID()], true
	}

	if hasEntry {
		r.nextIndex[peer.ID()]++
		r.matchIndex[peer.ID()] = nextIdx
		r.tryLeaderCommitLocked(nextIdx)
	}
	return r.nextIndex[peer.ID()], true
}

// tryLeaderCommitLocked advances commitIndex to index once a majority of
// replicas (counting self) have matchIndex >= index. commitIndex never
// decreases. Canonical Raft's current-term-only commit restriction is
// deliberately not enforced here; see §9.
func (r *Replica) tryLeaderCommitLocked(index uint64) {
	if r.commitIndex >= index {
		return
	}
	committed := 1 // self
	for _, m := range r.matchIndex {
		if m >= index {
			committed++
		}
	}
	if committed >= r.majorityLocked() {
		r.commitIndex = index
		r.logger.Infow("advanced commit index", "index", index)
	}
}

// electionLoop is the continuously running election driver (§4.4).
func (r *Replica) electionLoop() {
	for {
		select {
		case <-r.stopCh:
			return
		case <-time.After(randomDuration(r.timing.MinVoting, r.timing.MaxVoting)):
		}

		r.mu.Lock()
		if r.role == Leader {
			r.mu.Unlock()
			continue
		}
		if r.talkedToLeader {
			r.talkedToLeader = false
			r.mu.Unlock()
			continue
		}

		r.role = Candidate
		r.currentTerm++
		r.votedFor = r.id
		term := r.currentTerm
		votes := 1
		majority := r.majorityLocked()
		lastIndex := r.log.Len()
		lastTerm := r.log.GetItemTerm(lastIndex)
		peers := r.peersSnapshotLocked()
		r.logger.Infow("starting election", "term", term, "majority", majority)
		r.mu.Unlock()

		perRPCTimeout := r.timing.MinVoting
		if n := len(peers); n > 0 {
			perRPCTimeout = r.timing.MinVoting / time.Duration(n)
		}

		for _, peer := range peers {
			r.mu.Lock()
			if r.role != Candidate || r.currentTerm != term {
				r.mu.Unlock()
				break
			}
			r.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), perRPCTimeout)
			resp, ok := peer.SendRequestVote(ctx, RequestVoteRequest{
				Term:         term,
				CandidateID:  r.id,
				LastLogIndex: lastIndex,
				LastLogTerm:  lastTerm,
			})
			cancel()
			if !ok {
				continue
			}

			r.mu.Lock()
			if !r.checkResponseTermLocked(resp.Term) {
				r.mu.Unlock()
				break
			}
			if r.role != Candidate {
				r.mu.Unlock()
				break
			}
			if resp.VoteGranted {
				votes++
				if votes >= majority {
					r.becomeLeaderLocked()
					r.mu.Unlock()
					break
				}
			}
			r.mu.Unlock()
		}
	}
}

// becomeLeaderLocked transitions to Leader, resets the per-follower cursors
// and wakes the heartbeat driver. Must be called with mu held.
func (r *Replica) becomeLeaderLocked() {
	r.role = Leader
	r.leaderID = r.id
	r.nextIndex = make(map[PeerID]uint64, len(r.peers))
	r.matchIndex = make(map[PeerID]uint64, len(r.peers))
	for id := range r.peers {
		r.nextIndex[id] = r.log.Len() + 1
		r.matchIndex[id] = 0
	}
	r.logger.Infow("elected leader", "term", r.currentTerm)
	select {
	case r.promoted <- struct{}{}:
	default:
	}
}

// heartbeatLoop is the continuously running heartbeat/sync driver (§4.5).
func (r *Replica) heartbeatLoop() {
	for {
		r.mu.Lock()
		isLeader := r.role == Leader
		r.mu.Unlock()

		if !isLeader {
			select {
			case <-r.stopCh:
				return
			case <-r.promoted:
			}
			continue
		}

		r.mu.Lock()
		peers := r.peersSnapshotLocked()
		r.mu.Unlock()

		for _, peer := range peers {
			for {
				r.mu.Lock()
				stillLeader := r.role == Leader
				r.mu.Unlock()
				if !stillLeader {
					break
				}

				next, ok := r.appendEntryToFollower(peer)
				if !ok {
					break
				}
				r.mu.Lock()
				past := next > r.log.Len()
				r.mu.Unlock()
				if past {
					break
				}
			}
		}

		select {
		case <-r.stopCh:
			return
		case <-time.After(randomDuration(r.timing.MinVoting/4, r.timing.MinVoting/2)):
		}
	}
}
