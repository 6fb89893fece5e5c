package raft

import "context"

// PeerID identifies a replica. It is opaque to the core: any value that is
// comparable for equality and has a stable printable form works. The source
// this engine is modeled on used stringified port numbers on localhost, but
// nothing here assumes that convention — a string is just the most ergonomic
// comparable-and-printable type available.
type PeerID = string

// AppendEntriesRequest is sent by a Leader to a follower. Entry is nil for a
// heartbeat; this engine sends at most one new entry per RPC.
type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     PeerID
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entry        []byte
	HasEntry     bool
	LeaderCommit uint64
}

// AppendEntriesResponse is the follower's reply.
type AppendEntriesResponse struct {
	Term    uint64
	Success bool
}

// RequestVoteRequest is sent by a Candidate to every peer.
type RequestVoteRequest struct {
	Term         uint64
	CandidateID  PeerID
	LastLogIndex uint64
	LastLogTerm  uint64
}

// RequestVoteResponse is a peer's reply to a vote request.
type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

// ClientAppendRequest carries a client's payload toward whichever replica
// currently believes itself to be Leader.
type ClientAppendRequest struct {
	Payload []byte
}

// ClientAppendResponse reports whether the payload committed, and if not,
// redirects the caller toward the best-known Leader.
type ClientAppendResponse struct {
	Success bool
	Leader  PeerID
}

// Peer is the sending side of the two RPC hooks §6 describes, plus the
// ClientAppend hook the ambient Client uses. A transport binding (the http
// package, or a LocalPeer wrapping another in-process Replica) implements
// this. ok is false for any delivery failure: refused connection, timeout,
// or malformed reply — no error ever escapes to the core.
type Peer interface {
	ID() PeerID
	SendAppendEntries(ctx context.Context, req AppendEntriesRequest) (resp AppendEntriesResponse, ok bool)
	SendRequestVote(ctx context.Context, req RequestVoteRequest) (resp RequestVoteResponse, ok bool)
	SendClientAppend(ctx context.Context, req ClientAppendRequest) (resp ClientAppendResponse, ok bool)
}

// Peers is the set of peer transports a Replica or Client knows about,
// keyed by PeerID. A Replica's Peers never includes itself.
type Peers map[PeerID]Peer

// IDs returns the peer ids in an unspecified order.
func (p Peers) IDs() []PeerID {
	ids := make([]PeerID, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	return ids
}

// LocalPeer adapts an in-process Replica to the Peer interface, so that
// multi-replica scenarios can run as goroutines within a single test binary
// without any real transport.
type LocalPeer struct {
	replica *Replica
}

// NewLocalPeer wraps r for in-process delivery.
func NewLocalPeer(r *Replica) *LocalPeer {
	return &LocalPeer{replica: r}
}

func (p *LocalPeer) ID() PeerID { return p.replica.ID() }

func (p *LocalPeer) SendAppendEntries(_ context.Context, req AppendEntriesRequest) (AppendEntriesResponse, bool) {
	return p.replica.AppendEntries(req), true
}

func (p *LocalPeer) SendRequestVote(_ context.Context, req RequestVoteRequest) (RequestVoteResponse, bool) {
	return p.replica.RequestVote(req), true
}

func (p *LocalPeer) SendClientAppend(_ context.Context, req ClientAppendRequest) (ClientAppendResponse, bool) {
	return p.replica.ClientAppend(req.Payload), true
}
