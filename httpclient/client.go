// Package httpclient implements raft.Peer by calling another replica's
// rafthttp.Server over the network.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pinkant/raft"
	rafthttp "github.com/pinkant/raft/http"
)

// Peer is an outbound raft.Peer backed by net/http. A delivery failure of
// any kind — connection refused, timeout, malformed body — reports ok=false
// and never surfaces a Go error to the core, per the transport contract.
type Peer struct {
	id      raft.PeerID
	baseURL string
	client  *http.Client
}

// New returns a Peer that sends RPCs to baseURL (e.g. "http://10.0.0.2:8080").
func New(id raft.PeerID, baseURL string, client *http.Client) *Peer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Peer{id: id, baseURL: baseURL, client: client}
}

func (p *Peer) ID() raft.PeerID { return p.id }

func (p *Peer) SendAppendEntries(ctx context.Context, req raft.AppendEntriesRequest) (raft.AppendEntriesResponse, bool) {
	var resp raft.AppendEntriesResponse
	ok := p.post(ctx, rafthttp.AppendEntriesPath, req, &resp)
	return resp, ok
}

func (p *Peer) SendRequestVote(ctx context.Context, req raft.RequestVoteRequest) (raft.RequestVoteResponse, bool) {
	var resp raft.RequestVoteResponse
	ok := p.post(ctx, rafthttp.RequestVotePath, req, &resp)
	return resp, ok
}

func (p *Peer) SendClientAppend(ctx context.Context, req raft.ClientAppendRequest) (raft.ClientAppendResponse, bool) {
	var resp raft.ClientAppendResponse
	ok := p.post(ctx, rafthttp.ClientAppendPath, req, &resp)
	return resp, ok
}

func (p *Peer) post(ctx context.Context, path string, body, out interface{}) bool {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, buf)
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false
	}
	return true
}
