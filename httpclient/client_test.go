package httpclient_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinkant/raft"
	"github.com/pinkant/raft/httpclient"
	rafthttp "github.com/pinkant/raft/http"
)

func newTestServer(t *testing.T, r *raft.Replica) *httptest.Server {
	t.Helper()
	router := mux.NewRouter()
	rafthttp.NewServer(r, nil).Install(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPPeerRoundTripsAppendEntries(t *testing.T) {
	r := raft.NewReplica("1", nil, raft.DefaultTiming(), nil)
	srv := newTestServer(t, r)

	peer := httpclient.New("1", srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, ok := peer.SendAppendEntries(ctx, raft.AppendEntriesRequest{Term: 3, LeaderID: "9"})
	require.True(t, ok)
	assert.True(t, resp.Success)
	assert.Equal(t, uint64(3), resp.Term)
}

func TestHTTPPeerRoundTripsRequestVote(t *testing.T) {
	r := raft.NewReplica("1", nil, raft.DefaultTiming(), nil)
	srv := newTestServer(t, r)

	peer := httpclient.New("1", srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, ok := peer.SendRequestVote(ctx, raft.RequestVoteRequest{Term: 1, CandidateID: "9"})
	require.True(t, ok)
	assert.True(t, resp.VoteGranted)
}

func TestHTTPPeerReportsFailureOnUnreachableHost(t *testing.T) {
	peer := httpclient.New("1", "http://127.0.0.1:1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, ok := peer.SendAppendEntries(ctx, raft.AppendEntriesRequest{})
	assert.False(t, ok)
}
