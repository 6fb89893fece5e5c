// Package rafthttp binds a *raft.Replica to HTTP, using gorilla/mux for
// routing. It is the one concrete transport this module ships; anything
// implementing raft.Peer can substitute for it.
package rafthttp

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pinkant/raft"
)

// Route paths. Named after the original server's Flask routes
// (/append_entries, /request_vote, /client_append_entries) with an added
// /id introspection endpoint carried over from the teacher's http package.
const (
	IDPath            = "/id"
	AppendEntriesPath = "/append_entries"
	RequestVotePath   = "/request_vote"
	ClientAppendPath  = "/client_append_entries"
)

// replica is the subset of *raft.Replica the HTTP server drives. Expressed
// as an interface so handlers can be tested against a fake.
type replica interface {
	ID() raft.PeerID
	AppendEntries(raft.AppendEntriesRequest) raft.AppendEntriesResponse
	RequestVote(raft.RequestVoteRequest) raft.RequestVoteResponse
	ClientAppend([]byte) raft.ClientAppendResponse
}

// Server exposes a replica's RPC surface over HTTP.
type Server struct {
	replica replica
	dedup   *idempotentCache
	logger  *zap.SugaredLogger
}

// NewServer wraps r. logger may be nil, in which case a development logger
// is used.
func NewServer(r replica, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = raft.NewDevelopmentLogger()
	}
	return &Server{replica: r, dedup: newIdempotentCache(1024), logger: logger}
}

// Install registers every route on router.
func (s *Server) Install(router *mux.Router) {
	router.HandleFunc(IDPath, s.handleID).Methods(http.MethodGet)
	router.HandleFunc(AppendEntriesPath, s.handleAppendEntries).Methods(http.MethodPost)
	router.HandleFunc(RequestVotePath, s.handleRequestVote).Methods(http.MethodPost)
	router.HandleFunc(ClientAppendPath, s.handleClientAppend).Methods(http.MethodPost)
}

func (s *Server) handleID(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(s.replica.ID()))
}

func (s *Server) handleAppendEntries(w http.ResponseWriter, r *http.Request) {
	var req raft.AppendEntriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := s.replica.AppendEntries(req)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRequestVote(w http.ResponseWriter, r *http.Request) {
	var req raft.RequestVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := s.replica.RequestVote(req)
	json.NewEncoder(w).Encode(resp)
}

// handleClientAppend accepts either a bare payload or, when sent via
// Client.AppendIdempotent, a {request_id, payload} envelope. In the latter
// case a request_id that already succeeded short-circuits straight to the
// cached response instead of appending the payload again; a failed attempt
// is not cached, so a retry reaches the replica — see idempotent.go.
func (s *Server) handleClientAppend(w http.ResponseWriter, r *http.Request) {
	var req raft.ClientAppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if env, ok := decodeEnvelope(req.Payload); ok {
		if cached, hit := s.dedup.Get(env.RequestID); hit {
			s.logger.Debugw("idempotent replay suppressed", "requestID", env.RequestID)
			json.NewEncoder(w).Encode(cached)
			return
		}
		resp := s.replica.ClientAppend(env.Payload)
		if resp.Success {
			s.dedup.Add(env.RequestID, resp)
		}
		json.NewEncoder(w).Encode(resp)
		return
	}

	resp := s.replica.ClientAppend(req.Payload)
	json.NewEncoder(w).Encode(resp)
}
