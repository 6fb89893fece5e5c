package raft

import "errors"

// Sentinel errors returned by the in-process helpers around the core.
// The wire-level handlers never return errors themselves — per the
// transport contract, everything is encoded in response payloads. Of these,
// only ErrUnknownLeader is currently returned, by Client when it has no peer
// to contact; ErrNotLeader and ErrTimeout are not returned by any code in
// this module.
var (
	ErrNotLeader     = errors.New("raft: not the leader")
	ErrUnknownLeader = errors.New("raft: leader not known, election likely in progress")
	ErrTimeout       = errors.New("raft: request timed out")
)
