package raft

// logEntry is a single (term, payload) record. The payload is opaque to the
// log; it is never inspected, only stored and handed back by value.
type logEntry struct {
	term    uint64
	payload []byte
}

// Log is the in-memory, ordered sequence of log entries a Replica owns
// exclusively. Indices are 1-based; index 0 is the sentinel meaning "before
// the first entry". Log is not safe for concurrent use — callers (the
// Replica's handlers and drivers) are responsible for serializing access,
// per the single-owner model described for ReplicaState.
type Log struct {
	entries []logEntry
}

// NewLog returns an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Len returns the number of entries currently stored.
func (l *Log) Len() uint64 {
	return uint64(len(l.entries))
}

// AppendItem appends a new entry at position len+1 and returns its index.
// No deduplication is performed.
func (l *Log) AppendItem(term uint64, payload []byte) uint64 {
	l.entries = append(l.entries, logEntry{term: term, payload: payload})
	return l.Len()
}

// GetItemTerm returns the term stored at index, or 0 when index is the
// pre-first sentinel (0). Indices beyond Len() are out of contract.
func (l *Log) GetItemTerm(index uint64) uint64 {
	if index == 0 {
		return 0
	}
	return l.entries[index-1].term
}

// GetItem returns the payload at index. ok is false exactly when index is
// one past the end of the log (the probe a leader uses to detect a caught-up
// follower); any other out-of-range index is out of contract.
func (l *Log) GetItem(index uint64) (payload []byte, ok bool) {
	if index == l.Len()+1 {
		return nil, false
	}
	return l.entries[index-1].payload, true
}

// SyncAtItem is the log-repair primitive used by followers handling
// AppendEntries. See §4.1 for the full semantics:
//
//  1. If the log is shorter than index, the follower lacks the entry:
//     return false so the leader backs off.
//  2. If the term at index disagrees with the leader's term there, truncate
//     the conflicting suffix and return true only if the log is now empty —
//     otherwise false, telling the leader to keep backing off.
//  3. Otherwise truncate anything strictly past index (idempotent for
//     append-only traffic) and return true.
func (l *Log) SyncAtItem(index, term uint64) bool {
	if l.Len() < index {
		return false
	}
	if index > 0 && l.GetItemTerm(index) != term {
		l.entries = l.entries[:index-1]
		return l.Len() == 0
	}
	l.entries = l.entries[:index]
	return true
}
