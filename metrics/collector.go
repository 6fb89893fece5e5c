// Package metrics exposes a replica's role, term and commit index as
// Prometheus series. It sits outside the core package entirely: the core
// never imports prometheus, it only hands out enough read-only state
// (State, Term, CommitIndex) for this package to poll.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pinkant/raft"
)

// Collector implements prometheus.Collector by snapshotting a replica on
// every scrape rather than updating counters inline on the hot path.
type Collector struct {
	replica *raft.Replica

	term        *prometheus.Desc
	role        *prometheus.Desc
	commitIndex *prometheus.Desc
}

// NewCollector returns a Collector for r. id labels every series, so a
// single registry can aggregate collectors from many replicas in-process.
func NewCollector(r *raft.Replica) *Collector {
	labels := []string{"id"}
	return &Collector{
		replica: r,
		term: prometheus.NewDesc(
			"raft_current_term", "Current term observed by the replica.", labels, nil),
		role: prometheus.NewDesc(
			"raft_role", "Current role as an enum: 0=Follower, 1=Candidate, 2=Leader.", labels, nil),
		commitIndex: prometheus.NewDesc(
			"raft_commit_index", "Highest log index known committed.", labels, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.term
	ch <- c.role
	ch <- c.commitIndex
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	id := c.replica.ID()
	ch <- prometheus.MustNewConstMetric(c.term, prometheus.CounterValue, float64(c.replica.Term()), id)
	ch <- prometheus.MustNewConstMetric(c.role, prometheus.GaugeValue, float64(c.replica.State()), id)
	ch <- prometheus.MustNewConstMetric(c.commitIndex, prometheus.CounterValue, float64(c.replica.CommitIndex()), id)
}
