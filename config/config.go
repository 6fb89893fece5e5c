// Package config loads a cluster's static peer list from YAML, the way a
// deployed raftd process is handed its topology.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pinkant/raft"
)

// Peer is one entry in the cluster's peer list.
type Peer struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// Timing mirrors raft.Timing in YAML-friendly, human-readable durations.
type Timing struct {
	Request   time.Duration `yaml:"request"`
	MinVoting time.Duration `yaml:"min_voting"`
	MaxVoting time.Duration `yaml:"max_voting"`
}

// Cluster is the top-level shape of a cluster config file.
type Cluster struct {
	Self   string `yaml:"self"`
	Listen string `yaml:"listen"`
	Peers  []Peer `yaml:"peers"`
	Timing Timing `yaml:"timing"`
}

// Load reads and parses a cluster config file at path.
func Load(path string) (*Cluster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", path)
	}

	var c Cluster
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrapf(err, "parsing config %q", path)
	}
	if c.Self == "" {
		return nil, errors.Errorf("config %q: self is required", path)
	}
	for _, p := range c.Peers {
		if p.ID == c.Self {
			return nil, errors.Errorf("config %q: self %q must not appear in peers", path, c.Self)
		}
	}
	return &c, nil
}

// RaftTiming converts the YAML timing block into raft.Timing, falling back
// to raft.DefaultTiming for any field left at its zero value.
func (c *Cluster) RaftTiming() raft.Timing {
	d := raft.DefaultTiming()
	t := raft.Timing{Request: c.Timing.Request, MinVoting: c.Timing.MinVoting, MaxVoting: c.Timing.MaxVoting}
	if t.Request == 0 {
		t.Request = d.Request
	}
	if t.MinVoting == 0 {
		t.MinVoting = d.MinVoting
	}
	if t.MaxVoting == 0 {
		t.MaxVoting = d.MaxVoting
	}
	return t
}

// PeerIDs returns the ids of every peer in the cluster besides Self.
func (c *Cluster) PeerIDs() []raft.PeerID {
	ids := make([]raft.PeerID, 0, len(c.Peers))
	for _, p := range c.Peers {
		ids = append(ids, p.ID)
	}
	return ids
}
