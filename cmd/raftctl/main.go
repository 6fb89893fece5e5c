// Command raftctl sends a single client append against a running cluster,
// following redirects until it finds the leader.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinkant/raft"
	"github.com/pinkant/raft/httpclient"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		peerFlags  []string
		timeout    time.Duration
		idempotent bool
	)

	cmd := &cobra.Command{
		Use:   "raftctl [payload]",
		Short: "Append a single entry to a Raft cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peers, err := parsePeers(peerFlags)
			if err != nil {
				return err
			}

			client := raft.NewClient(peers, timeout, nil)
			ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Duration(len(peers)+1))
			defer cancel()

			if idempotent {
				return client.AppendIdempotent(ctx, []byte(args[0]))
			}
			return client.AppendEntries(ctx, []byte(args[0]))
		},
	}
	cmd.Flags().StringSliceVar(&peerFlags, "peer", nil, "id=addr pair, repeatable")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "per-request timeout")
	cmd.Flags().BoolVar(&idempotent, "idempotent", false, "tag the request so retries cannot double-apply it")
	return cmd
}

// parsePeers turns a list of "id=addr" flags into a raft.Peers map of
// httpclient.Peer transports.
func parsePeers(flags []string) (raft.Peers, error) {
	peers := raft.Peers{}
	for _, f := range flags {
		idAddr := strings.SplitN(f, "=", 2)
		if len(idAddr) != 2 {
			return nil, fmt.Errorf("invalid --peer %q, want id=addr", f)
		}
		peers[idAddr[0]] = httpclient.New(idAddr[0], idAddr[1], nil)
	}
	if len(peers) == 0 {
		return nil, fmt.Errorf("at least one --peer is required")
	}
	return peers, nil
}
