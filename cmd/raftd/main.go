// Command raftd runs a single replica: it loads a cluster config, wires up
// the HTTP transport in both directions, and serves until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pinkant/raft"
	"github.com/pinkant/raft/config"
	rafthttp "github.com/pinkant/raft/http"
	"github.com/pinkant/raft/httpclient"
	"github.com/pinkant/raft/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "raftd",
		Short: "Run a single Raft replica",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "cluster.yaml", "path to cluster config")
	return cmd
}

func serve(configPath string) error {
	cluster, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := raft.NewProductionLogger()
	replica := raft.NewReplica(cluster.Self, cluster.PeerIDs(), cluster.RaftTiming(), logger)

	peers := raft.Peers{}
	for _, p := range cluster.Peers {
		peers[p.ID] = httpclient.New(p.ID, p.Addr, nil)
	}
	replica.SetPeers(peers)
	replica.Start()
	defer replica.Stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(replica))

	router := mux.NewRouter()
	rafthttp.NewServer(replica, logger).Install(router)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cluster.Listen, Handler: router}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Infow("raftd listening", "id", cluster.Self, "addr", cluster.Listen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Infow("shutting down")
		return srv.Shutdown(context.Background())
	}
	return nil
}
