// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rahulmutt/kademlia/pkg/debugrpc"
	"github.com/rahulmutt/kademlia/pkg/kadconfig"
	"github.com/rahulmutt/kademlia/pkg/kademlia"
)

var (
	runListen    string
	runBootstrap string
	runNodeID    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a kademlia node: bind the UDP transport, the debugrpc control surface (when debug-rpc-listen is configured), and begin serving",
	RunE:  runNode,
}

func init() {
	runCmd.Flags().StringVar(&runListen, "listen", "", "UDP listen address, overriding the config file")
	runCmd.Flags().StringVar(&runBootstrap, "bootstrap", "", "comma-separated list of bootstrap peer addresses")
	runCmd.Flags().StringVar(&runNodeID, "id", "", "hex node ID; a random one is generated if empty")
}

func runNode(c *cobra.Command, args []string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	cfg, err := kadconfig.Load(configFile)
	if err != nil {
		return err
	}
	if runListen != "" {
		cfg.Listen = runListen
	}
	if runBootstrap != "" {
		cfg.Bootstrap = strings.Split(runBootstrap, ",")
	}

	selfID, err := resolveSelfID(runNodeID)
	if err != nil {
		return err
	}
	self := kademlia.Node{ID: selfID, Peer: kademlia.Peer{Address: cfg.Listen}}

	var bootstrapPeers []kademlia.Node
	for _, addr := range cfg.Bootstrap {
		if addr == "" {
			continue
		}
		bootstrapPeers = append(bootstrapPeers, kademlia.Node{Peer: kademlia.Peer{Address: addr}})
	}

	svc, err := kademlia.NewService(log.Named("node"), self, bootstrapPeers, kademlia.ServiceConfig{
		ReplyTimeout:          cfg.ReplyTimeout,
		BucketRefreshInterval: cfg.BucketRefreshInterval,
		BootstrapBackoffBase:  cfg.BootstrapBackoffBase,
		BootstrapBackoffMax:   cfg.BootstrapBackoffMax,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn("error closing service", zap.Error(err))
		}
	}()

	log.Info("node started", zap.String("id", selfID.String()), zap.String("listen", cfg.Listen))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(bootstrapPeers) > 0 {
		go func() {
			if err := svc.Bootstrap(ctx); err != nil {
				log.Warn("bootstrap did not complete", zap.Error(err))
			}
		}()
	}
	go func() {
		if err := svc.Run(ctx); err != nil && err != context.Canceled {
			log.Warn("refresh cycle stopped", zap.Error(err))
		}
	}()

	var grpcServer *grpc.Server
	if cfg.DebugRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.DebugRPCListen)
		if err != nil {
			return err
		}
		grpcServer = grpc.NewServer()
		debugrpc.Register(grpcServer, debugrpc.NewServer(serviceBackend{svc: svc}, parseIdentifier))
		go func() {
			log.Info("debugrpc listening", zap.String("addr", cfg.DebugRPCListen))
			if err := grpcServer.Serve(lis); err != nil {
				log.Warn("debugrpc server stopped", zap.Error(err))
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return nil
}

func resolveSelfID(hexID string) (kademlia.ID, error) {
	if hexID == "" {
		return kademlia.NewRandomID()
	}
	return kademlia.ParseID(hexID)
}
