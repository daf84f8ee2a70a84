// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	debugAddr  string
)

// RootCmd represents the base CLI command when called without any
// subcommands (grounded on the teacher's cmd/uplink/cmd/root.go).
var RootCmd = &cobra.Command{
	Use:   "kademlia",
	Short: "A Kademlia DHT node",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
	RootCmd.PersistentFlags().StringVar(&debugAddr, "debug-rpc", "127.0.0.1:7947", "debugrpc server address for the one-shot subcommands to dial")

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(lookupCmd)
	RootCmd.AddCommand(storeCmd)
}

func newLogger() *zap.Logger {
	log, err := zap.NewDevelopment()
	if err != nil {
		// zap.NewDevelopment only fails on an invalid internal config,
		// which never happens with its own default; fall back to a
		// no-op logger rather than letting a CLI invocation panic.
		return zap.NewNop()
	}
	return log
}
