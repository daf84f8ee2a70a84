// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rahulmutt/kademlia/pkg/debugrpc"
)

var storeCmd = &cobra.Command{
	Use:   "store <hex-key> <value>",
	Short: "Trigger a STORE against a running node via debugrpc",
	Args:  cobra.ExactArgs(2),
	RunE:  runStore,
}

func runStore(c *cobra.Command, args []string) error {
	client, err := debugrpc.Dial(debugAddr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	_, err = client.Store(context.Background(), &debugrpc.StoreRequest{
		Key:   args[0],
		Value: []byte(args[1]),
	})
	return err
}
