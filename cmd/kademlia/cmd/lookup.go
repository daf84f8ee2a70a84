// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahulmutt/kademlia/pkg/debugrpc"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <hex-key>",
	Short: "Trigger a LOOKUP against a running node via debugrpc",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

func runLookup(c *cobra.Command, args []string) error {
	client, err := debugrpc.Dial(debugAddr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	resp, err := client.TriggerLookup(context.Background(), &debugrpc.TriggerLookupRequest{Key: args[0]})
	if err != nil {
		return err
	}
	if !resp.Found {
		fmt.Println("not found")
		return nil
	}
	fmt.Printf("%s\n", resp.Value)
	return nil
}
