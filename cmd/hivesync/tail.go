package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/focushive/hivesync/pkg/client"
	"github.com/focushive/hivesync/pkg/protocol"
)

func tailCmd() *cobra.Command {
	var (
		endpoint  string
		clientID  string
		lifecycle bool
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "tail <hive>",
		Short: "Stream a hive's events to stdout",
		Long: `Connect to a hive and print every event the server pushes.

The connection is kept alive: drops are retried with exponential
backoff, and a reconnect resubscribes automatically.

Examples:
  hivesync tail hive-42
  hivesync tail hive-42 --endpoint=ws://localhost:8090
  hivesync tail hive-42 --lifecycle`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTail(endpoint, args[0], clientID, lifecycle, verbose)
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "ws://localhost:8090", "Sync server endpoint")
	cmd.Flags().StringVarP(&clientID, "client", "c", "", "Client identity sent to the server")
	cmd.Flags().BoolVarP(&lifecycle, "lifecycle", "l", false, "Also print connection lifecycle events")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	return cmd
}

func runTail(endpoint, hive, clientID string, lifecycle, verbose bool) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := client.DefaultConfig().
		WithEndpoint(endpoint).
		WithHive(hive).
		WithClientID(clientID).
		WithMetrics(client.NewMetrics()).
		WithLogger(logger)

	c := client.New(cfg)
	defer c.Close()

	c.SubscribeAll(func(env *protocol.Envelope) {
		if protocol.IsLifecycle(env.Type) && !lifecycle {
			return
		}
		fmt.Printf("%s  %-18s %-10s %s\n",
			env.Timestamp.Format("15:04:05.000"), env.Type, env.Originator, env.Payload)
	})

	c.Connect()
	info("tailing %s via %s (ctrl-c to stop)", hive, endpoint)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	return nil
}
