package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/focushive/hivesync/internal/hivesim"
)

func serveCmd() *cobra.Command {
	var (
		addr    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory hive simulator",
		Long: `Run the in-memory hive simulator server.

The simulator speaks the hivesync wire contract: clients connect to
/sync/ws?hive=<id>, receive a welcome envelope, and share a
collaborative queue with every other member of the hive. State lives
in memory only and disappears on restart.

Examples:
  hivesync serve
  hivesync serve --addr=:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, verbose)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8090", "Address to listen on")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	return cmd
}

func runServe(addr string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	sim := hivesim.New(logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	success("simulator listening on %s", addr)
	info("websocket  ws://%s/sync/ws?hive=<id>", hostFor(addr))
	info("metrics    http://%s/metrics", hostFor(addr))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case <-sig:
	}

	hives, members := sim.Stats()
	info("shutting down (%d hives, %d members)", hives, members)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func hostFor(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return fmt.Sprintf("localhost%s", addr)
	}
	return addr
}
