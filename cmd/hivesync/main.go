package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hivesync",
		Short: "Real-time sync client for FocusHive hives",
		Long: `hivesync keeps a client in step with a FocusHive hive.

It maintains the websocket connection to the sync server, retries
with exponential backoff when the link drops, queues outbound
actions while offline, and fans inbound hive events out to
subscribers.

  hivesync tail   stream a hive's events to stdout
  hivesync send   fire a single action at a hive
  hivesync serve  run the in-memory simulator server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		tailCmd(),
		sendCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
