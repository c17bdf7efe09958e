// Package main provides the CLI entry point for the easel document store
// server.
//
// Start the server:
//
//	easel serve --config easel.yaml
//
// The server exposes the documents API (CRUD, the modifiedAt probe used for
// conflict detection, persisted history stacks), a websocket watch stream,
// and Prometheus metrics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "easel",
		Short:         "Canvas document store with optimistic-concurrency sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd())
	root.AddCommand(buildVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the easel version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
