package main

import (
	"github.com/praetorian-inc/scanrt/pkg/scanner"
	"github.com/praetorian-inc/scanrt/pkg/serve"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a long-lived NDJSON scanning server",
	Long: `Run scanrt as a long-lived server that reads requests from stdin and
writes one response per request to stdout, both as newline-delimited JSON.

Patterns are compiled once at startup. Clients can scan single buffers or
batches, and open streams that they feed chunk by chunk and close by ID.
The server exits when stdin closes, a "close" request arrives or SIGTERM is
received.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	addPatternFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	patterns, err := loadPatterns()
	if err != nil {
		return err
	}
	opts, err := scanOptions()
	if err != nil {
		return err
	}
	core, err := scanner.NewCore(patterns, logger, opts...)
	if err != nil {
		return err
	}
	defer core.Close()

	srv := serve.NewServer(core, cmd.InOrStdin(), cmd.OutOrStdout())
	return srv.Run(commandContext(cmd))
}
