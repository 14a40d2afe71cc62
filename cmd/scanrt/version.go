package main

import (
	"fmt"
	"runtime"

	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Display the version of scanrt and the backends compiled in",
	RunE:  runVersion,
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scanrt v%s\n", version)
	fmt.Fprintf(out, "Commit: %s\n", commit)
	fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	b, err := scan.BackendByName(engineName, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Backend: %s %s\n", b.Name(), b.Version())
	fmt.Fprintf(out, "Hyperscan: %t\n", scan.HyperscanAvailable())
	return nil
}
