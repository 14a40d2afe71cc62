package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/lmittmann/tint"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/term"
)

var (
	verbose     bool
	quiet       bool
	engineName  string
	showMetrics bool
)

var (
	logger        = slog.Default()
	meterProvider metric.MeterProvider
	metricReader  *sdkmetric.ManualReader
)

var rootCmd = &cobra.Command{
	Use:   "scanrt",
	Short: "scanrt - multi-pattern scanning runtime",
	Long: `scanrt compiles sets of regular expressions into a single database and
scans buffers, vectors of buffers and streams against it.

Patterns come from the builtin pattern files or from a YAML/JSON file, and
inputs from files, directories, git commits, stdin, S3, Azure Blob Storage,
GitHub or GitLab.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setupRuntime,
	PersistentPostRunE: reportMetrics,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.PersistentFlags().StringVar(&engineName, "engine", "", "Matching backend: portable, hyperscan (default: best available)")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print scan metrics to stderr on exit")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(vscanCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setupRuntime(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}
	logger = slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	}))
	slog.SetDefault(logger)

	if showMetrics {
		metricReader = sdkmetric.NewManualReader()
		meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader))
	}
	return nil
}

// scanOptions builds the database options selected by the global flags.
func scanOptions(extra ...scan.Option) ([]scan.Option, error) {
	b, err := scan.BackendByName(engineName, logger)
	if err != nil {
		return nil, err
	}
	if err := scan.ValidPlatform(b); err != nil {
		return nil, err
	}
	opts := []scan.Option{scan.WithBackend(b), scan.WithLogger(logger)}
	if meterProvider != nil {
		opts = append(opts, scan.WithMeterProvider(meterProvider))
	}
	return append(opts, extra...), nil
}

func reportMetrics(cmd *cobra.Command, args []string) error {
	if metricReader == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var rm metricdata.ResourceMetrics
	if err := metricReader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collecting metrics: %w", err)
	}
	writeMetrics(cmd.ErrOrStderr(), rm)

	if mp, ok := meterProvider.(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}
	return nil
}

// writeMetrics prints the total of every integer counter.
func writeMetrics(w io.Writer, rm metricdata.ResourceMetrics) {
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	slices.Sort(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d\n", name, totals[name])
	}
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
