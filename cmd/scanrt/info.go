package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/spf13/cobra"
)

var (
	infoMode string
	infoSave string
	infoLoad string
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe a compiled database",
	Long: `Compile the selected patterns, or load a serialized database with --load,
and print its backend, mode and sizes. --save writes the serialized database
to a file that --load (or a later run of the same backend) can read back.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	addPatternFlags(infoCmd)
	infoCmd.Flags().StringVar(&infoMode, "mode", "block", "Database mode: block, vectored, stream")
	infoCmd.Flags().StringVar(&infoSave, "save", "", "Write the serialized database to a file")
	infoCmd.Flags().StringVar(&infoLoad, "load", "", "Read a serialized database instead of compiling patterns")
}

func runInfo(cmd *cobra.Command, args []string) error {
	mode, err := types.ParseMode(infoMode)
	if err != nil {
		return err
	}
	opts, err := scanOptions()
	if err != nil {
		return err
	}

	var db scan.Database
	patternCount := -1
	if infoLoad != "" {
		data, err := os.ReadFile(infoLoad)
		if err != nil {
			return fmt.Errorf("reading database: %w", err)
		}
		if db, err = unmarshalDatabase(mode, data, opts); err != nil {
			return fmt.Errorf("loading %s: %w", infoLoad, err)
		}
	} else {
		patterns, err := loadPatterns()
		if err != nil {
			return err
		}
		if db, err = scan.Compile(mode, patterns, opts...); err != nil {
			return fmt.Errorf("compiling patterns: %w", err)
		}
		patternCount = len(patterns)
	}
	defer db.Close()

	dbSize, err := db.Size()
	if err != nil {
		return err
	}
	sc, err := scan.AllocScratch(db)
	if err != nil {
		return fmt.Errorf("allocating scratch: %w", err)
	}
	defer sc.Close()
	scratchSize, err := sc.Size()
	if err != nil {
		return err
	}
	info, err := db.Info()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backend: %s\n", db.Backend())
	fmt.Fprintf(out, "Mode: %s\n", db.Mode())
	if patternCount >= 0 {
		fmt.Fprintf(out, "Patterns: %d\n", patternCount)
	}
	fmt.Fprintf(out, "Database size: %d bytes\n", dbSize)
	fmt.Fprintf(out, "Scratch size: %d bytes\n", scratchSize)
	fmt.Fprintf(out, "Info: %s\n", info)

	if infoSave != "" {
		data, err := db.Marshal()
		if err != nil {
			return fmt.Errorf("serializing database: %w", err)
		}
		if err := atomic.WriteFile(infoSave, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("writing %s: %w", infoSave, err)
		}
		fmt.Fprintf(out, "Saved: %s (%d bytes)\n", infoSave, len(data))
	}
	return nil
}

func unmarshalDatabase(mode types.Mode, data []byte, opts []scan.Option) (scan.Database, error) {
	switch mode {
	case types.ModeBlock:
		return scan.UnmarshalBlockDatabase(data, opts...)
	case types.ModeVectored:
		return scan.UnmarshalVectoredDatabase(data, opts...)
	case types.ModeStreaming:
		return scan.UnmarshalStreamingDatabase(data, opts...)
	default:
		return nil, fmt.Errorf("invalid mode %s", mode)
	}
}
