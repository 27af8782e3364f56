// Package cli wires the inspection pipeline into a command line tool.
package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pngforge/go-pngstream/internal/inspect"
)

// Run executes the command line and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args[1:])
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		jsonOut        bool
		ignoreChecksum bool
		decodePixels   bool
		verbose        bool
	)
	root := &cobra.Command{
		Use:           "pngstream [flags] file...",
		Short:         "Inspect PNG and APNG files",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()

			reports := make([]inspect.Report, 0, len(args))
			var firstErr error
			for _, path := range args {
				report, err := inspect.InspectFile(path, inspect.Options{
					IgnoreChecksum: ignoreChecksum,
					DecodePixels:   decodePixels,
					Logger:         &logger,
				})
				if err != nil {
					logger.Error().Str("file", path).Err(err).Msg("inspection failed")
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				reports = append(reports, report)
			}
			if len(reports) > 0 {
				render := inspect.RenderText
				if jsonOut {
					render = inspect.RenderJSON
				}
				fmt.Fprintln(stdout, render(reports))
			}
			return firstErr
		},
	}
	root.Flags().BoolVar(&jsonOut, "json", false, "emit JSON output")
	root.Flags().BoolVar(&ignoreChecksum, "ignore-checksum", false, "skip CRC-32 and Adler-32 verification")
	root.Flags().BoolVar(&decodePixels, "decode", true, "fully decode frame pixel data")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newVersionCmd(stdout))
	return root
}
