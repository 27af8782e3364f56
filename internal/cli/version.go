package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pngforge/go-pngstream/internal/inspect"
)

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			Version(stdout)
		},
	}
}

func Version(stdout io.Writer) {
	fmt.Fprintf(stdout, "%s %s\n", inspect.LibraryName, inspect.LibraryVersion)
}
