package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tis24dev/stackrestore/internal/version"
)

func newVersionCmd(streams Streams) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(streams.Out, version.Full())
		},
	}
}
