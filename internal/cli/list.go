package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tis24dev/stackrestore/internal/orchestrator"
	"github.com/tis24dev/stackrestore/internal/transfer"
)

func newListCmd(global *globalOptions, streams Streams) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List remote archives matching the naming pattern, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output = strings.ToLower(output)
			if output != "table" && output != "json" {
				return orchestrator.NewRunError(orchestrator.CategoryConfig, "flags",
					fmt.Errorf("unsupported --output %q (want table or json)", output))
			}
			logger, err := newLogger(global, streams, true)
			if err != nil {
				return err
			}
			cfg, closeLog, err := loadConfig(global, logger, "list")
			if err != nil {
				return err
			}
			defer closeLog()

			o, err := buildOrchestrator(cmd, cfg, logger, nil)
			if err != nil {
				return err
			}
			objects, err := o.List(cmd.Context())
			if err != nil {
				return err
			}
			if output == "json" {
				return renderListJSON(streams, objects)
			}
			return renderListTable(streams, objects)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table|json)")
	return cmd
}

type listEntry struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified string `json:"modified,omitempty"`
}

func renderListJSON(streams Streams, objects []transfer.Object) error {
	entries := make([]listEntry, 0, len(objects))
	for _, obj := range objects {
		e := listEntry{Name: obj.Name, Size: obj.Size}
		if !obj.ModTime.IsZero() {
			e.Modified = obj.ModTime.UTC().Format("2006-01-02T15:04:05Z")
		}
		entries = append(entries, e)
	}
	enc := json.NewEncoder(streams.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func renderListTable(streams Streams, objects []transfer.Object) error {
	if len(objects) == 0 {
		fmt.Fprintln(streams.Out, "No matching backups found.")
		return nil
	}
	tw := tabwriter.NewWriter(streams.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
	for _, obj := range objects {
		modified := "-"
		if !obj.ModTime.IsZero() {
			modified = obj.ModTime.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", obj.Name, humanize.Bytes(uint64(obj.Size)), modified)
	}
	return tw.Flush()
}
