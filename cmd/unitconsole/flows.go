package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rendis/unitconsole/internal/history"
	"github.com/rendis/unitconsole/internal/i18n"
	"github.com/rendis/unitconsole/internal/streaming"
	"github.com/rendis/unitconsole/pkg/schema"
)

func flowsCmd(gf *globalFlags) *cobra.Command {
	var (
		filter string
		asJSON bool
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "flows <unit-id>",
		Short: "List the journey history of a unit",
		Long: `List the journey history of a unit, newest first.

--filter narrows the list with an expression over flow records. Unprefixed
expressions use expr; "cel:" and "jq:" select the other engines:

  unitconsole flows unit-7 --filter 'status == "Failed"'
  unitconsole flows unit-7 --filter 'cel: telemetry.contains("temp")'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unitID := args[0]
			cfg, err := resolveConfig(cmd, gf)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if !watch {
				flows, err := a.console.Flows(ctx, unitID, filter)
				if err != nil {
					return err
				}
				return printFlows(out, flows, asJSON, a.catalog)
			}

			updates, cancel, err := a.hub.Subscribe(ctx, streaming.EventFilter{
				UnitID:     unitID,
				EventTypes: []string{streaming.EventFlowsUpdated},
			})
			if err != nil {
				return err
			}
			defer cancel()

			w, err := a.console.Watch(ctx, unitID)
			if err != nil {
				return err
			}
			if err := printBoard(ctx, out, w.Board(), filter, asJSON, a.catalog); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case _, ok := <-updates:
					if !ok {
						return nil
					}
					if err := printBoard(ctx, out, w.Board(), filter, asJSON, a.catalog); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "filter expression over flow records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep the list current from live pushes")
	return cmd
}

func printBoard(ctx context.Context, out io.Writer, b *history.Board, filter string,
	asJSON bool, cat i18n.Catalog) error {
	flows, err := b.Filter(ctx, filter)
	if err != nil {
		return err
	}
	return printFlows(out, flows, asJSON, cat)
}

func printFlows(out io.Writer, flows []schema.FlowInstance, asJSON bool, cat i18n.Catalog) error {
	if asJSON {
		data, err := json.MarshalIndent(flows, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	if len(flows) == 0 {
		_, err := fmt.Fprintln(out, cat.T("unit.noFlows"))
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "INSTANCE\t%s\t%s\t%s\t%s\n",
		cat.T("unit.status"), cat.T("unit.created"), cat.T("unit.updated"), cat.T("unit.telemetry"))
	for _, f := range flows {
		rec := history.Record(f)
		telemetry, _ := rec["telemetry"].(string)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			f.InstanceID, f.RuntimeStatus, f.CreatedTime, f.LastUpdatedTime, truncate(telemetry, 48))
	}
	return tw.Flush()
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
