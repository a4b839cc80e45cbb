package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rendis/unitconsole/internal/api"
	"github.com/rendis/unitconsole/internal/i18n"
	"github.com/rendis/unitconsole/pkg/schema"
)

// withApp resolves config, wires the app, and runs fn with it.
func withApp(cmd *cobra.Command, gf *globalFlags, fn func(ctx context.Context, a *app) error) error {
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
	return fn(ctx, a)
}

func unitsCmd(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "units",
		Short: "Manage monitored units",
	}
	cmd.AddCommand(unitsListCmd(gf), unitsGetCmd(gf), unitsSetCmd(gf), unitsDeleteCmd(gf))
	return cmd
}

func unitsListCmd(gf *globalFlags) *cobra.Command {
	var (
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, gf, func(ctx context.Context, a *app) error {
				units, err := a.client.ListUnits(ctx)
				if err != nil {
					return err
				}
				if status != "" {
					filtered := units[:0:0]
					for _, u := range units {
						if u.Status == status {
							filtered = append(filtered, u)
						}
					}
					units = filtered
				}
				return printUnits(cmd.OutOrStdout(), units, asJSON, a.catalog)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only units with this status: online or offline")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func unitsGetCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <unit-id>",
		Short: "Show one unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := api.ParseUnitID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, gf, func(ctx context.Context, a *app) error {
				u, err := a.client.GetUnit(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), u)
			})
		},
	}
}

func unitsSetCmd(gf *globalFlags) *cobra.Command {
	var name, status string
	cmd := &cobra.Command{
		Use:   "set <unit-id>",
		Short: "Update the name or status of a unit",
		Long: `Update the name or status of a unit.

The unit is read first so attributes not named here are written back unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := api.ParseUnitID(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("name") && !cmd.Flags().Changed("status") {
				return fmt.Errorf("nothing to update: pass --name or --status")
			}
			return withApp(cmd, gf, func(ctx context.Context, a *app) error {
				u, err := a.client.GetUnit(ctx, id)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("name") {
					u.Name = name
				}
				if cmd.Flags().Changed("status") {
					u.Status = status
				}
				stored, err := a.client.UpdateUnit(ctx, u)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stored)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new unit name")
	cmd.Flags().StringVar(&status, "status", "", "new status: online or offline")
	return cmd
}

func unitsDeleteCmd(gf *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <unit-id>",
		Short: "Delete a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := api.ParseUnitID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to delete unit %d without --yes", id)
			}
			return withApp(cmd, gf, func(ctx context.Context, a *app) error {
				if err := a.client.DeleteUnit(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unit %d deleted\n", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

func profileCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in user as the backend sees them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, gf, func(ctx context.Context, a *app) error {
				p, err := a.client.Profile(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
}

func printUnits(out io.Writer, units []schema.Unit, asJSON bool, cat i18n.Catalog) error {
	if asJSON {
		return printJSON(out, units)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\t%s\n", cat.T("unit.title"), cat.T("unit.status"))
	for _, u := range units {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Name, cat.T("unit."+u.Status))
	}
	return tw.Flush()
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
