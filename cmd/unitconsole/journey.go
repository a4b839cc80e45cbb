package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/unitconsole/internal/diagram"
	"github.com/rendis/unitconsole/internal/i18n"
	"github.com/rendis/unitconsole/internal/journey"
	"github.com/rendis/unitconsole/internal/streaming"
)

func startCmd(gf *globalFlags) *cobra.Command {
	var (
		telemetry string
		unitID    string
		format    string
		follow    bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a journey for unit telemetry and follow its stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJourney(cmd, gf, format, follow, func(ctx context.Context, sess *journey.Session) error {
				_, err := sess.Begin(ctx, telemetry, unitID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&telemetry, "telemetry", "", "telemetry text the journey reasons about")
	cmd.Flags().StringVar(&unitID, "unit", "", "unit the telemetry belongs to")
	cmd.Flags().StringVar(&format, "format", "ascii", "output format: ascii, mermaid or json")
	cmd.Flags().BoolVar(&follow, "follow", true, "keep printing updates until the journey completes")
	_ = cmd.MarkFlagRequired("telemetry")
	return cmd
}

func watchCmd(gf *globalFlags) *cobra.Command {
	var (
		format string
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "watch <instance-id>",
		Short: "Follow an existing journey instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJourney(cmd, gf, format, follow, func(ctx context.Context, sess *journey.Session) error {
				return sess.Open(ctx, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "ascii", "output format: ascii, mermaid or json")
	cmd.Flags().BoolVar(&follow, "follow", true, "keep printing updates until the journey completes")
	return cmd
}

// runJourney binds a fresh session with bind, prints its view, and with follow
// prints every update until the journey completes or the command is interrupted.
func runJourney(cmd *cobra.Command, gf *globalFlags, format string, follow bool,
	bind func(context.Context, *journey.Session) error) error {
	if format != "ascii" && format != "mermaid" && format != "json" {
		return fmt.Errorf("format must be ascii, mermaid or json, got %q", format)
	}
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

	sess, err := a.console.NewSession()
	if err != nil {
		return err
	}
	updates, cancel, err := a.hub.Subscribe(ctx, streaming.EventFilter{
		SessionID:  sess.ID(),
		EventTypes: []string{streaming.EventViewUpdated},
	})
	if err != nil {
		return err
	}
	defer cancel()

	if err := bind(ctx, sess); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	view := sess.View()
	if err := renderView(out, view, format, a.catalog); err != nil {
		return err
	}
	if !follow || view.Complete() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-updates:
			if !ok {
				return nil
			}
			v, isView := ev.Payload.(journey.ViewState)
			if !isView || sameProgress(view, v) {
				continue
			}
			view = v
			if err := renderView(out, view, format, a.catalog); err != nil {
				return err
			}
			if view.Complete() {
				return nil
			}
		}
	}
}

// sameProgress reports whether b shows nothing new to an operator.
func sameProgress(a, b journey.ViewState) bool {
	return len(a.Events) == len(b.Events) &&
		a.Connection == b.Connection &&
		a.Warning == b.Warning &&
		a.Error == b.Error
}

func renderView(w io.Writer, view journey.ViewState, format string, cat i18n.Catalog) error {
	if format == "json" {
		data, err := json.Marshal(view)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	model := diagram.Build(view, cat)
	var text string
	if format == "mermaid" {
		text = diagram.RenderMermaid(model)
	} else {
		text = diagram.RenderASCII(model)
	}
	if _, err := fmt.Fprint(w, text); err != nil {
		return err
	}
	if view.Warning != "" {
		fmt.Fprintf(w, "%s: %s\n", cat.T("communication.warning"), view.Warning)
	}
	if view.Error != "" {
		fmt.Fprintf(w, "%s: %s\n", cat.T("communication.error"), view.Error)
	}
	if ev := view.SelectedEvent; ev != nil && ev.Message != "" {
		fmt.Fprintf(w, "%s: %s\n", cat.T("communication.message"), ev.Message)
	}
	_, err := fmt.Fprintln(w)
	return err
}
