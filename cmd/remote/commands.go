package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/dreamware/lectern/internal/client"
	"github.com/dreamware/lectern/internal/config"
	"github.com/dreamware/lectern/internal/coordinator"
	"github.com/dreamware/lectern/internal/transport"
)

// confirmTimeout bounds how long a send command waits for the coordinator
// to broadcast the result.
const confirmTimeout = 5 * time.Second

// remote carries the resolved configuration shared by every subcommand.
type remote struct {
	cfg    config.Remote
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	r := &remote{}

	root := &cobra.Command{
		Use:           "remote",
		Short:         "Control and watch a lectern coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRemote()
			if err != nil {
				return err
			}
			if f := cmd.Flags().Lookup("url"); f != nil && f.Changed {
				cfg.URL = f.Value.String()
			}
			if f := cmd.Flags().Lookup("host"); f != nil && f.Changed {
				cfg.Host = f.Value.String()
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := config.NewLogger(cmd.ErrOrStderr(), cfg.Log)
			if err != nil {
				return err
			}
			r.cfg, r.logger = cfg, logger
			return nil
		},
	}
	root.PersistentFlags().String("url", "", "coordinator WebSocket URL (LECTERN_REMOTE_URL)")
	root.PersistentFlags().String("host", "", "host id for this remote (LECTERN_REMOTE_HOST)")

	root.AddCommand(
		r.watchCmd(),
		r.shabadCmd(),
		r.lineCmd(),
		r.mainLineCmd(),
		r.baniCmd(),
		r.clearHistoryCmd(),
		r.settingsCmd(),
		r.stateCmd(),
		r.setStatusCmd(),
	)
	return root
}

func (r *remote) watchCmd() *cobra.Command {
	var events []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print every frame pushed by the coordinator until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Dial(cmd.Context(), r.cfg.URL, r.cfg.Host)
			if err != nil {
				return err
			}
			defer c.Close()
			r.logger.Info("watching", "url", r.cfg.URL, "host", r.cfg.Host)
			return watch(cmd.Context(), c, events, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&events, "events", nil, "only print these events")
	return cmd
}

// watch prints frames as "event payload" lines until ctx ends.
func watch(ctx context.Context, c *client.Client, events []string, out io.Writer) error {
	for {
		f, err := c.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if f.Event == transport.HeartbeatEvent {
			continue
		}
		if len(events) > 0 && !slices.Contains(events, f.Event) {
			continue
		}
		fmt.Fprintf(out, "%s %s\n", f.Event, f.Payload)
	}
}

func (r *remote) shabadCmd() *cobra.Command {
	var order, lineOrder int
	var line string
	cmd := &cobra.Command{
		Use:   "shabad [id]",
		Short: "Select a shabad by id or by --order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req coordinator.ShabadRequest
			if len(args) == 1 {
				req.ShabadID = args[0]
			}
			if cmd.Flags().Changed("order") {
				req.ShabadOrderID = &order
			}
			if req.ShabadID == "" && req.ShabadOrderID == nil {
				return errors.New("give a shabad id or --order")
			}
			req.LineID = line
			if cmd.Flags().Changed("line-order") {
				req.LineOrderID = &lineOrder
			}
			return r.send(cmd, coordinator.EventShabad, req, coordinator.EventShabad)
		},
	}
	cmd.Flags().IntVar(&order, "order", 0, "shabad ordinal, clamped into the catalog range")
	cmd.Flags().StringVar(&line, "line", "", "line id to select inside the shabad")
	cmd.Flags().IntVar(&lineOrder, "line-order", 0, "line ordinal to select inside the shabad")
	return cmd
}

func (r *remote) lineCmd() *cobra.Command {
	var id string
	var order int
	cmd := &cobra.Command{
		Use:   "line",
		Short: "Select a line by --id or --order; with neither the line is cleared",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := coordinator.LineRequest{LineID: id}
			if cmd.Flags().Changed("order") {
				req.LineOrderID = &order
			}
			return r.send(cmd, coordinator.EventLine, req, coordinator.EventLine)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "line id")
	cmd.Flags().IntVar(&order, "order", 0, "line ordinal, clamped into the content range")
	return cmd
}

func (r *remote) mainLineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "main-line [id]",
		Short: "Highlight a line; without an id the highlight is cleared",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id *string
			if len(args) == 1 {
				id = &args[0]
			}
			return r.send(cmd, coordinator.EventMainLine, id, coordinator.EventMainLine)
		},
	}
}

func (r *remote) baniCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bani <id>",
		Short: "Select a bani",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.send(cmd, coordinator.EventBani, args[0], coordinator.EventBani)
		},
	}
}

func (r *remote) clearHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-history",
		Short: "Empty the shared navigation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.send(cmd, coordinator.EventClearHistory, nil, coordinator.EventHistory)
		},
	}
}

func (r *remote) settingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings <json>",
		Short: `Send a settings event, e.g. '{"local": {...}, "global": {...}}'`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fragments map[string]any
			if err := json.Unmarshal([]byte(args[0]), &fragments); err != nil {
				return fmt.Errorf("settings must be a JSON object: %w", err)
			}
			return r.send(cmd, coordinator.EventSettings, fragments, coordinator.EventSettings)
		},
	}
}

func (r *remote) stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the coordinator's session snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := client.HTTPBase(r.cfg.URL)
			if err != nil {
				return err
			}
			snap, err := client.FetchState(cmd.Context(), base)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}

func (r *remote) setStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status [text]",
		Short: "Set the status shown on every client; without text it is cleared",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := client.HTTPBase(r.cfg.URL)
			if err != nil {
				return err
			}
			var status *string
			if len(args) > 0 {
				text := strings.Join(args, " ")
				status = &text
			}
			return client.PostStatus(cmd.Context(), base, status)
		},
	}
}

// send dials, waits for the initial state push to finish, sends one event
// and waits for the coordinator to broadcast confirm or reject the event.
// The confirming payload is printed.
func (r *remote) send(cmd *cobra.Command, event string, payload any, confirm string) error {
	ctx := cmd.Context()
	c, err := client.Dial(ctx, r.cfg.URL, r.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	// Settings is always the last frame of the initial push.
	if _, err := c.Await(ctx, coordinator.EventSettings, confirmTimeout); err != nil {
		return fmt.Errorf("initial state: %w", err)
	}
	if err := c.Send(event, payload); err != nil {
		return err
	}
	r.logger.Debug("sent", "event", event, "host", r.cfg.Host)

	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	for {
		f, err := c.Receive(ctx)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", confirm, err)
		}
		switch f.Event {
		case transport.ErrorEvent:
			var e transport.ErrorPayload
			if err := json.Unmarshal(f.Payload, &e); err != nil {
				return fmt.Errorf("coordinator error: %s", f.Payload)
			}
			return fmt.Errorf("coordinator rejected %s: %s (%s)", event, e.Message, e.Code)
		case confirm:
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", f.Event, f.Payload)
			return nil
		}
	}
}
