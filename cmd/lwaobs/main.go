package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lwaobs/internal/app"
	"lwaobs/internal/schedule"
	"lwaobs/pkg/logx"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOpts struct {
	cfgPath  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	root := &cobra.Command{
		Use:           "lwaobs",
		Short:         "Operate the observing executor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "./lwaobs.yaml", "path to config (json or yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "console log level")

	root.AddCommand(
		newSubmitCmd(opts),
		newCancelCmd(opts),
		newResetCmd(opts),
		newCommandCmd(opts),
		newShowCmd(opts),
		newSessionsCmd(opts),
		newBuildCmd(opts),
		newMakeSDFCmd(),
		newServiceCmd(),
	)
	return root
}

func (o *rootOpts) logger() logx.Logger { return logx.NewConsole(o.logLevel) }

func (o *rootOpts) client() (*app.Client, error) {
	return app.OpenClient(o.cfgPath, o.logger())
}

func modeFlag(asap bool) schedule.Mode {
	if asap {
		return schedule.ModeASAP
	}
	return schedule.ModeBuffer
}

func newSubmitCmd(opts *rootOpts) *cobra.Command {
	var asap, noCheck bool
	cmd := &cobra.Command{
		Use:   "submit <file.sdf>",
		Short: "Submit a session description for scheduling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Submit(cmd.Context(), args[0], modeFlag(asap), !noCheck); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "submitted %s (%s)\n", args[0], modeFlag(asap))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asap, "asap", false, "start as soon as possible instead of at the recorded times")
	cmd.Flags().BoolVar(&noCheck, "no-check", false, "skip the local build and conflict check")
	return cmd
}

func newCancelCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <file.sdf>",
		Short: "Cancel a pending session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cancel requested for %s\n", args[0])
			return nil
		},
	}
}

func newResetCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop every pending row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Reset(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "reset requested")
			return nil
		},
	}
}

func newCommandCmd(opts *rootOpts) *cobra.Command {
	var (
		at   float64
		asap bool
	)
	cmd := &cobra.Command{
		Use:   "command <settings.update(...)>",
		Short: "Schedule a single settings update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Command(cmd.Context(), at, args[0], modeFlag(asap)); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "command submitted")
			return nil
		},
	}
	cmd.Flags().Float64Var(&at, "mjd", 0, "MJD to run at (default now)")
	cmd.Flags().BoolVar(&asap, "asap", false, "run as soon as possible")
	return cmd
}

func newShowCmd(opts *rootOpts) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the published pending and submitted schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			defer c.Close()
			pending, submitted, err := c.Schedules(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]schedule.Summary{"schedule": pending, "submitted": submitted})
			}
			_, _ = fmt.Fprintln(out, "In flight:")
			printSummary(out, submitted)
			_, _ = fmt.Fprintln(out, "\nPending:")
			printSummary(out, pending)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw summaries")
	return cmd
}

func newSessionsCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			defer c.Close()
			recs, err := c.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}

func newBuildCmd(opts *rootOpts) *cobra.Command {
	var asap bool
	cmd := &cobra.Command{
		Use:   "build <file.sdf>",
		Short: "Parse and schedule a description without submitting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			defer c.Close()
			plan, err := c.Build(args[0], modeFlag(asap))
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asap, "asap", false, "build with the asap profile")
	return cmd
}
