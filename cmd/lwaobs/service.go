package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"lwaobs/pkg/systemd"
)

func newServiceCmd() *cobra.Command {
	var unit string
	svc := &cobra.Command{Use: "service", Short: "Inspect or restart the executor unit"}
	svc.PersistentFlags().StringVar(&unit, "unit", "lwaobs-executor", "systemd unit name")

	svc.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the executor unit state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := systemd.GetStatus(cmd.Context(), unit)
			if err != nil {
				return err
			}
			since := "-"
			if !st.ActiveSince.IsZero() {
				since = humanize.Time(st.ActiveSince)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s), load %s, since %s\n",
				st.Name, st.Active, st.SubState, st.LoadState, since)
			return nil
		},
	}, &cobra.Command{
		Use:   "restart",
		Short: "Restart the executor unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := systemd.Restart(cmd.Context(), unit); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s restarted\n", unit)
			return nil
		},
	})
	return svc
}
