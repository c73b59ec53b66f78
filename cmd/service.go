package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/smazurov/framecast/internal/systemd"
	"github.com/spf13/cobra"
)

// CreateServiceCmd creates the service command, which controls the
// framecast systemd unit over D-Bus.
func CreateServiceCmd() *cobra.Command {
	var unit string
	var system bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:       "service {status|start|stop|restart}",
		Short:     "Control the framecast systemd unit",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"status", "start", "stop", "restart"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			mgr, err := systemd.NewManager(ctx, system)
			if err != nil {
				return err
			}
			defer mgr.Close()

			switch args[0] {
			case "start":
				err = mgr.Start(ctx, unit)
			case "stop":
				err = mgr.Stop(ctx, unit)
			case "restart":
				err = mgr.Restart(ctx, unit)
			}
			if err != nil {
				return err
			}

			st, err := mgr.Status(ctx, unit)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s), %s\n", st.Name, st.ActiveState, st.SubState, st.LoadState)
			return err
		},
	}

	cmd.Flags().StringVar(&unit, "unit", systemd.DefaultUnit, "Unit name")
	cmd.Flags().BoolVar(&system, "system", false, "Use the system bus instead of the user bus")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the job")
	return cmd
}
