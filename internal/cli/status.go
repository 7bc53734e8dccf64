package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show device identity and setup state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			settings, err := a.db.Get(cmd.Context(), a.device.ID)
			if err != nil {
				return err
			}
			schema, err := a.db.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			leaseState, holder, err := a.leases.Status()
			if err != nil {
				return err
			}

			info := map[string]any{
				"data_dir":       a.dataDir,
				"device_id":      a.device.ID,
				"format_version": a.device.FormatVersion,
				"schema_version": schema,
				"configured":     settings != nil,
				"device":         a.device.Info,
				"audit_log":      a.journal.Path(),
				"session":        leaseState,
			}
			if holder != nil {
				info["session_pid"] = holder.PID
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return outputJSON(out, info)
			}

			fmt.Fprintf(out, "Data directory: %s\n", a.dataDir)
			fmt.Fprintf(out, "  Device ID: %s\n", a.device.ID)
			fmt.Fprintf(out, "  Device: %s %s (%s %s)\n",
				a.device.Info.Brand, a.device.Info.Model, a.device.Info.OSName, a.device.Info.OSVersion)
			fmt.Fprintf(out, "  Format version: %d\n", a.device.FormatVersion)
			fmt.Fprintf(out, "  Schema version: %d\n", schema)
			if settings != nil {
				fmt.Fprintln(out, "  PIN: configured")
			} else {
				fmt.Fprintln(out, "  PIN: not set (run 'securelock session')")
			}
			fmt.Fprintf(out, "  Audit journal: %s\n", a.journal.Path())
			if holder != nil {
				fmt.Fprintf(out, "  Session: %s (pid %d, %s)\n", leaseState, holder.PID, holder.Purpose)
			} else {
				fmt.Fprintf(out, "  Session: %s\n", leaseState)
			}
			return nil
		},
	}
}
