package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/securelock/securelock/internal/store"
)

func newLogsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs <command>",
		Short: "List security events and intruder attempts",
	}
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", store.DefaultListLimit, "maximum number of records, newest first")

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "List security events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.db.ListEvents(cmd.Context(), a.device.ID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return outputJSON(out, events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No security events.")
				return nil
			}
			for _, e := range events {
				fmt.Fprintf(out, "%s  %-20s", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Type)
				if len(e.Details) > 0 {
					fmt.Fprintf(out, "  %v", e.Details)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	attemptsCmd := &cobra.Command{
		Use:   "attempts",
		Short: "List intruder attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			attempts, err := a.db.ListAttempts(cmd.Context(), a.device.ID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return outputJSON(out, attempts)
			}
			if len(attempts) == 0 {
				fmt.Fprintln(out, "No intruder attempts.")
				return nil
			}
			for _, at := range attempts {
				fmt.Fprintf(out, "%s  attempts=%d\n", at.Timestamp.Local().Format("2006-01-02 15:04:05"), at.AttemptCount)
				if at.ImageRef != "" {
					fmt.Fprintf(out, "  photo: %s\n", at.ImageRef)
				}
				if loc := at.Location; loc != nil {
					fmt.Fprintf(out, "  location: %.5f, %.5f", loc.Latitude, loc.Longitude)
					if loc.Address != "" {
						fmt.Fprintf(out, " (%s)", loc.Address)
					}
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "  device: %s %s, %s %s\n",
					at.DeviceInfo.Brand, at.DeviceInfo.Model, at.DeviceInfo.OSName, at.DeviceInfo.OSVersion)
			}
			return nil
		},
	}

	cmd.AddCommand(eventsCmd, attemptsCmd)
	return cmd
}
