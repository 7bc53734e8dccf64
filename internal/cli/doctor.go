package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/securelock/securelock/internal/doctor"
	"github.com/securelock/securelock/pkg/color"
)

func newDoctorCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the data directory for problems",
		Long: `Check the data directory for problems: format version, device
identity, configuration, database schema, stale session leases and
leftover temporary files. --strict also verifies the audit journal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result := doctor.NewDoctor(doctor.Options{
				DataDir: a.dataDir,
				DB:      a.db,
				Journal: a.journal,
				Leases:  a.leases,
			}).Check(cmd.Context(), strict)

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := outputJSON(out, result); err != nil {
					return err
				}
			} else {
				paint := color.For(out)
				for _, f := range result.Findings {
					fmt.Fprintf(out, "[%s] %s: %s\n", paint.Severity(f.Severity), f.Category, f.Description)
					if f.Path != "" {
						fmt.Fprintf(out, "    %s\n", paint.Dim(f.Path))
					}
				}
				if result.Healthy {
					fmt.Fprintln(out, paint.Success("Data directory is healthy."))
				}
			}
			if !result.Healthy {
				return fmt.Errorf("data directory has %d finding(s)", len(result.Findings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "also verify the audit journal hash chain")
	return cmd
}
