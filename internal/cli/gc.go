package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/securelock/securelock/internal/gc"
	"github.com/securelock/securelock/pkg/color"
	"github.com/securelock/securelock/pkg/config"
	"github.com/securelock/securelock/pkg/model"
)

func newGCCmd() *cobra.Command {
	var (
		dryRun bool
		minAge time.Duration
	)
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete intruder photos no attempt record references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			c := gc.NewCollector(config.Resolve(a.dataDir, a.cfg.MediaDir), a.db, minAge, a.clock, a.logger)
			plan, err := c.Plan(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				if jsonOutput {
					return outputJSON(out, plan)
				}
				fmt.Fprintf(out, "Would delete %d photo(s), %d bytes (%d referenced, %d too recent).\n",
					plan.CandidateCount, plan.DeletableBytes, plan.Referenced, plan.ProtectedByAge)
				for _, p := range plan.ToDelete {
					fmt.Fprintf(out, "  %s\n", p)
				}
				return nil
			}

			deleted, err := c.Run(cmd.Context(), plan)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(out, map[string]any{"plan": plan, "deleted": deleted})
			}
			fmt.Fprintln(out, color.For(out).Success(fmt.Sprintf("Deleted %d photo(s).", deleted)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted")
	cmd.Flags().DurationVar(&minAge, "min-age", model.DefaultMediaKeepMinAge, "keep photos newer than this")
	return cmd
}
