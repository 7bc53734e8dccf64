package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/securelock/securelock/pkg/color"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <command>",
		Short: "Inspect the audit journal",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit journal hash chain",
		Long: `Verify the audit journal hash chain.

Every record carries the hash of the record before it. A deleted,
reordered or edited line breaks the chain and fails verification.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			records, verr := a.journal.Verify()
			out := cmd.OutOrStdout()
			if jsonOutput {
				result := map[string]any{
					"path":    a.journal.Path(),
					"records": records,
					"valid":   verr == nil,
				}
				if verr != nil {
					result["error"] = verr.Error()
				}
				if err := outputJSON(out, result); err != nil {
					return err
				}
				return verr
			}
			if verr != nil {
				return fmt.Errorf("audit journal %s: %w", a.journal.Path(), verr)
			}
			fmt.Fprintln(out, color.For(out).Success(fmt.Sprintf("Audit journal OK: %d records (%s)", records, a.journal.Path())))
			return nil
		},
	}

	cmd.AddCommand(verifyCmd)
	return cmd
}
