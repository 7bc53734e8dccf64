// Package cli implements the securelock command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/securelock/securelock/pkg/color"
)

// DataDirEnv overrides the default data directory.
const DataDirEnv = "SECURELOCK_HOME"

var (
	jsonOutput bool
	noColor    bool
	dataDir    string
	logLevel   string
	rootCmd    = newRootCmd()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "securelock",
		Short: "SecureLock - lock screen access control and intrusion response",
		Long: `SecureLock guards a device behind a 4-digit PIN. Repeated wrong PINs
start a timed lockout and an intrusion response: the alarm sounds, the
camera photographs the intruder and the location is fixed, all recorded
to a tamper-evident audit journal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "data directory (env "+DataDirEnv+")")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		newStatusCmd(),
		newSessionCmd(),
		newSettingsCmd(),
		newPINCmd(),
		newLogsCmd(),
		newAuditCmd(),
		newDoctorCmd(),
		newConfigCmd(),
		newGCCmd(),
		newCompletionCmd(),
	)
	return cmd
}

func defaultDataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".securelock"
	}
	return filepath.Join(home, ".securelock")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmtErr(rootCmd.ErrOrStderr(), "%v", err)
		os.Exit(1)
	}
}

// outputJSON prints v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputJSONOrError prints v as JSON, or returns err.
func outputJSONOrError(w io.Writer, v any, err error) error {
	if err != nil {
		return err
	}
	return outputJSON(w, v)
}

func fmtErr(w io.Writer, format string, args ...any) {
	prefix := color.For(w).Error("securelock:")
	fmt.Fprintf(w, prefix+" "+format+"\n", args...)
}
