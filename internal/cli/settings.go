package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/model"
)

// settingKeys lists the keys accepted by "settings set".
var settingKeys = []string{
	"max_attempts",
	"lockout_duration",
	"alarm_enabled",
	"camera_enabled",
	"location_enabled",
	"proximity_mode_enabled",
}

func newSettingsCmd() *cobra.Command {
	var pin string
	cmd := &cobra.Command{
		Use:   "settings <command>",
		Short: "Show or change security settings",
		Long: `Show or change the device security settings. Every subcommand
authenticates with the current PIN first; a wrong PIN counts as a failed
unlock attempt.

Keys:
  max_attempts            - wrong PINs before a lockout (positive integer)
  lockout_duration        - lockout length in seconds (positive integer)
  alarm_enabled           - sound the alarm on lockout (true, false)
  camera_enabled          - photograph the intruder on lockout (true, false)
  location_enabled        - record the device location on lockout (true, false)
  proximity_mode_enabled  - pocket mode while locked (true, false)`,
		DisableFlagsInUseLine: true,
	}
	cmd.PersistentFlags().StringVar(&pin, "pin", "", "current PIN")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl, done, err := a.unlock(cmd.Context(), pin, "settings show")
			if err != nil {
				return err
			}
			defer done()

			settings, err := ctrl.Settings(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd.OutOrStdout(), settings)
			}
			printSettings(cmd.OutOrStdout(), settings)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := parseSetting(args[0], args[1])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl, done, err := a.unlock(cmd.Context(), pin, "settings set")
			if err != nil {
				return err
			}
			defer done()

			settings, err := ctrl.UpdateSettings(cmd.Context(), update)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd.OutOrStdout(), settings)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(showCmd, setCmd)
	return cmd
}

func parseSetting(key, value string) (model.SettingsUpdate, error) {
	var u model.SettingsUpdate
	switch key {
	case "max_attempts", "lockout_duration":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return u, errclass.ErrSettingsInvalid.WithMessagef("%s must be a positive integer, got %q", key, value)
		}
		if key == "max_attempts" {
			u.MaxAttempts = &n
		} else {
			u.LockoutDurationSeconds = &n
		}
	case "alarm_enabled", "camera_enabled", "location_enabled", "proximity_mode_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return u, errclass.ErrSettingsInvalid.WithMessagef("%s must be true or false, got %q", key, value)
		}
		switch key {
		case "alarm_enabled":
			u.AlarmEnabled = &b
		case "camera_enabled":
			u.CameraEnabled = &b
		case "location_enabled":
			u.LocationEnabled = &b
		default:
			u.ProximityModeEnabled = &b
		}
	default:
		return u, errclass.ErrSettingsInvalid.WithMessagef("unknown key %q (valid: %s)", key, strings.Join(settingKeys, ", "))
	}
	return u, nil
}

func printSettings(w io.Writer, s *model.Settings) {
	fmt.Fprintf(w, "Device: %s\n", s.DeviceID)
	fmt.Fprintf(w, "  max_attempts: %d\n", s.MaxAttempts)
	fmt.Fprintf(w, "  lockout_duration: %ds\n", s.LockoutDurationSeconds)
	fmt.Fprintf(w, "  alarm_enabled: %t\n", s.AlarmEnabled)
	fmt.Fprintf(w, "  camera_enabled: %t\n", s.CameraEnabled)
	fmt.Fprintf(w, "  location_enabled: %t\n", s.LocationEnabled)
	fmt.Fprintf(w, "  proximity_mode_enabled: %t\n", s.ProximityModeEnabled)
	fmt.Fprintf(w, "  updated: %s\n", s.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func newPINCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin <command>",
		Short: "Manage the device PIN",
	}

	var oldPIN, newPIN, confirm string
	changeCmd := &cobra.Command{
		Use:   "change",
		Short: "Change the PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm == "" {
				confirm = newPIN
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl, done, err := a.unlock(cmd.Context(), oldPIN, "pin change")
			if err != nil {
				return err
			}
			defer done()

			if err := ctrl.ChangePIN(cmd.Context(), newPIN, confirm); err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]any{"changed": true})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PIN changed.")
			return nil
		},
	}
	changeCmd.Flags().StringVar(&oldPIN, "pin", "", "current PIN")
	changeCmd.Flags().StringVar(&newPIN, "new", "", "new 4-digit PIN")
	changeCmd.Flags().StringVar(&confirm, "confirm", "", "new PIN again (defaults to --new)")
	_ = changeCmd.MarkFlagRequired("new")

	cmd.AddCommand(changeCmd)
	return cmd
}
