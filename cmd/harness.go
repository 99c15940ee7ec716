package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/rf-ate/internal/harness"
)

var (
	harnessPort    string
	harnessChannel int
)

var harnessCmd = &cobra.Command{
	Use:   "harness",
	Short: "Talk to the power-measurement harness",
	Long:  `Reads analog channels, radiated power and sets the mode of the Arduino power harness.`,
}

var harnessReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the voltage of an analog channel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withHarness(func(a *harness.Arduino) error {
			voltage, err := a.Analog(cmd.Context(), harnessChannel)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "A%d: %.3f V\n", harnessChannel, voltage)

			return nil
		})
	},
}

var harnessPowerCmd = &cobra.Command{
	Use:   "power",
	Short: "Read the radiated power in dBm",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withHarness(func(a *harness.Arduino) error {
			power, err := a.RadioPower(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%.2f dBm\n", power)

			return nil
		})
	},
}

var harnessModeCmd = &cobra.Command{
	Use:       "mode <M|Z|P>",
	Short:     "Set the harness mode: measure, zero or park",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(harness.ModeMeasure), string(harness.ModeZero), string(harness.ModePark)},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := harness.ParseMode(args[0])
		if err != nil {
			return err
		}

		return withHarness(func(a *harness.Arduino) error {
			if err := a.SetMode(cmd.Context(), mode); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Harness mode set to %s\n", mode)

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(harnessCmd)
	harnessCmd.AddCommand(harnessReadCmd, harnessPowerCmd, harnessModeCmd)

	harnessCmd.PersistentFlags().StringVar(&harnessPort, "port", "", "Serial port (default arduino_com_port from config)")
	harnessReadCmd.Flags().IntVar(&harnessChannel, "channel", 0, "Analog channel to read")
}

// withHarness opens the configured harness, runs fn and closes it.
func withHarness(fn func(a *harness.Arduino) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	port := harnessPort
	if port == "" {
		port = cfg.ArduinoPort
	}

	a, err := harness.Open(harness.DefaultConfig(port), Logger)
	if err != nil {
		return fmt.Errorf("opening harness on %s: %w", port, err)
	}

	defer func() {
		if err := a.Close(); err != nil {
			Logger.WithError(err).WithFields(logrus.Fields{"port": port}).Warn("Failed to close harness")
		}
	}()

	return fn(a)
}
