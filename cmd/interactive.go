package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/pkg/interactive"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Launch interactive operator mode",
	Long:  `Launches the interactive operator menu for the RF ATE station.`,
	Run: func(_ *cobra.Command, _ []string) {
		RunInteractive()
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

// RunInteractive shows the operator menu until the operator exits.
func RunInteractive() {
	fmt.Println("RF ATE - Interactive Mode")
	fmt.Println("=========================")
	fmt.Println()

	for {
		options := []interactive.MenuOption{
			{
				Name:        "Run station",
				Description: "Test the DUTs on the fixture",
				Action: func() error {
					reportAction(interactiveRun(false))
					return nil
				},
			},
			{
				Name:        "Run simulated station",
				Description: "Test a simulated fixture without waits",
				Action: func() error {
					reportAction(interactiveRun(true))
					return nil
				},
			},
			{
				Name:        "Devices",
				Description: "List the devices found on the fixture",
				Action: func() error {
					reportAction(runSubcommand(devicesCmd))
					return nil
				},
			},
			{
				Name:        "Harness power",
				Description: "Read the radiated power from the harness",
				Action: func() error {
					reportAction(runSubcommand(harnessPowerCmd))
					return nil
				},
			},
			{
				Name:        "Recent results",
				Description: "List recent runs from the local store",
				Action: func() error {
					reportAction(runSubcommand(resultsListCmd))
					return nil
				},
			},
			{
				Name:        "Show Config",
				Description: "Display current station configuration",
				Action: func() error {
					reportAction(showConfig())
					return nil
				},
			},
		}

		if err := interactive.ShowMainMenu(options); err != nil {
			if errors.Is(err, interactive.ErrExit) {
				fmt.Println("Goodbye!")
				return
			}
			log.Fatal(err)
		}

		fmt.Println()
	}
}

func interactiveRun(simulate bool) error {
	labels := make([]string, device.Slots)
	for i := range labels {
		labels[i] = device.SlotLabel(i)
	}

	slots, err := interactive.SelectMany("Which DUT slots should be tested?", labels)
	if err != nil {
		return err
	}

	opts := runOptions{
		simulate: simulate,
		duts:     device.Slots,
		instant:  simulate,
		slots:    slots,
	}

	if !interactive.Confirm(fmt.Sprintf("Start testing %v?", slots)) {
		fmt.Println("Run canceled.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runStation(ctx, opts)
}

// runSubcommand runs c's RunE outside cobra's dispatch.
func runSubcommand(c *cobra.Command) error {
	c.SetContext(context.Background())

	return c.RunE(c, nil)
}

// reportAction prints err, if any, and waits for the operator.
func reportAction(err error) {
	if err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
	}

	interactive.PauseForEnter()
}
