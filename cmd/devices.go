package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/device/sim"
	"github.com/ethpandaops/rf-ate/internal/output/table"
)

var devicesSimulate bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices found on the fixture",
	Long:  `Scans the fixture once and prints the reference and every occupied DUT slot.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		classes, err := cfg.Classes()
		if err != nil {
			return err
		}

		scanner := hardwareScanner
		if devicesSimulate {
			scanner = sim.NewFixture(classes, device.Slots).Scanner()
		}

		roster, err := device.Discover(cmd.Context(), scanner, classes, cfg.Discovery.Retries, cfg.Discovery.Delay)
		if err != nil {
			return fmt.Errorf("discovering devices: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), rosterTable(roster))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().BoolVar(&devicesSimulate, "simulate", false, "Scan a simulated fixture")
}

func rosterTable(roster device.Roster) string {
	rows := make([][]string, 0, device.Slots+1)
	rows = append(rows, deviceRow(roster.Reference.Label(), roster.Reference))

	for i, d := range roster.DUTs {
		if d == nil {
			rows = append(rows, []string{device.SlotLabel(i), "-", "(empty)", "-", "-"})
			continue
		}

		rows = append(rows, deviceRow(d.Label(), d))
	}

	return table.NewRenderer(Logger).RenderToString(
		[]string{"Label", "Class", "Serial", "Family", "Product ID"}, rows)
}

func deviceRow(label string, d device.Device) []string {
	info := d.Info()

	return []string{label, string(info.Class), info.Serial, info.Family, strconv.Itoa(info.ProductID)}
}
