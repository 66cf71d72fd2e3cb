package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect GATT services and characteristics of a device",
	Long: fmt.Sprintf(`Connects to a device, discovers its GATT profile and prints it.

Examples:
  # Inspect a device
  blec inspect %s

  # JSON output
  blec inspect %s --json

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectJSON    bool
	inspectTimeout time.Duration
	inspectVerbose bool
)

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")
	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 30*time.Second, "Connect and discovery timeout")
	inspectCmd.Flags().BoolVar(&inspectVerbose, "verbose", false, "Verbose logging")
}

func runInspect(cmd *cobra.Command, args []string) error {
	address := args[0]

	client, _, _, err := newClient(cmd, "verbose")
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, inspectTimeout)
	defer cancel()

	return withConnectedDevice(ctx, client, address, func(context.Context) error {
		snap, err := client.Snapshot(address)
		if err != nil {
			return err
		}

		if inspectJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		bold := color.New(color.Bold)
		cyan := color.New(color.FgCyan)

		fmt.Printf("%s %s\n\n", bold.Sprint("Device:"), snap.Address)
		for _, svc := range snap.Services {
			name := svc.KnownName
			if name == "" {
				name = "Unknown Service"
			}
			fmt.Printf("%s %s (%s)\n", cyan.Sprint("service"), svc.UUID, name)
			for _, char := range svc.Characteristics {
				charName := char.KnownName
				if charName == "" {
					charName = "Unknown Characteristic"
				}
				fmt.Printf("  %s (%s) [%s]\n", char.UUID, charName, strings.Join(char.Properties, " "))
			}
		}
		return nil
	})
}
