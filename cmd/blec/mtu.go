package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// mtuCmd represents the mtu command
var mtuCmd = &cobra.Command{
	Use:   "mtu <device-address>",
	Short: "Negotiate the connection MTU",
	Long: fmt.Sprintf(`Connects to a device and negotiates the ATT MTU.

Examples:
  # Request the maximum MTU
  blec mtu %s

  # Request a specific MTU
  blec mtu %s --request 185

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runMTU,
}

var (
	mtuRequest int
	mtuTimeout time.Duration
	mtuVerbose bool
)

func init() {
	mtuCmd.Flags().IntVar(&mtuRequest, "request", 517, "MTU to request (23-517)")
	mtuCmd.Flags().DurationVar(&mtuTimeout, "timeout", 30*time.Second, "Connect and negotiation timeout")
	mtuCmd.Flags().BoolVar(&mtuVerbose, "verbose", false, "Verbose logging")
}

func runMTU(cmd *cobra.Command, args []string) error {
	address := args[0]

	if mtuRequest < 23 || mtuRequest > 517 {
		return fmt.Errorf("requested MTU %d out of range (23-517)", mtuRequest)
	}

	client, _, _, err := newClient(cmd, "verbose")
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, mtuTimeout)
	defer cancel()

	return withConnectedDevice(ctx, client, address, func(ctx context.Context) error {
		negotiated, err := client.RequestMTU(ctx, address, mtuRequest)
		if err != nil {
			return fmt.Errorf("MTU negotiation failed: %w", err)
		}
		fmt.Printf("Negotiated MTU: %d\n", negotiated)
		return nil
	})
}
