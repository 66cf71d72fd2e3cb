package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <uuid> <value>",
	Short: "Write a characteristic value",
	Long: fmt.Sprintf(`Writes data to a BLE characteristic.

The value is UTF-8 text by default; use --hex for a hex-encoded payload.

Examples:
  # Write text
  blec write %s 2a00 "my device"

  # Write hex bytes
  blec write %s ff01 0a0b0c --hex

  # Write without response
  blec write %s ff01 0a --hex --no-response

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

var (
	writeHex        bool
	writeNoResponse bool
	writeTimeout    time.Duration
	writeVerbose    bool
)

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Treat value as hex-encoded bytes")
	writeCmd.Flags().BoolVar(&writeNoResponse, "no-response", false, "Write without response")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 30*time.Second, "Connect and write timeout")
	writeCmd.Flags().BoolVar(&writeVerbose, "verbose", false, "Verbose logging")
}

func parseWriteValue(raw string, asHex bool) ([]byte, error) {
	if !asHex {
		return []byte(raw), nil
	}
	cleaned := strings.ReplaceAll(strings.TrimPrefix(raw, "0x"), " ", "")
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q: %w", raw, err)
	}
	return data, nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	address, uuid := args[0], args[1]

	data, err := parseWriteValue(args[2], writeHex)
	if err != nil {
		return err
	}

	client, _, _, err := newClient(cmd, "verbose")
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, writeTimeout)
	defer cancel()

	return withConnectedDevice(ctx, client, address, func(ctx context.Context) error {
		if err := client.Write(ctx, address, uuid, data, !writeNoResponse); err != nil {
			return fmt.Errorf("write to %s failed: %w", uuid, err)
		}
		fmt.Printf("Wrote %d byte(s) to %s\n", len(data), uuid)
		return nil
	})
}
