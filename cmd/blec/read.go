package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> <uuid>",
	Short: "Read a characteristic value",
	Long: fmt.Sprintf(`Reads data from a BLE characteristic.

Examples:
  # Read Battery Level characteristic
  blec read %s 2a19

  # Output as hex
  blec read %s 2a19 --hex

  # Continuously watch characteristic (polls every second)
  blec read %s 2a37 --watch 1s

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

var (
	readHex     bool
	readTimeout time.Duration
	readWatch   time.Duration
	readVerbose bool
)

func init() {
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string (e.g. 'ff01'); raw bytes by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 30*time.Second, "Connect and read timeout")
	readCmd.Flags().DurationVar(&readWatch, "watch", 0, "Continuously read at this interval (e.g. 1s, 500ms)")
	readCmd.Flags().BoolVar(&readVerbose, "verbose", false, "Verbose logging")
}

func runRead(cmd *cobra.Command, args []string) error {
	address, uuid := args[0], args[1]

	client, _, _, err := newClient(cmd, "verbose")
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, 0)
	defer cancel()

	return withConnectedDevice(ctx, client, address, func(ctx context.Context) error {
		if readWatch <= 0 {
			return readOnce(ctx, client, address, uuid)
		}

		ticker := time.NewTicker(readWatch)
		defer ticker.Stop()
		for {
			if err := readOnce(ctx, client, address, uuid); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}

func readOnce(parent context.Context, client clientReader, address, uuid string) error {
	ctx, cancel := context.WithTimeout(parent, readTimeout)
	defer cancel()

	value, err := client.Read(ctx, address, uuid)
	if err != nil {
		return fmt.Errorf("read of %s failed: %w", uuid, err)
	}

	if readHex {
		fmt.Println(hex.EncodeToString(value))
		return nil
	}
	_, err = os.Stdout.Write(value)
	return err
}

// clientReader is the slice of the client the read path needs.
type clientReader interface {
	Read(ctx context.Context, address, charUUID string) ([]byte, error)
}
