package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <uuid>",
	Short: "Subscribe to characteristic notifications",
	Long: fmt.Sprintf(`Subscribes to BLE characteristic notifications and prints received data
until interrupted or the duration elapses.

Examples:
  # Stream heart rate measurements until Ctrl+C
  blec subscribe %s 2a37

  # Hex output, stop after 30 seconds
  blec subscribe %s 2a37 --hex --duration 30s

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(2),
	RunE: runSubscribe,
}

var (
	subscribeHex      bool
	subscribeDuration time.Duration
	subscribeVerbose  bool
)

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output payloads as hex strings")
	subscribeCmd.Flags().DurationVar(&subscribeDuration, "duration", 0, "Stop after this duration (default: until Ctrl+C)")
	subscribeCmd.Flags().BoolVar(&subscribeVerbose, "verbose", false, "Verbose logging")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address, uuid := args[0], args[1]

	client, _, _, err := newClient(cmd, "verbose")
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, subscribeDuration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withConnectedDevice(ctx, client, address, func(ctx context.Context) error {
		notifications := client.Notifications(address)
		defer client.DetachNotifications(address)

		if err := client.Subscribe(ctx, address, uuid); err != nil {
			return fmt.Errorf("subscribe to %s failed: %w", uuid, err)
		}
		defer func() {
			unsubCtx, unsubCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer unsubCancel()
			_ = client.Unsubscribe(unsubCtx, address, uuid)
		}()

		fmt.Fprintf(os.Stderr, "Subscribed to %s, press Ctrl+C to stop\n", uuid)
		for {
			select {
			case <-ctx.Done():
				return nil
			case n, ok := <-notifications:
				if !ok {
					return nil
				}
				ts := time.UnixMicro(n.TsUs).Format("15:04:05.000")
				if subscribeHex {
					fmt.Printf("%s %s %s\n", ts, n.UUID, hex.EncodeToString(n.Data))
				} else {
					fmt.Printf("%s %s %q\n", ts, n.UUID, n.Data)
				}
			}
		}
	})
}
