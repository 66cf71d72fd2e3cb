package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blec/internal/gatt/goble"
	"github.com/srg/blec/pkg/blec"
	"github.com/srg/blec/pkg/config"
)

const (
	exampleDeviceAddress = "AA:BB:CC:DD:EE:FF"
	deviceAddressNote    = "Device address format: MAC address on Linux, 128-bit UUID on macOS\n  Use 'blec scan' to discover devices"
)

// newClient assembles the production client from the command's flags.
func newClient(cmd *cobra.Command, verboseFlagName string) (*blec.Client, *logrus.Logger, *config.Config, error) {
	logger, err := configureLogger(cmd, verboseFlagName)
	if err != nil {
		return nil, nil, nil, err
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg := config.DefaultConfig()
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	stack := goble.NewStack(logger)
	stack.SetConnectTimeout(cfg.ConnectTimeout)
	return blec.New(stack, cfg, logger), logger, cfg, nil
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), d)
}

// withConnectedDevice connects, discovers and hands the session to fn,
// always tearing the connection down afterwards.
func withConnectedDevice(ctx context.Context, client *blec.Client, address string, fn func(context.Context) error) error {
	client.RegisterDevice(address)
	if err := client.Connect(ctx, address); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer client.Disconnect(address)

	if _, err := client.DiscoverServices(ctx, address); err != nil {
		return fmt.Errorf("service discovery failed: %w", err)
	}
	return fn(ctx)
}
