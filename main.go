// balance-board connects to a BLE balance board and turns its tilt into
// Up/Down/Left/Right input.
//
// Responsibilities:
//   - BLE central: scan, connect, subscribe to the [pitch, roll] characteristic
//   - Smooth, zero and debounce tilt into a direction, polled once per frame
//   - WebSocket /ws + REST API for dashboards, optional MQTT direction events
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"balance-board/ble"
	"balance-board/config"
)

var version = "dev"

var log = logrus.WithField("component", "main")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	address    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "balance-board",
		Short: "BLE balance board to directional input bridge",
		Long: `balance-board connects to a balance board over Bluetooth Low Energy,
smooths its pitch/roll telemetry and emits Up/Down/Left/Right events with
hysteresis. Live frames are served on /ws and optionally published to MQTT.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts.logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config")
	cmd.PersistentFlags().StringVarP(&opts.address, "address", "a", "", "board hardware address (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(newScanCmd(&opts), newDecodeCmd())
	return cmd
}

func setupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// loadConfig reads the config file if given and applies flag overrides.
func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("config load failed: %w", err)
		}
	}
	if opts.address != "" {
		cfg.Board.Address = opts.address
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newScanCmd(opts *options) *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List nearby BLE devices to find the board address",
		RunE: func(cmd *cobra.Command, args []string) error {
			central, err := ble.NewCentral(ble.DefaultConfig())
			if err != nil {
				return err
			}

			log.WithField("window", window).Info("BLE: Scanning...")
			ads, err := central.Discover(cmd.Context(), window)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, ad := range ads {
				marker := " "
				if opts.address != "" && ble.MatchAddress(ad.Address, opts.address) {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s  %4d dBm  %s\n", marker, ad.Address, ad.RSSI, ad.Name)
			}
			fmt.Fprintf(out, "%d device(s)\n", len(ads))
			return nil
		},
	}
	cmd.Flags().DurationVarP(&window, "window", "w", 10*time.Second, "how long to scan")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode HEX",
		Short: "Decode an 8-byte notification payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(args[0])
			data, err := hex.DecodeString(raw)
			if err != nil {
				return fmt.Errorf("invalid hex: %w", err)
			}
			s, err := ble.ParseSample(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
}
