package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/blec/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby BLE devices",
	Long: fmt.Sprintf(`Scans for advertising BLE devices and prints what was found.

Examples:
  # Scan with defaults (10s)
  blec scan

  # Scan for 30 seconds
  blec scan --duration 30s

  # Only devices advertising the Heart Rate service
  blec scan --service 180d

  # JSON output
  blec scan --json

%s`, deviceAddressNote),
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanServices []string
	scanAllow    []string
	scanBlock    []string
	scanJSON     bool
	scanVerbose  bool
)

func init() {
	scanCmd.Flags().DurationVar(&scanDuration, "duration", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringSliceVar(&scanServices, "service", nil, "Only devices advertising these service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllow, "allow", nil, "Only these device addresses")
	scanCmd.Flags().StringSliceVar(&scanBlock, "block", nil, "Exclude these device addresses")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Output as JSON")
	scanCmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Verbose logging")
}

func runScan(cmd *cobra.Command, _ []string) error {
	client, _, cfg, err := newClient(cmd, "verbose")
	if err != nil {
		return err
	}

	// Unset flags fall back to the config file values.
	if !cmd.Flags().Changed("duration") {
		scanDuration = cfg.ScanTimeout
	}
	if !cmd.Flags().Changed("json") {
		scanJSON = cfg.OutputFormat == "json"
	}

	opts := scanner.DefaultScanOptions()
	opts.Duration = scanDuration
	opts.ServiceUUIDs = scanServices
	opts.AllowList = scanAllow
	opts.BlockList = scanBlock

	interactive := term.IsTerminal(int(os.Stderr.Fd())) && !scanJSON
	progress := scanner.ProgressCallback(nil)
	if interactive {
		progress = func(phase string) {
			fmt.Fprintf(os.Stderr, "\r\033[K%s...", phase)
		}
	}

	devices, err := client.Scan(cmd.Context(), opts, progress)
	if interactive {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
	if err != nil {
		return err
	}

	if scanJSON {
		return printScanJSON(os.Stdout, devices)
	}
	printScanTable(os.Stdout, devices)
	return nil
}

type scanResult struct {
	Address          string   `json:"address"`
	Name             string   `json:"name,omitempty"`
	RSSI             int      `json:"rssi"`
	Connectable      bool     `json:"connectable"`
	Services         []string `json:"services,omitempty"`
	ManufacturerData string   `json:"manufacturer_data,omitempty"`
}

func collectScanResults(devices map[string]*scanner.DiscoveredDevice) []scanResult {
	results := make([]scanResult, 0, len(devices))
	for _, dev := range devices {
		r := scanResult{
			Address:     dev.Address(),
			Name:        dev.Name(),
			RSSI:        dev.RSSI(),
			Connectable: dev.Connectable(),
			Services:    dev.Services(),
		}
		if data := dev.ManufacturerData(); len(data) > 0 {
			r.ManufacturerData = fmt.Sprintf("%x", data)
		}
		results = append(results, r)
	}
	// Strongest signal first
	sort.Slice(results, func(i, j int) bool {
		if results[i].RSSI != results[j].RSSI {
			return results[i].RSSI > results[j].RSSI
		}
		return results[i].Address < results[j].Address
	})
	return results
}

func printScanJSON(out io.Writer, devices map[string]*scanner.DiscoveredDevice) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(collectScanResults(devices))
}

func printScanTable(out io.Writer, devices map[string]*scanner.DiscoveredDevice) {
	results := collectScanResults(devices)
	if len(results) == 0 {
		fmt.Fprintln(out, "No devices found")
		return
	}

	bold := color.New(color.Bold)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, bold.Sprint("ADDRESS\tNAME\tRSSI\tSERVICES"))
	for _, r := range results {
		name := r.Name
		if name == "" {
			name = "-"
		}
		services := "-"
		if len(r.Services) > 0 {
			services = strings.Join(r.Services, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Address, name, r.RSSI, services)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d device(s) found\n", len(results))
}
