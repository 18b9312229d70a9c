package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blecentral",
		Short: "Bluetooth Low Energy central CLI",
		Long: `Bluetooth Low Energy (BLE) central built on an event-driven session:

- Scan for peripherals, optionally filtered by service or name
- Inspect GATT services and characteristics of a peripheral
- Subscribe to characteristic notifications
- Report and watch the adapter power state`,
		Version:       formatVersion(version),
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("blecentral {{.Version}} (commit %s, built %s)\n", commit, date))

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("verbose", false, "Shorthand for --log-level debug")
	root.PersistentFlags().String("config", "", "Path to a YAML configuration file")

	root.AddCommand(newScanCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newSubscribeCmd())
	root.AddCommand(newStateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
