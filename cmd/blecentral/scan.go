package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blecentral/pkg/adapter"
	"github.com/srg/blecentral/pkg/central"
)

type scanOptions struct {
	services        []string
	name            string
	timeout         time.Duration
	format          string
	allowDuplicates bool
	all             bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE peripherals",
		Long: `Scan for Bluetooth Low Energy peripherals in the vicinity.

By default the scan stops at the first peripheral that advertises one of the
requested services and matches --name. With --all every advertiser seen
until the timeout (or Ctrl+C) is listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.services, "services", "s", nil, "Filter by advertised service UUIDs")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Only match peripherals whose local name contains this text")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 0, "Scan timeout (default from config, 0 for no limit)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format (table, json)")
	cmd.Flags().BoolVar(&opts.allowDuplicates, "allow-duplicates", false, "Report every advertisement, not one per peripheral")
	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "List every peripheral seen until the timeout")
	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	if opts.format != "" {
		if err := validateFormat(opts.format); err != nil {
			return err
		}
	}
	services, err := adapter.ParseUUIDs(opts.services...)
	if err != nil {
		return fmt.Errorf("invalid service UUID: %w", err)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	timeout := a.cfg.ScanTimeout
	if cmd.Flags().Changed("timeout") {
		timeout = opts.timeout
	}
	format := a.cfg.OutputFormat
	if opts.format != "" {
		format = opts.format
	}

	ctx, cancel := commandContext(cmd, timeout)
	defer cancel()

	matchName := func(adv adapter.Advertisement) bool {
		return opts.name == "" || strings.Contains(strings.ToLower(adv.LocalName), strings.ToLower(opts.name))
	}

	if opts.all {
		entries, err := collectAdvertisers(ctx, a.session, services, opts.allowDuplicates || a.cfg.ScanAllowDuplicates, matchName)
		if err != nil {
			return err
		}
		return writePeripherals(cmd, format, entries)
	}

	progress := newCommandProgress(cmd, "Scanning for BLE devices", "Scanning", timeout)
	progress.Start()

	result := a.session.Scan(services, &central.ScanOptions{
		AllowDuplicates: opts.allowDuplicates || a.cfg.ScanAllowDuplicates,
		Match:           func(e adapter.PeripheralDiscovered) bool { return matchName(e.Advertisement) },
	})
	p, err := result.Await(ctx)
	progress.Stop()
	if err != nil {
		switch {
		case interrupted(ctx):
			return ctx.Err()
		case ctx.Err() != nil:
			return fmt.Errorf("%w within %s", ErrNoPeripheralFound, timeout)
		default:
			return err
		}
	}
	return writePeripherals(cmd, format, []peripheralSummary{summarizePeripheral(p)})
}

// collectAdvertisers keeps a scan running until ctx ends and returns every
// accepted advertiser in order of first sighting.
func collectAdvertisers(ctx context.Context, session *central.Session, services []adapter.UUID, allowDuplicates bool, accept func(adapter.Advertisement) bool) ([]peripheralSummary, error) {
	seen := orderedmap.New[adapter.Identity, peripheralSummary]()
	discoveries := session.ObserveDiscoveries()
	defer discoveries.Close()

	// Match never accepts, the scan only ends through ctx.
	result := session.Scan(services, &central.ScanOptions{
		AllowDuplicates: allowDuplicates,
		Match:           func(adapter.PeripheralDiscovered) bool { return false },
	})
	defer result.Cancel()

	for {
		select {
		case e, ok := <-discoveries.C:
			if !ok {
				return summaries(seen), nil
			}
			if e.Advertisement.MatchesAny(services) && accept(e.Advertisement) {
				seen.Set(e.Peripheral, summarize(e.Peripheral, e.Advertisement, e.RSSI))
			}
		case <-result.Done():
			if _, err := result.Get(); err != nil && central.KindOf(err) != central.KindOperationCancelled {
				return nil, err
			}
			return summaries(seen), nil
		case <-ctx.Done():
			return summaries(seen), nil
		}
	}
}

func summaries(m *orderedmap.OrderedMap[adapter.Identity, peripheralSummary]) []peripheralSummary {
	out := make([]peripheralSummary, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func writePeripherals(cmd *cobra.Command, format string, entries []peripheralSummary) error {
	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), entries)
	}
	return writePeripheralTable(cmd.OutOrStdout(), entries)
}
