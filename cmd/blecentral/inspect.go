package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blecentral/internal/bledb"
	"github.com/srg/blecentral/pkg/adapter"
	"github.com/srg/blecentral/pkg/central"
)

const disconnectTimeout = 5 * time.Second

type inspectOptions struct {
	connectTimeout time.Duration
	services       []string
	read           bool
	format         string
}

func newInspectCmd() *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect <device-address>",
		Short: "Inspect services and characteristics of a BLE peripheral",
		Long: `Connects to a BLE peripheral by address and discovers its services and
characteristics. With --read, readable characteristics are read once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts, args[0])
		},
	}

	cmd.Flags().DurationVar(&opts.connectTimeout, "connect-timeout", 0, "Connection timeout (default from config)")
	cmd.Flags().StringSliceVarP(&opts.services, "services", "s", nil, "Only discover these service UUIDs")
	cmd.Flags().BoolVarP(&opts.read, "read", "r", false, "Read the value of readable characteristics")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format (table, json)")
	return cmd
}

type characteristicReport struct {
	UUID       string   `json:"uuid"`
	Name       string   `json:"name,omitempty"`
	Properties []string `json:"properties"`
	Value      string   `json:"value,omitempty"`
	Decoded    string   `json:"decoded,omitempty"`
	ReadError  string   `json:"read_error,omitempty"`

	raw []byte
}

type serviceReport struct {
	UUID            string                 `json:"uuid"`
	Name            string                 `json:"name,omitempty"`
	Characteristics []characteristicReport `json:"characteristics"`
}

type peripheralReport struct {
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Services []serviceReport `json:"services"`
}

func runInspect(cmd *cobra.Command, opts *inspectOptions, address string) error {
	if opts.format != "" {
		if err := validateFormat(opts.format); err != nil {
			return err
		}
	}
	filter, err := adapter.ParseUUIDs(opts.services...)
	if err != nil {
		return fmt.Errorf("invalid service UUID: %w", err)
	}
	id := adapter.NormalizeIdentity(address)

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	connectTimeout := a.cfg.ConnectTimeout
	if cmd.Flags().Changed("connect-timeout") {
		connectTimeout = opts.connectTimeout
	}
	format := a.cfg.OutputFormat
	if opts.format != "" {
		format = opts.format
	}

	ctx, cancel := commandContext(cmd, 0)
	defer cancel()

	progress := newCommandProgress(cmd, fmt.Sprintf("Inspecting device %s", id), "Connecting", 0)
	progress.Start()
	defer progress.Stop()

	p, err := connect(ctx, a, id, connectTimeout)
	if err != nil {
		return err
	}
	defer disconnect(p, a.logger)

	progress.SetPhase("Discovering")
	report, err := inspectPeripheral(ctx, p, filter, opts.read)
	progress.Stop()
	if err != nil {
		if interrupted(ctx) {
			return ctx.Err()
		}
		return err
	}

	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	return writeReport(cmd.OutOrStdout(), report)
}

// connect waits for the link at most timeout (no limit when zero).
func connect(ctx context.Context, a *app, id adapter.Identity, timeout time.Duration) (*central.Peripheral, error) {
	connectCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p, err := a.session.Connect(id, adapter.ConnectOptions{DialTimeout: timeout}).Await(connectCtx)
	if err != nil {
		switch {
		case interrupted(ctx):
			return nil, ctx.Err()
		case connectCtx.Err() != nil:
			return nil, fmt.Errorf("connect to %s: %w", id, connectCtx.Err())
		}
		return nil, err
	}
	return p, nil
}

func disconnect(p *central.Peripheral, logger *logrus.Logger) {
	if !p.IsConnected() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if _, err := p.Disconnect().Await(ctx); err != nil {
		logger.WithError(err).WithField("peripheral", p.ID()).Warn("Disconnect failed")
	}
}

// inspectPeripheral discovers filter (every service when empty) and the
// characteristics of each found service. Characteristic discoveries are all
// issued before any is awaited.
func inspectPeripheral(ctx context.Context, p *central.Peripheral, filter []adapter.UUID, read bool) (*peripheralReport, error) {
	services, err := p.DiscoverServices(filter...).Await(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]*central.Result[[]*central.Characteristic], len(services))
	for i, svc := range services {
		pending[i] = p.DiscoverCharacteristics(svc)
	}

	report := &peripheralReport{ID: string(p.ID()), Services: []serviceReport{}}
	if name := p.Name(); name != report.ID {
		report.Name = name
	}
	for i, svc := range services {
		chars, err := pending[i].Await(ctx)
		if err != nil && !errors.Is(err, central.ErrNoCharacteristicsForService) {
			return nil, err
		}

		sr := serviceReport{
			UUID:            svc.UUID().String(),
			Name:            bledb.LookupService(string(svc.UUID())),
			Characteristics: []characteristicReport{},
		}
		for _, ch := range chars {
			cr := characteristicReport{
				UUID:       ch.UUID().String(),
				Name:       bledb.LookupCharacteristic(string(ch.UUID())),
				Properties: ch.Properties().Names(),
			}
			if read && ch.Properties().Has(adapter.PropRead) {
				v, err := p.ReadValue(ch).Await(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					cr.ReadError = FormatUserError(err)
				} else {
					cr.raw = v
					cr.Value = hex.EncodeToString(v)
					cr.Decoded, _ = bledb.DecodeValue(cr.UUID, v)
				}
			}
			sr.Characteristics = append(sr.Characteristics, cr)
		}
		report.Services = append(report.Services, sr)
	}
	return report, nil
}

var (
	serviceColor = color.New(color.FgCyan, color.Bold)
	charColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func writeReport(w io.Writer, r *peripheralReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Peripheral %s\n", withName(r.ID, r.Name))
	fmt.Fprintf(&b, "Services: %d\n", len(r.Services))

	for i, s := range r.Services {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, serviceColor.Sprint("Service "+withName(s.UUID, s.Name)))
		if len(s.Characteristics) == 0 {
			b.WriteString("  (no characteristics)\n")
		}
		for _, c := range s.Characteristics {
			fmt.Fprintf(&b, "  - %s\n", charColor.Sprint("Characteristic "+withName(c.UUID, c.Name)))
			fmt.Fprintf(&b, "      Properties: %s\n", strings.Join(c.Properties, ","))
			switch {
			case c.ReadError != "":
				fmt.Fprintf(&b, "      Value: %s\n", errorColor.Sprint(c.ReadError))
			case c.Decoded != "":
				fmt.Fprintf(&b, "      Value: %s (%s)\n", formatValue(c.raw), c.Decoded)
			case c.raw != nil:
				fmt.Fprintf(&b, "      Value: %s\n", formatValue(c.raw))
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func withName(uuid, name string) string {
	if name == "" {
		return uuid
	}
	return fmt.Sprintf("%s (%s)", uuid, name)
}
