package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blecentral/internal/bledb"
	"github.com/srg/blecentral/pkg/adapter"
	"github.com/srg/blecentral/pkg/central"
)

type subscribeOptions struct {
	connectTimeout time.Duration
	duration       time.Duration
	count          int
	format         string
}

func newSubscribeCmd() *cobra.Command {
	opts := &subscribeOptions{}
	cmd := &cobra.Command{
		Use:   "subscribe <device-address> <service-uuid> <characteristic-uuid>",
		Short: "Print notifications of a characteristic",
		Long: `Connects to a BLE peripheral, enables notifications for one characteristic
and prints every value received until --count values arrived, --duration
elapsed or Ctrl+C is pressed.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, opts, args)
		},
	}

	cmd.Flags().DurationVar(&opts.connectTimeout, "connect-timeout", 0, "Connection timeout (default from config)")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop after this long (0 for no limit)")
	cmd.Flags().IntVarP(&opts.count, "count", "c", 0, "Stop after this many values (0 for no limit)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format (table, json)")
	return cmd
}

// notification is one line of subscribe output.
type notification struct {
	Time           time.Time `json:"time"`
	Service        string    `json:"service"`
	Characteristic string    `json:"characteristic"`
	Value          string    `json:"value"`
}

func runSubscribe(cmd *cobra.Command, opts *subscribeOptions, args []string) error {
	if opts.format != "" {
		if err := validateFormat(opts.format); err != nil {
			return err
		}
	}
	if opts.count < 0 {
		return fmt.Errorf("invalid count %d: must not be negative", opts.count)
	}
	id := adapter.NormalizeIdentity(args[0])
	serviceUUID, err := adapter.ParseUUID(args[1])
	if err != nil {
		return fmt.Errorf("invalid service UUID: %w", err)
	}
	charUUID, err := adapter.ParseUUID(args[2])
	if err != nil {
		return fmt.Errorf("invalid characteristic UUID: %w", err)
	}

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

	p, err := connect(ctx, a, id, connectTimeout)
	if err != nil {
		return err
	}
	defer disconnect(p, a.logger)

	ch, err := findCharacteristic(ctx, p, serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if !ch.Properties().Has(adapter.PropNotify) && !ch.Properties().Has(adapter.PropIndicate) {
		return fmt.Errorf("characteristic %s does not support notifications (properties: %s)", charUUID, ch.Properties())
	}

	// Attach observers before enabling so no early notification is missed.
	values := p.ObserveValueUpdates()
	defer values.Close()
	link := p.ObserveConnectionState()
	defer link.Close()

	if _, err := p.SetNotify(ch, true).Await(ctx); err != nil {
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"peripheral":     id,
		"characteristic": withName(charUUID.String(), bledb.LookupCharacteristic(charUUID.String())),
	}).Info("Notifications enabled")

	listenCtx := ctx
	if opts.duration > 0 {
		var stop context.CancelFunc
		listenCtx, stop = context.WithTimeout(ctx, opts.duration)
		defer stop()
	}

	err = listen(listenCtx, cmd.OutOrStdout(), format, values, link, serviceUUID, charUUID, opts.count)

	if p.IsConnected() {
		offCtx, stop := context.WithTimeout(context.Background(), disconnectTimeout)
		defer stop()
		if _, offErr := p.SetNotify(ch, false).Await(offCtx); offErr != nil {
			a.logger.WithError(offErr).Warn("Failed to disable notifications")
		}
	}
	return err
}

func findCharacteristic(ctx context.Context, p *central.Peripheral, service, char adapter.UUID) (*central.Characteristic, error) {
	services, err := p.DiscoverServices(service).Await(ctx)
	if err != nil {
		return nil, err
	}
	chars, err := p.DiscoverCharacteristics(services[0], char).Await(ctx)
	if err != nil {
		return nil, err
	}
	return chars[0], nil
}

// listen prints values of (service, char) until ctx ends, count values were
// printed or the link drops.
func listen(ctx context.Context, w io.Writer, format string, values *central.Stream[adapter.ValueUpdated], link *central.Stream[bool], service, char adapter.UUID, count int) error {
	encoder := json.NewEncoder(w)
	received := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case connected, ok := <-link.C:
			if ok && !connected {
				return ErrConnectionLost
			}
		case e, ok := <-values.C:
			if !ok {
				return ErrConnectionLost
			}
			if e.Service != service || e.Characteristic != char || e.Err != nil {
				continue
			}

			n := notification{
				Time:           time.Now(),
				Service:        service.String(),
				Characteristic: char.String(),
				Value:          hex.EncodeToString(e.Value),
			}
			if format == "json" {
				if err := encoder.Encode(n); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(w, "%s: %s\n", n.Characteristic, formatValue(e.Value))
			}

			received++
			if count > 0 && received >= count {
				return nil
			}
		}
	}
}
