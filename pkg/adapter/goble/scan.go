package goble

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/groutine"
	"github.com/srg/blecentral/pkg/adapter"
)

// StartScan scans until StopScan, reporting advertisements that carry one
// of services, or all of them when services is empty.
func (a *Adapter) StartScan(services []adapter.UUID, opts adapter.ScanOptions) error {
	if !a.hasHandler() {
		return adapter.ErrNoHandler
	}
	if s := a.State(); !s.Ready() {
		return adapter.ErrBluetoothOff
	}

	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	if a.scanCancel != nil {
		return adapter.ErrScanInProgress
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.scanCancel, a.scanDone = cancel, done
	a.scanning.Store(true)

	log := a.logger.WithFields(logrus.Fields{
		"services":         services,
		"allow_duplicates": opts.AllowDuplicates,
	})
	log.Info("Starting BLE scan...")

	filter := append([]adapter.UUID(nil), services...)
	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		defer close(done)
		defer a.scanning.Store(false)

		err := a.scan(ctx, opts.AllowDuplicates, func(adv advertisement) {
			e := convertAdvertisement(adv)
			if !e.Advertisement.MatchesAny(filter) {
				return
			}
			a.emit(func(h adapter.EventHandler) { h.PeripheralDiscovered(e) })
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			err = NormalizeError(err)
			log.WithError(err).Warn("BLE scan ended with error")
			a.observeError(err)
			return
		}
		log.Debug("BLE scan stopped")
	})
	return nil
}

// StopScan stops the running scan and waits for it to wind down. Stopping
// when no scan runs is a no-op.
func (a *Adapter) StopScan() error {
	a.scanMu.Lock()
	cancel, done := a.scanCancel, a.scanDone
	a.scanCancel, a.scanDone = nil, nil
	a.scanMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
