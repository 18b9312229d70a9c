package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/srg/blecentral/internal/bledb"
	"github.com/srg/blecentral/pkg/adapter"
	"github.com/srg/blecentral/pkg/central"
)

var outputFormats = []string{"table", "json"}

func validateFormat(format string) error {
	for _, f := range outputFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format '%s': must be one of %v", format, outputFormats)
}

// peripheralSummary is the scan view of one advertiser.
type peripheralSummary struct {
	ID               string   `json:"id"`
	Name             string   `json:"name,omitempty"`
	RSSI             int      `json:"rssi"`
	Connectable      bool     `json:"connectable"`
	TxPower          *int     `json:"tx_power,omitempty"`
	Services         []string `json:"services,omitempty"`
	ManufacturerData string   `json:"manufacturer_data,omitempty"`
	Manufacturer     string   `json:"manufacturer,omitempty"`
}

func summarize(id adapter.Identity, adv adapter.Advertisement, rssi int) peripheralSummary {
	s := peripheralSummary{
		ID:          string(id),
		Name:        adv.LocalName,
		RSSI:        rssi,
		Connectable: adv.Connectable,
	}
	if adv.TxPowerLevel != adapter.TxPowerUnavailable {
		tx := adv.TxPowerLevel
		s.TxPower = &tx
	}
	for _, u := range adv.Services {
		s.Services = append(s.Services, u.String())
	}
	if len(adv.ManufacturerData) > 0 {
		s.ManufacturerData = hex.EncodeToString(adv.ManufacturerData)
	}
	if id, ok := bledb.CompanyID(adv.ManufacturerData); ok {
		s.Manufacturer = fmt.Sprintf("0x%04x", id)
		if name := bledb.LookupCompany(id); name != "" {
			s.Manufacturer = fmt.Sprintf("%s (0x%04x)", name, id)
		}
	}
	return s
}

func summarizePeripheral(p *central.Peripheral) peripheralSummary {
	adv, _ := p.Advertisement()
	s := summarize(p.ID(), adv, p.RSSI())
	s.Name = p.Name()
	return s
}

func writePeripheralTable(w io.Writer, entries []peripheralSummary) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI\tSERVICES")
	for _, e := range entries {
		name := e.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(e.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%d dBm\t%s\n", name, e.ID, e.RSSI, services)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// formatValue renders characteristic bytes as spaced hex.
func formatValue(v []byte) string {
	if len(v) == 0 {
		return "<empty>"
	}
	return fmt.Sprintf("% x", v)
}
