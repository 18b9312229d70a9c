//go:build test

package main

import (
	"bytes"
	"context"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blecentral/internal/testutils"
	"github.com/srg/blecentral/pkg/adapter"
)

// Test peripheral addresses for consistent fake device identification
const (
	TestDeviceAddress1 = "AA:BB:CC:DD:EE:01"
	TestDeviceAddress2 = "AA:BB:CC:DD:EE:02"
	TestDeviceAddress3 = "AA:BB:CC:DD:EE:03"
)

// CommandTestSuite runs commands against an auto-responding FakeAdapter
// installed through adapterFactory.
type CommandTestSuite struct {
	suite.Suite

	helper  *testutils.TestHelper
	adapter *testutils.FakeAdapter

	origFactory func(*logrus.Logger) (adapter.Adapter, func() error, error)
	origNoColor bool
}

func (s *CommandTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.adapter = s.helper.Adapter.WithPeripherals(heartRateMonitor(), thermometer())

	s.origFactory = adapterFactory
	adapterFactory = func(*logrus.Logger) (adapter.Adapter, func() error, error) {
		return s.adapter, func() error { return nil }, nil
	}

	s.origNoColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownTest() {
	adapterFactory = s.origFactory
	color.NoColor = s.origNoColor
}

// ExecuteCommand runs the root command with args and returns stdout, stderr
// and the command error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	cmd := newRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// ExecuteAsync runs the command in the background; the returned channel
// yields its stdout and error once it returns.
func (s *CommandTestSuite) ExecuteAsync(args ...string) <-chan commandOutcome {
	done := make(chan commandOutcome, 1)
	go func() {
		out, _, err := s.ExecuteCommand(args...)
		done <- commandOutcome{stdout: out, err: err}
	}()
	return done
}

// Wait returns the outcome of an ExecuteAsync run, failing after timeout.
func (s *CommandTestSuite) Wait(done <-chan commandOutcome, timeout time.Duration) commandOutcome {
	select {
	case o := <-done:
		return o
	case <-time.After(timeout):
		s.FailNow("command did not return in time")
		return commandOutcome{}
	}
}

// WaitForCall blocks until the adapter saw n calls of method.
func (s *CommandTestSuite) WaitForCall(method string, n int) {
	s.Require().Eventually(func() bool {
		return s.adapter.CallCount(method) >= n
	}, 2*time.Second, 5*time.Millisecond, "adapter MUST receive %s", method)
}

type commandOutcome struct {
	stdout string
	err    error
}

func heartRateMonitor() *testutils.PeripheralProfile {
	return testutils.NewPeripheralBuilder(TestDeviceAddress1).
		WithName("HRM").
		WithRSSI(-50).
		WithAdvertisedServices("180D").
		WithManufacturerData([]byte{0x59, 0x00, 0x01}).
		WithService("180D").
		WithCharacteristic("2A37", "read,notify", []byte{0x06, 0x48}).
		WithCharacteristic("2A38", "read", []byte{0x01}).
		WithService("180F").
		WithCharacteristic("2A19", "read,notify", []byte{0x64}).
		Build()
}

func thermometer() *testutils.PeripheralProfile {
	return testutils.NewPeripheralBuilder(TestDeviceAddress2).FromJSON(`{
		"name": "Thermo",
		"rssi": -70,
		"advertised": ["1809"],
		"tx_power": 4,
		"services": [
			{"uuid": "1809", "characteristics": [
				{"uuid": "2a1c", "properties": "indicate"}
			]}
		]
	}`).Build()
}
