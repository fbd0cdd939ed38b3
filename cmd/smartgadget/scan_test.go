//go:build test

package main

import (
	"encoding/json"
	"errors"
	"testing"

	blelib "github.com/go-ble/ble"
	"github.com/srg/smartgadget/internal/device"
	"github.com/srg/smartgadget/internal/testutils"
	"github.com/srg/smartgadget/scanner"
	"github.com/stretchr/testify/suite"
)

type ScanCommandTestSuite struct {
	CommandTestSuite
}

func (s *ScanCommandTestSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()
	s.Scan.Advertisements = []blelib.Advertisement{
		testutils.NewAdvertisementBuilder().WithAddress(TestGadgetAddress1).WithName("Smart Humigadget").WithRSSI(-60).Build(),
		testutils.NewAdvertisementBuilder().WithAddress(TestGadgetAddress2).WithName("Smart Humigadget").WithRSSI(-40).Build(),
		testutils.NewAdvertisementBuilder().WithAddress("99:88:77:66:55:44").WithName("Heart Rate").WithRSSI(-30).WithServices("180D").Build(),
	}
}

func (s *ScanCommandTestSuite) TestHelp() {
	stdout, _, err := s.ExecuteCommand("scan", "--help")

	s.Require().NoError(err)
	s.Contains(stdout, "Scan for Smart Humigadgets")
	s.Contains(stdout, "--duration")
	s.Contains(stdout, "--format")
}

func (s *ScanCommandTestSuite) TestInvalidArguments() {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown format", args: []string{"scan", "--format", "xml"}, wantErr: "invalid format 'xml'"},
		{name: "zero duration", args: []string{"scan", "--duration", "0s"}, wantErr: "invalid duration"},
		{name: "unexpected argument", args: []string{"scan", "AA:BB"}, wantErr: "unknown command"},
		{name: "bad log level", args: []string{"scan", "--log-level", "chatty"}, wantErr: "invalid log level"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, _, err := s.ExecuteCommand(tt.args...)
			s.ErrorContains(err, tt.wantErr)
		})
	}
}

func (s *ScanCommandTestSuite) TestTableListsGadgetsOnly() {
	// GOAL: Verify the default scan lists Smart Humigadgets, strongest first, and hides other advertisers
	//
	// TEST SCENARIO: Two gadgets and a heart rate monitor advertise → table shows both gadgets by RSSI → monitor absent

	stdout, _, err := s.ExecuteCommand("scan", "--duration", "100ms")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).AssertContainsLines(stdout,
		"NAME              ADDRESS            RSSI     SERVICES  SEEN",
		"Smart Humigadget  11:22:33:44:55:66  -40 dBm            1",
		"Smart Humigadget  AA:BB:CC:DD:EE:FF  -60 dBm            1",
	)
	s.NotContains(stdout, "Heart Rate", "non-gadget advertisers MUST be filtered out by default")
}

func (s *ScanCommandTestSuite) TestAllDevicesAsJSON() {
	stdout, _, err := s.ExecuteCommand("scan", "--duration", "100ms", "--all", "--format", "json")
	s.Require().NoError(err)

	var sightings []scanner.Sighting
	s.Require().NoError(json.Unmarshal([]byte(stdout), &sightings), "output MUST be a JSON array")
	s.Require().Len(sightings, 3)
	s.Equal("99:88:77:66:55:44", sightings[0].Address, "strongest signal MUST come first")
	s.False(sightings[0].Humigadget)
	s.True(sightings[1].Humigadget)
}

func (s *ScanCommandTestSuite) TestBlockList() {
	stdout, _, err := s.ExecuteCommand("scan", "--duration", "100ms", "--block", TestGadgetAddress2)
	s.Require().NoError(err)

	s.Contains(stdout, TestGadgetAddress1)
	s.NotContains(stdout, TestGadgetAddress2)
}

func (s *ScanCommandTestSuite) TestNothingFound() {
	s.Scan.Advertisements = nil

	stdout, _, err := s.ExecuteCommand("scan", "--duration", "100ms")
	s.Require().NoError(err)
	s.Equal("No gadgets found\n", stdout)
}

func (s *ScanCommandTestSuite) TestBluetoothOff() {
	s.Scan.Err = errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")

	_, _, err := s.ExecuteCommand("scan", "--duration", "100ms")

	s.Require().ErrorIs(err, device.ErrBluetoothOff)
	s.Equal("Bluetooth is turned off or unavailable; enable it and try again", FormatUserError(err))
}

func TestScanCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ScanCommandTestSuite))
}
