//go:build test

package main

import (
	"testing"

	"github.com/srg/smartgadget/internal/device"
	"github.com/srg/smartgadget/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ReadCommandTestSuite struct {
	CommandTestSuite
}

func (s *ReadCommandTestSuite) TestReadsEveryChannel() {
	// GOAL: Verify read prints every live value with its unit
	//
	// TEST SCENARIO: Simulated gadget at 21.5°C / 45.25% / 87% → read without channel → three labelled lines

	stdout, _, err := s.ExecuteCommand("read", TestGadgetAddress1, "--config", s.ConfigFile(fastConfig))
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(stdout, `
Temperature: 21.50°C
Humidity: 45.25%
Battery: 87%
`)
	for _, g := range s.Gadgets() {
		s.False(g.IsConnected(), "read MUST disconnect when done")
	}
}

func (s *ReadCommandTestSuite) TestReadsSelectedChannels() {
	stdout, _, err := s.ExecuteCommand("read", TestGadgetAddress1, "battery,t")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(stdout, "Battery: 87%\nTemperature: 21.50°C")
}

func (s *ReadCommandTestSuite) TestUnknownChannel() {
	_, _, err := s.ExecuteCommand("read", TestGadgetAddress1, "pressure")

	s.ErrorContains(err, `unknown channel "pressure"`)
	s.Empty(s.Gadgets(), "an invalid channel MUST be rejected before connecting")
}

func (s *ReadCommandTestSuite) TestUnreachableGadget() {
	s.Unreachable[TestMissingAddress] = true

	_, _, err := s.ExecuteCommand("read", TestMissingAddress)

	s.Require().ErrorIs(err, device.ErrTimeout)
	s.Contains(FormatUserError(err), "timed out")
}

func (s *ReadCommandTestSuite) TestMissingConfigFile() {
	_, _, err := s.ExecuteCommand("read", TestGadgetAddress1, "--config", "/nonexistent/smartgadget.yaml")

	s.ErrorContains(err, "read config")
}

func TestReadCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ReadCommandTestSuite))
}
