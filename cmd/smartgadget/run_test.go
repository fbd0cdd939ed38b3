//go:build test

//go:generate go run github.com/srgg/testify/depend/cmd/dependgen

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/srgg/testify/depend"
)

type RunCommandTestSuite struct {
	CommandTestSuite
}

func (s *RunCommandTestSuite) TestOncePollsConfiguredGadgets() {
	// GOAL: Verify a single round polls every configured gadget and reports each outcome
	//
	// TEST SCENARIO: Config lists two gadgets → run --once --jsonl → 3 live + 20 history records per gadget → "ok" per gadget

	cfg := s.ConfigFile(fastConfig + fmt.Sprintf("poll:\n  devices: [%q, %q]\n", TestGadgetAddress1, TestGadgetAddress2))

	stdout, stderr, err := s.ExecuteCommand("run", "--config", cfg, "--once", "--jsonl")
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	s.Len(lines, 46, "each gadget MUST publish its live readings and full history")
	s.Contains(stderr, TestGadgetAddress1+": ok")
	s.Contains(stderr, TestGadgetAddress2+": ok")
}

func (s *RunCommandTestSuite) TestOnceDevicesFlagOverridesConfig() {
	s.Unreachable[TestMissingAddress] = true
	cfg := s.ConfigFile(fastConfig + fmt.Sprintf("poll:\n  devices: [%q]\n", TestGadgetAddress2))

	_, stderr, err := s.ExecuteCommand("run", "--config", cfg, "--once", "--devices", TestGadgetAddress1+","+TestMissingAddress)
	s.Require().NoError(err, "one healthy gadget MUST keep the round successful")

	s.Contains(stderr, TestGadgetAddress1+": ok")
	s.Contains(stderr, TestMissingAddress+": timed out")
	s.NotContains(stderr, TestGadgetAddress2)
}

func (s *RunCommandTestSuite) TestOnceAllGadgetsFail() {
	s.Unreachable[TestMissingAddress] = true

	_, _, err := s.ExecuteCommand("run", "--config", s.ConfigFile(fastConfig), "--once", "--devices", TestMissingAddress)
	s.ErrorContains(err, "all 1 gadgets failed")
}

func (s *RunCommandTestSuite) TestInvalidOverride() {
	_, _, err := s.ExecuteCommand("run", "--interval", "-1m", "--once")
	s.ErrorContains(err, "poll.interval must be positive")
}

func (s *RunCommandTestSuite) TestServesMetrics() {
	// GOAL: Verify run serves health and metrics while polling and stops cleanly on cancellation
	//
	// TEST SCENARIO: run on a free port → /healthz ok → /metrics exposes the gadget reading → cancel → nil error

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	addr := ln.Addr().String()
	s.Require().NoError(ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, _, err := s.ExecuteCommandContext(ctx, "run",
			"--config", s.ConfigFile(fastConfig),
			"--devices", TestGadgetAddress1,
			"--metrics-addr", addr)
		done <- err
	}()

	get := func(path string) (int, string) {
		resp, err := http.Get("http://" + addr + path)
		if err != nil {
			return 0, ""
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	s.Eventually(func() bool {
		code, body := get("/healthz")
		return code == http.StatusOK && body == "ok"
	}, 3*time.Second, 20*time.Millisecond, "health endpoint MUST answer")

	s.Eventually(func() bool {
		_, body := get("/metrics")
		return strings.Contains(body, `smartgadget_reading{address="AA:BB:CC:DD:EE:FF",channel="temperature"} 21.5`) &&
			strings.Contains(body, `smartgadget_downloads_total{address="AA:BB:CC:DD:EE:FF",status="finished"} 1`)
	}, 5*time.Second, 50*time.Millisecond, "metrics MUST reflect the first poll")

	cancel()
	select {
	case err := <-done:
		s.NoError(err, "cancellation MUST be a clean stop")
	case <-time.After(5 * time.Second):
		s.Fail("run MUST return after cancellation")
	}
}

func TestRunCommandTestSuite(t *testing.T) {
	depend.RunSuite(t, new(RunCommandTestSuite))
}
