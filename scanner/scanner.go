package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/smartgadget/internal/device"
	goble "github.com/srg/smartgadget/internal/device/go-ble"
	"github.com/srg/smartgadget/internal/gadget"
	"github.com/srg/smartgadget/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// SightingEventType marks if the device was newly discovered or updated
type SightingEventType int

const (
	EventNew SightingEventType = iota
	EventUpdated
)

type SightingEvent struct {
	Type     SightingEventType
	Sighting Sighting
}

// Sighting is what the scanner learned about one advertiser.
type Sighting struct {
	Address     string    `json:"address"`
	Name        string    `json:"name,omitempty"`
	RSSI        int       `json:"rssi"`
	TxPower     int       `json:"txPower,omitempty"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services,omitempty"`
	Humigadget  bool      `json:"humigadget"`
	Seen        int       `json:"seen"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Scanner handles BLE device discovery
type Scanner struct {
	devices *hashmap.Map[string, Sighting]
	events  *ringchan.Channel[SightingEvent]
	logger  *logrus.Logger
	now     func() time.Time

	scanOptions *ScanOptions
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	AllowList       []string
	BlockList       []string
	// AllDevices reports every advertiser instead of Humigadgets only.
	AllDevices bool
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// NewScanner creates a new BLE scanner
func NewScanner(logger *logrus.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		events: ringchan.New[SightingEvent](100),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Scan listens for advertisements until opts.Duration elapses or ctx is
// done and returns the matching sightings, strongest signal first.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]Sighting, error) {
	s.devices = hashmap.New[string, Sighting]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}

	s.logger.WithFields(logrus.Fields{
		"duration":    opts.Duration,
		"all_devices": opts.AllDevices,
	}).Info("Starting BLE scan...")

	progressCallback("Scanning")

	dev, err := goble.DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", device.NormalizeError(err))
	}

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	err = dev.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", device.NormalizeError(err))
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	progressCallback("Processing results")

	return s.snapshot(), nil
}

func (s *Scanner) handleAdvertisement(adv blelib.Advertisement) {
	addr := strings.ToUpper(adv.Addr().String())
	now := s.now()

	prev, existing := s.devices.Get(addr)
	if !existing && !s.shouldIncludeDevice(adv, s.scanOptions) {
		return
	}

	sighting := Sighting{
		Address:     addr,
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		TxPower:     adv.TxPowerLevel(),
		Connectable: adv.Connectable(),
		Services:    advertisedServices(adv),
		Humigadget:  isHumigadget(adv),
		Seen:        1,
		FirstSeen:   now,
		LastSeen:    now,
	}
	if existing {
		// Scan responses often carry only part of the payload.
		if sighting.Name == "" {
			sighting.Name = prev.Name
		}
		if len(sighting.Services) == 0 {
			sighting.Services = prev.Services
		}
		sighting.Humigadget = sighting.Humigadget || prev.Humigadget
		sighting.Seen = prev.Seen + 1
		sighting.FirstSeen = prev.FirstSeen
	}
	s.devices.Set(addr, sighting)

	event := SightingEvent{Type: EventUpdated, Sighting: sighting}
	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  sighting.Name,
			"address": sighting.Address,
			"rssi":    sighting.RSSI,
		}).Info("Discovered new device")
		event.Type = EventNew
	}

	if s.events.Send(event) {
		s.logger.Debug("Scan event buffer full, dropped oldest event")
	}
}

// shouldIncludeDevice applies the block, allow and Humigadget filters.
func (s *Scanner) shouldIncludeDevice(adv blelib.Advertisement, opts *ScanOptions) bool {
	addr := adv.Addr().String()

	for _, blocked := range opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if strings.EqualFold(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return opts.AllDevices || isHumigadget(adv)
}

// isHumigadget matches the advertised name or any of the gadget's
// sensor services.
func isHumigadget(adv blelib.Advertisement) bool {
	if adv.LocalName() == gadget.LocalName {
		return true
	}
	for _, u := range adv.Services() {
		switch {
		case device.SameUUID(u.String(), gadget.TemperatureServiceUUID),
			device.SameUUID(u.String(), gadget.HumidityServiceUUID),
			device.SameUUID(u.String(), gadget.LoggingServiceUUID):
			return true
		}
	}
	return false
}

func advertisedServices(adv blelib.Advertisement) []string {
	uuids := adv.Services()
	if len(uuids) == 0 {
		return nil
	}
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		out = append(out, device.NormalizeUUID(u.String()))
	}
	return out
}

func (s *Scanner) snapshot() []Sighting {
	out := make([]Sighting, 0, s.devices.Len())
	s.devices.Range(func(_ string, v Sighting) bool {
		out = append(out, v)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Events returns a read-only channel of sighting events. Slow readers lose
// the oldest events.
func (s *Scanner) Events() <-chan SightingEvent {
	return s.events.C()
}
