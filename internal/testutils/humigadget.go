package testutils

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/srg/smartgadget/internal/device"
	"github.com/srg/smartgadget/internal/gadget"
)

// Attribute handles of the simulated gadget. Each value handle is followed
// by its descriptors the way the real firmware lays them out.
const (
	BatteryHandle     uint16 = 0x0012
	BatteryCCCDHandle uint16 = 0x0013

	TemperatureHandle     uint16 = 0x0021
	TemperatureDescHandle uint16 = 0x0022
	TemperatureCCCDHandle uint16 = 0x0023

	HumidityHandle     uint16 = 0x0026
	HumidityDescHandle uint16 = 0x0027
	HumidityCCCDHandle uint16 = 0x0028

	SyncTimeHandle      uint16 = 0x0031
	OldestHandle        uint16 = 0x0034
	NewestHandle        uint16 = 0x0037
	StartDownloadHandle uint16 = 0x003a
	IntervalHandle      uint16 = 0x003d
)

// HumigadgetConfig sets the simulated logger contents.
type HumigadgetConfig struct {
	Address     string
	Temperature float32
	Humidity    float32
	Battery     uint8
	IntervalMs  uint32
	OldestMs    uint64
	NewestMs    uint64
}

// DefaultHumigadgetConfig is a gadget holding ten samples one second apart.
func DefaultHumigadgetConfig() HumigadgetConfig {
	return HumigadgetConfig{
		Address:     "AA:BB:CC:DD:EE:FF",
		Temperature: 21.5,
		Humidity:    45.25,
		Battery:     87,
		IntervalMs:  1000,
		OldestMs:    0,
		NewestMs:    10000,
	}
}

// Humigadget simulates a Smart Humigadget on top of a FakePeripheral.
//
// Writing the oldest timestamp restores the configured bound, the way the
// firmware clamps the cursor to its buffer start. Writing 1 to the start
// download characteristic calls OnDownload.
type Humigadget struct {
	*FakePeripheral

	mu         sync.Mutex
	cfg        HumigadgetConfig
	onDownload func(g *Humigadget)
	syncTimes  []uint64
}

// NewHumigadget creates a simulated gadget with every channel unsubscribed.
func NewHumigadget(cfg HumigadgetConfig) *Humigadget {
	p := NewFakePeripheral(cfg.Address)
	p.AddService(gadget.BatteryServiceUUID,
		device.CharacteristicRef{UUID: "2a19", Handle: BatteryHandle})
	p.AddService(gadget.TemperatureServiceUUID,
		device.CharacteristicRef{UUID: "00002235-b38d-4985-720e-0f993a68ee41", Handle: TemperatureHandle})
	p.AddService(gadget.HumidityServiceUUID,
		device.CharacteristicRef{UUID: "00001235-b38d-4985-720e-0f993a68ee41", Handle: HumidityHandle})
	p.AddService(gadget.LoggingServiceUUID,
		device.CharacteristicRef{UUID: "0000f235-b38d-4985-720e-0f993a68ee41", Handle: SyncTimeHandle},
		device.CharacteristicRef{UUID: "0000f236-b38d-4985-720e-0f993a68ee41", Handle: OldestHandle},
		device.CharacteristicRef{UUID: "0000f237-b38d-4985-720e-0f993a68ee41", Handle: NewestHandle},
		device.CharacteristicRef{UUID: "0000f238-b38d-4985-720e-0f993a68ee41", Handle: StartDownloadHandle},
		device.CharacteristicRef{UUID: "0000f239-b38d-4985-720e-0f993a68ee41", Handle: IntervalHandle},
	)

	p.SetValue(BatteryHandle, []byte{cfg.Battery})
	p.SetDescriptor(BatteryCCCDHandle, []byte{0, 0})

	p.SetValue(TemperatureHandle, Float32LE(cfg.Temperature))
	p.SetDescriptor(TemperatureDescHandle, []byte("Temperature °C\x00"))
	p.SetDescriptor(TemperatureCCCDHandle, []byte{0, 0})

	p.SetValue(HumidityHandle, Float32LE(cfg.Humidity))
	p.SetDescriptor(HumidityDescHandle, []byte("Relative Humidity"))
	p.SetDescriptor(HumidityCCCDHandle, []byte{0, 0})

	logging := map[uint16]string{
		SyncTimeHandle:      "Sync Time Ms",
		OldestHandle:        "Oldest Timestamp Ms",
		NewestHandle:        "Newest Timestamp Ms",
		StartDownloadHandle: "Start Logger Download",
		IntervalHandle:      "Logger Interval Ms",
	}
	for h, desc := range logging {
		p.SetDescriptor(h+1, []byte(desc))
	}
	p.SetValue(SyncTimeHandle, Uint64LE(0))
	p.SetValue(OldestHandle, Uint64LE(cfg.OldestMs))
	p.SetValue(NewestHandle, Uint64LE(cfg.NewestMs))
	p.SetValue(StartDownloadHandle, []byte{0})
	p.SetValue(IntervalHandle, Uint32LE(cfg.IntervalMs))

	g := &Humigadget{FakePeripheral: p, cfg: cfg}
	p.OnWrite = g.handleWrite
	return g
}

// OnDownload sets the reaction to the start download signal.
func (g *Humigadget) OnDownload(fn func(g *Humigadget)) *Humigadget {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onDownload = fn
	return g
}

// Config returns the simulated configuration.
func (g *Humigadget) Config() HumigadgetConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// SyncTimes returns every sync time the host wrote.
func (g *Humigadget) SyncTimes() []uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uint64(nil), g.syncTimes...)
}

// ExpectedSamples is the sample count a download of this gadget plans for.
func (g *Humigadget) ExpectedSamples() uint32 {
	cfg := g.Config()
	if cfg.NewestMs <= cfg.OldestMs || cfg.IntervalMs == 0 {
		return 0
	}
	return uint32((cfg.NewestMs - cfg.OldestMs) / uint64(cfg.IntervalMs))
}

// Subscribed reports whether the host enabled notifications at cccd.
func (g *Humigadget) Subscribed(cccd uint16) bool {
	d := g.Descriptor(cccd)
	return len(d) > 0 && d[0]&0x01 != 0
}

// SendFrame pushes one download frame with packed float samples.
func (g *Humigadget) SendFrame(handle uint16, seq uint32, values ...float32) {
	g.Notify(handle, DownloadFrame(seq, values...))
}

// StreamHistory pushes the whole history for every subscribed float channel,
// perFrame samples per frame, skipping frames whose first id is in drop.
// Sample id n carries the value base + n.
func (g *Humigadget) StreamHistory(perFrame int, drop map[uint32]bool) {
	total := g.ExpectedSamples()
	channels := []struct {
		handle, cccd uint16
		base         float32
	}{
		{TemperatureHandle, TemperatureCCCDHandle, 20},
		{HumidityHandle, HumidityCCCDHandle, 40},
	}
	for _, ch := range channels {
		if !g.Subscribed(ch.cccd) {
			continue
		}
		for seq := uint32(1); seq <= total; seq += uint32(perFrame) {
			if drop[seq] {
				continue
			}
			var values []float32
			for id := seq; id < seq+uint32(perFrame) && id <= total; id++ {
				values = append(values, ch.base+float32(id))
			}
			g.SendFrame(ch.handle, seq, values...)
		}
	}
}

func (g *Humigadget) handleWrite(w Write) {
	if w.Kind != CharacteristicWrite {
		return
	}
	switch w.Handle {
	case OldestHandle:
		g.SetValue(OldestHandle, Uint64LE(g.Config().OldestMs))
	case SyncTimeHandle:
		if len(w.Data) == 8 {
			g.mu.Lock()
			g.syncTimes = append(g.syncTimes, binary.LittleEndian.Uint64(w.Data))
			g.mu.Unlock()
		}
	case StartDownloadHandle:
		if len(w.Data) == 1 && w.Data[0] == 1 {
			g.mu.Lock()
			fn := g.onDownload
			g.mu.Unlock()
			if fn != nil {
				fn(g)
			}
		}
	}
}

// ----------------------------
// Encoding helpers
// ----------------------------

func Float32LE(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func Uint32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func Uint64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// DownloadFrame builds a sequence-prefixed frame of packed float samples.
func DownloadFrame(seq uint32, values ...float32) []byte {
	frame := Uint32LE(seq)
	for _, v := range values {
		frame = append(frame, Float32LE(v)...)
	}
	return frame
}

// ManualClock is a settable time source.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
