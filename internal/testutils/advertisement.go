package testutils

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
)

// Advertisement is an in-memory ble.Advertisement.
type Advertisement struct {
	name        string
	address     string
	rssi        int
	txPower     int
	connectable bool
	services    []ble.UUID
	manufData   []byte
}

func (a *Advertisement) LocalName() string              { return a.name }
func (a *Advertisement) ManufacturerData() []byte       { return a.manufData }
func (a *Advertisement) ServiceData() []ble.ServiceData { return nil }
func (a *Advertisement) Services() []ble.UUID           { return a.services }
func (a *Advertisement) OverflowService() []ble.UUID    { return nil }
func (a *Advertisement) TxPowerLevel() int              { return a.txPower }
func (a *Advertisement) Connectable() bool              { return a.connectable }
func (a *Advertisement) SolicitedService() []ble.UUID   { return nil }
func (a *Advertisement) RSSI() int                      { return a.rssi }
func (a *Advertisement) Addr() ble.Addr                 { return ble.NewAddr(a.address) }

// AdvertisementBuilder builds advertisements with a fluent API.
type AdvertisementBuilder struct {
	adv Advertisement
}

// NewAdvertisementBuilder starts a connectable advertisement with the
// "unavailable" TX power of 127.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: Advertisement{connectable: true, txPower: 127}}
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.address = addr
	return b
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

func (b *AdvertisementBuilder) WithTxPower(p int) *AdvertisementBuilder {
	b.adv.txPower = p
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

// WithServices adds service UUIDs in short or full form. Panics on malformed input.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.services = append(b.adv.services, ble.MustParse(u))
	}
	return b
}

func (b *AdvertisementBuilder) Build() ble.Advertisement {
	adv := b.adv
	return &adv
}

// ScanDevice is a ble.Device whose Scan replays canned advertisements.
// Other ble.Device methods are not implemented and panic.
type ScanDevice struct {
	ble.Device

	Advertisements []ble.Advertisement
	// Err is returned once the advertisements have been delivered.
	Err error
	// Block keeps the scan running until its context ends.
	Block bool

	mu       sync.Mutex
	allowDup []bool
}

func (d *ScanDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	d.mu.Lock()
	d.allowDup = append(d.allowDup, allowDup)
	d.mu.Unlock()

	for _, adv := range d.Advertisements {
		h(adv)
	}
	if d.Err != nil {
		return d.Err
	}
	if d.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// AllowDup returns the allowDup argument of every Scan call.
func (d *ScanDevice) AllowDup() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.allowDup...)
}
