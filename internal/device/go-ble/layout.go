package goble

import (
	"sort"

	"github.com/go-ble/ble"
	"github.com/srg/smartgadget/internal/device"
)

const (
	userDescriptionUUID = "2901"
	clientConfigUUID    = "2902"
)

// attribute is one handle-addressable entry of a discovered profile.
type attribute struct {
	char *ble.Characteristic
	desc *ble.Descriptor // nil for value handles and virtual CCCDs
	cccd bool
}

// layout indexes a discovered profile by attribute handle.
type layout struct {
	attrs    map[uint16]*attribute
	services map[string][]device.CharacteristicRef
	// valueHandles maps characteristics back to their value handle for
	// notification routing.
	valueHandles map[*ble.Characteristic]uint16
	synthetic    bool
}

// newLayout indexes p. Stacks that report handles (Linux HCI) are used as
// is. CoreBluetooth hides handles and the client configuration descriptor,
// so for characteristics without a value handle synthetic handles are
// assigned in the order value, user description, client configuration,
// other descriptors; notifiable characteristics get a virtual
// configuration descriptor.
func newLayout(p *ble.Profile) *layout {
	l := &layout{
		attrs:        make(map[uint16]*attribute),
		services:     make(map[string][]device.CharacteristicRef),
		valueHandles: make(map[*ble.Characteristic]uint16),
	}

	var next uint16
	for _, svc := range p.Services {
		next++ // service declaration
		svcUUID := device.NormalizeUUID(svc.UUID.String())

		for _, ch := range svc.Characteristics {
			next++ // characteristic declaration

			var vh uint16
			if ch.ValueHandle != 0 {
				vh = ch.ValueHandle
				l.indexNative(ch)
			} else {
				l.synthetic = true
				next++
				vh = next
				l.attrs[vh] = &attribute{char: ch}
				next = l.indexSynthetic(ch, next)
			}

			l.valueHandles[ch] = vh
			l.services[svcUUID] = append(l.services[svcUUID], device.CharacteristicRef{
				UUID:   device.NormalizeUUID(ch.UUID.String()),
				Handle: vh,
			})
		}
	}

	for uuid := range l.services {
		refs := l.services[uuid]
		sort.SliceStable(refs, func(i, j int) bool { return refs[i].Handle < refs[j].Handle })
	}
	return l
}

func (l *layout) indexNative(ch *ble.Characteristic) {
	l.attrs[ch.ValueHandle] = &attribute{char: ch}
	for _, d := range ch.Descriptors {
		l.attrs[d.Handle] = &attribute{
			char: ch,
			desc: d,
			cccd: device.SameUUID(d.UUID.String(), clientConfigUUID),
		}
	}
	if ch.CCCD != nil {
		if _, ok := l.attrs[ch.CCCD.Handle]; !ok {
			l.attrs[ch.CCCD.Handle] = &attribute{char: ch, desc: ch.CCCD, cccd: true}
		}
	}
}

func (l *layout) indexSynthetic(ch *ble.Characteristic, next uint16) uint16 {
	descs := make([]*ble.Descriptor, len(ch.Descriptors))
	copy(descs, ch.Descriptors)
	sort.SliceStable(descs, func(i, j int) bool {
		return descriptorRank(descs[i]) < descriptorRank(descs[j])
	})

	hasCCCD := false
	for _, d := range descs {
		isCCCD := device.SameUUID(d.UUID.String(), clientConfigUUID)
		if !isCCCD && !hasCCCD && descriptorRank(d) > 1 && notifiable(ch) {
			next++
			l.attrs[next] = &attribute{char: ch, cccd: true}
			hasCCCD = true
		}
		next++
		l.attrs[next] = &attribute{char: ch, desc: d, cccd: isCCCD}
		hasCCCD = hasCCCD || isCCCD
	}
	if !hasCCCD && notifiable(ch) {
		next++
		l.attrs[next] = &attribute{char: ch, cccd: true}
	}
	return next
}

func descriptorRank(d *ble.Descriptor) int {
	switch device.NormalizeUUID(d.UUID.String()) {
	case userDescriptionUUID:
		return 0
	case clientConfigUUID:
		return 1
	default:
		return 2
	}
}

func notifiable(ch *ble.Characteristic) bool {
	return ch.Property&(ble.CharNotify|ble.CharIndicate) != 0
}

func (l *layout) lookup(handle uint16) (*attribute, bool) {
	a, ok := l.attrs[handle]
	return a, ok
}
