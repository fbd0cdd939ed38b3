package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srg/smartgadget/internal/device"
)

// WriteKind tells characteristic writes from descriptor writes.
type WriteKind string

const (
	CharacteristicWrite WriteKind = "characteristic"
	DescriptorWrite     WriteKind = "descriptor"
)

// Write is one recorded write against a FakePeripheral.
type Write struct {
	Kind   WriteKind
	Handle uint16
	Data   []byte
}

// FakePeripheral is an in-memory device.Peripheral addressed by handles.
//
// Values and descriptors are plain byte slices keyed by handle. Every write
// is recorded, stored and then handed to the optional OnWrite hook so tests
// can simulate device-side reactions.
type FakePeripheral struct {
	mu          sync.Mutex
	address     string
	connected   bool
	services    map[string][]device.CharacteristicRef
	values      map[uint16][]byte
	descriptors map[uint16][]byte
	readErrs    map[uint16]error
	writeErrs   map[uint16]error
	writes      []Write
	handler     device.NotificationHandler

	// OnWrite runs after a successful write, outside the fake's lock.
	OnWrite func(w Write)
}

// NewFakePeripheral creates a connected fake with no attributes.
func NewFakePeripheral(address string) *FakePeripheral {
	return &FakePeripheral{
		address:     address,
		connected:   true,
		services:    make(map[string][]device.CharacteristicRef),
		values:      make(map[uint16][]byte),
		descriptors: make(map[uint16][]byte),
		readErrs:    make(map[uint16]error),
		writeErrs:   make(map[uint16]error),
	}
}

// AddService registers a service and its characteristics in handle order.
func (p *FakePeripheral) AddService(uuid string, chars ...device.CharacteristicRef) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.services[device.NormalizeUUID(uuid)] = chars
	return p
}

// SetValue sets the characteristic value at handle.
func (p *FakePeripheral) SetValue(handle uint16, data []byte) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[handle] = clone(data)
	return p
}

// SetDescriptor sets the descriptor value at handle.
func (p *FakePeripheral) SetDescriptor(handle uint16, data []byte) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.descriptors[handle] = clone(data)
	return p
}

// FailRead makes reads of handle return err. A nil err clears the failure.
func (p *FakePeripheral) FailRead(handle uint16, err error) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErrs[handle] = err
	return p
}

// FailWrite makes writes to handle return err. A nil err clears the failure.
func (p *FakePeripheral) FailWrite(handle uint16, err error) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErrs[handle] = err
	return p
}

// Value returns the stored characteristic value.
func (p *FakePeripheral) Value(handle uint16) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clone(p.values[handle])
}

// Descriptor returns the stored descriptor value.
func (p *FakePeripheral) Descriptor(handle uint16) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clone(p.descriptors[handle])
}

// Writes returns every write recorded so far.
func (p *FakePeripheral) Writes() []Write {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Write, len(p.writes))
	copy(out, p.writes)
	return out
}

// WritesTo returns the payloads written to handle, in order.
func (p *FakePeripheral) WritesTo(kind WriteKind, handle uint16) [][]byte {
	var out [][]byte
	for _, w := range p.Writes() {
		if w.Kind == kind && w.Handle == handle {
			out = append(out, w.Data)
		}
	}
	return out
}

// Notify pushes a notification frame to the installed handler.
// It reports whether a handler was installed.
func (p *FakePeripheral) Notify(handle uint16, data []byte) bool {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		return false
	}
	h(device.Notification{Handle: handle, Data: clone(data), At: time.Now()})
	return true
}

// ----------------------------
// device.Peripheral
// ----------------------------

func (p *FakePeripheral) ReadCharacteristic(ctx context.Context, handle uint16) ([]byte, error) {
	return p.read(ctx, handle, p.values, "characteristic")
}

func (p *FakePeripheral) ReadDescriptor(ctx context.Context, handle uint16) ([]byte, error) {
	return p.read(ctx, handle, p.descriptors, "descriptor")
}

func (p *FakePeripheral) WriteCharacteristic(ctx context.Context, handle uint16, data []byte) error {
	return p.write(ctx, Write{Kind: CharacteristicWrite, Handle: handle, Data: clone(data)})
}

func (p *FakePeripheral) WriteDescriptor(ctx context.Context, handle uint16, data []byte) error {
	return p.write(ctx, Write{Kind: DescriptorWrite, Handle: handle, Data: clone(data)})
}

func (p *FakePeripheral) SetNotificationHandler(h device.NotificationHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

func (p *FakePeripheral) DiscoverCharacteristics(ctx context.Context, serviceUUID string) ([]device.CharacteristicRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, device.ErrNotConnected
	}
	chars, ok := p.services[device.NormalizeUUID(serviceUUID)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}
	out := make([]device.CharacteristicRef, len(chars))
	copy(out, chars)
	return out, nil
}

func (p *FakePeripheral) Address() string { return p.address }

func (p *FakePeripheral) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *FakePeripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	p.handler = nil
	return nil
}

func (p *FakePeripheral) read(ctx context.Context, handle uint16, store map[uint16][]byte, resource string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, device.ErrNotConnected
	}
	if err := p.readErrs[handle]; err != nil {
		return nil, err
	}
	v, ok := store[handle]
	if !ok {
		return nil, &device.NotFoundError{Resource: resource, UUIDs: []string{fmt.Sprintf("0x%04x", handle)}}
	}
	return clone(v), nil
}

func (p *FakePeripheral) write(ctx context.Context, w Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return device.ErrNotConnected
	}
	if err := p.writeErrs[w.Handle]; err != nil {
		p.mu.Unlock()
		return err
	}
	p.writes = append(p.writes, w)
	if w.Kind == CharacteristicWrite {
		p.values[w.Handle] = w.Data
	} else {
		p.descriptors[w.Handle] = w.Data
	}
	hook := p.OnWrite
	p.mu.Unlock()

	if hook != nil {
		hook(w)
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ device.Peripheral = (*FakePeripheral)(nil)
