package gatt

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/smartgadget/internal/device"
)

// CCCD payloads written to enable and disable notifications.
var (
	EnableNotificationValue  = []byte{0x01, 0x00}
	DisableNotificationValue = []byte{0x00, 0x00}
)

// ListenerID identifies a registered listener for later removal.
type ListenerID uint64

// Listener receives every decoded notification of a Subscribable.
// A non-nil error stops delivery to the listeners registered after it.
type Listener func(v Value, ch *Subscribable) error

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// Subscribable is a Characteristic whose value can be pushed by the device.
type Subscribable struct {
	*Characteristic

	subscriptionOffset uint16

	mu         sync.Mutex
	subscribed bool
	nextID     ListenerID
	listeners  []listenerEntry
}

// NewSubscribable creates an unbound subscribable characteristic whose
// configuration descriptor sits at value handle + subscriptionOffset.
func NewSubscribable(format ByteFormat, subscriptionOffset uint16, opts ...Option) *Subscribable {
	return &Subscribable{
		Characteristic:     NewCharacteristic(format, opts...),
		subscriptionOffset: subscriptionOffset,
	}
}

// Bind binds the characteristic and reads the configuration descriptor once
// to learn whether notifications are already enabled. A failed read counts
// as unsubscribed.
func (s *Subscribable) Bind(ctx context.Context, t device.Transport, ref device.CharacteristicRef) error {
	if err := s.Characteristic.Bind(ctx, t, ref); err != nil {
		return err
	}

	raw, err := t.ReadDescriptor(ctx, s.cccdHandle())
	s.mu.Lock()
	s.subscribed = err == nil && len(raw) > 0 && raw[0]&0x03 != 0
	s.mu.Unlock()
	return nil
}

func (s *Subscribable) cccdHandle() uint16 {
	return s.Handle() + s.subscriptionOffset
}

// Subscribe enables notifications.
func (s *Subscribable) Subscribe(ctx context.Context) error {
	if !s.Bound() {
		return ErrNotBound
	}
	if err := s.transport.WriteDescriptor(ctx, s.cccdHandle(), EnableNotificationValue); err != nil {
		return fmt.Errorf("subscribe %s: %w", s, err)
	}
	s.mu.Lock()
	s.subscribed = true
	s.mu.Unlock()
	return nil
}

// Unsubscribe disables notifications. It does nothing when not subscribed.
func (s *Subscribable) Unsubscribe(ctx context.Context) error {
	if !s.Bound() {
		return ErrNotBound
	}
	if !s.Subscribed() {
		return nil
	}
	if err := s.transport.WriteDescriptor(ctx, s.cccdHandle(), DisableNotificationValue); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", s, err)
	}
	s.mu.Lock()
	s.subscribed = false
	s.mu.Unlock()
	return nil
}

// Subscribed mirrors the last successful configuration write.
func (s *Subscribable) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

// RegisterListener appends fn to the dispatch list.
func (s *Subscribable) RegisterListener(fn Listener) ListenerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: s.nextID, fn: fn})
	return s.nextID
}

// UnregisterListener removes a listener; it reports whether id was registered.
func (s *Subscribable) UnregisterListener(id ListenerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// ListenerCount returns the number of registered listeners.
func (s *Subscribable) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Dispatch decodes raw once and hands the value to every listener in
// registration order. The first listener error is returned and the
// remaining listeners are skipped.
func (s *Subscribable) Dispatch(raw []byte) error {
	v, err := s.Format().Decode(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		if err := l.fn(v, s); err != nil {
			return fmt.Errorf("listener %d of %s: %w", l.id, s, err)
		}
	}
	return nil
}
