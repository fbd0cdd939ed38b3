package gadget

import (
	"fmt"
	"strings"
	"sync"

	"github.com/srg/smartgadget/internal/gatt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ChannelKind tags a telemetry channel.
type ChannelKind int

const (
	Temperature ChannelKind = iota
	Humidity
	Battery
)

// ChannelKinds lists every kind in display order.
var ChannelKinds = []ChannelKind{Temperature, Humidity, Battery}

func (k ChannelKind) String() string {
	switch k {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	case Battery:
		return "battery"
	default:
		return fmt.Sprintf("channel(%d)", int(k))
	}
}

// ParseChannelKind accepts a kind name or its first letter.
func ParseChannelKind(s string) (ChannelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temperature", "temp", "t":
		return Temperature, nil
	case "humidity", "hum", "h":
		return Humidity, nil
	case "battery", "bat", "b":
		return Battery, nil
	}
	return 0, fmt.Errorf("unknown channel %q (must be temperature, humidity or battery)", s)
}

// Channel is a subscribable telemetry value of a known kind.
// Only loggable channels take part in history downloads.
type Channel struct {
	*gatt.Subscribable

	Kind     ChannelKind
	Loggable bool
}

func (c *Channel) String() string {
	return c.Kind.String()
}

// ChannelSet indexes channels by value handle, in insertion order.
type ChannelSet struct {
	mu       sync.RWMutex
	byHandle *orderedmap.OrderedMap[uint16, *Channel]
}

// NewChannelSet creates an empty set.
func NewChannelSet() *ChannelSet {
	return &ChannelSet{byHandle: orderedmap.New[uint16, *Channel]()}
}

// Add inserts a bound channel. Handles and kinds must be unique.
func (s *ChannelSet) Add(ch *Channel) error {
	if !ch.Bound() {
		return fmt.Errorf("add %s: %w", ch.Kind, gatt.ErrNotBound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byHandle.Get(ch.Handle()); ok {
		return fmt.Errorf("add %s: handle 0x%04x already used by %s", ch.Kind, ch.Handle(), existing.Kind)
	}
	for pair := s.byHandle.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Kind == ch.Kind {
			return fmt.Errorf("add %s: kind already present", ch.Kind)
		}
	}
	s.byHandle.Set(ch.Handle(), ch)
	return nil
}

// Route dispatches a frame to the channel owning handle.
func (s *ChannelSet) Route(handle uint16, raw []byte) error {
	ch, ok := s.Lookup(handle)
	if !ok {
		return fmt.Errorf("%w: handle 0x%04x", ErrUnroutedNotification, handle)
	}
	return ch.Dispatch(raw)
}

// Lookup returns the channel owning handle.
func (s *ChannelSet) Lookup(handle uint16) (*Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byHandle.Get(handle)
}

// ByKind returns the channel of the given kind.
func (s *ChannelSet) ByKind(kind ChannelKind) (*Channel, bool) {
	for _, ch := range s.Channels() {
		if ch.Kind == kind {
			return ch, true
		}
	}
	return nil, false
}

// Channels returns all channels in insertion order.
func (s *ChannelSet) Channels() []*Channel {
	return s.filter(func(*Channel) bool { return true })
}

// Subscribed returns channels whose notifications are enabled.
func (s *ChannelSet) Subscribed() []*Channel {
	return s.filter(func(ch *Channel) bool { return ch.Subscribed() })
}

// Loggable returns channels that take part in history downloads.
func (s *ChannelSet) Loggable() []*Channel {
	return s.filter(func(ch *Channel) bool { return ch.Loggable })
}

// Len returns the number of channels.
func (s *ChannelSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byHandle.Len()
}

func (s *ChannelSet) filter(keep func(*Channel) bool) []*Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Channel, 0, s.byHandle.Len())
	for pair := s.byHandle.Oldest(); pair != nil; pair = pair.Next() {
		if keep(pair.Value) {
			out = append(out, pair.Value)
		}
	}
	return out
}
