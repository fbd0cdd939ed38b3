package gatt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/smartgadget/internal/bledb"
	"github.com/srg/smartgadget/internal/device"
)

var (
	ErrNotBound     = errors.New("characteristic not bound")
	ErrAlreadyBound = errors.New("characteristic already bound")
)

// Option configures a Characteristic at construction.
type Option func(*Characteristic)

// WithDescriptionOffset makes Bind read the description from the descriptor
// at value handle + offset instead of using the well-known attribute name.
func WithDescriptionOffset(offset uint16) Option {
	return func(c *Characteristic) {
		c.descriptionOffset = offset
	}
}

// WithUnit overrides the unit derived from the description.
func WithUnit(unit string) Option {
	return func(c *Characteristic) {
		c.unit = unit
	}
}

// Characteristic is a typed GATT value with a fixed wire format.
//
// The format is fixed at construction; the transport binding (UUID, value
// handle) is set once by Bind and never changes afterwards.
type Characteristic struct {
	format            ByteFormat
	descriptionOffset uint16
	unit              string

	transport   device.Transport
	uuid        string
	handle      uint16
	bound       bool
	description string
}

// NewCharacteristic creates an unbound characteristic.
func NewCharacteristic(format ByteFormat, opts ...Option) *Characteristic {
	c := &Characteristic{format: format}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind attaches the characteristic to a transport handle and caches its
// description.
func (c *Characteristic) Bind(ctx context.Context, t device.Transport, ref device.CharacteristicRef) error {
	if c.bound {
		return fmt.Errorf("%w: handle 0x%04x", ErrAlreadyBound, c.handle)
	}

	description := bledb.LookupCharacteristic(ref.UUID)
	if c.descriptionOffset != 0 {
		raw, err := t.ReadDescriptor(ctx, ref.Handle+c.descriptionOffset)
		if err != nil {
			return fmt.Errorf("read description of %s: %w", device.ShortenUUID(device.NormalizeUUID(ref.UUID)), err)
		}
		description = decodeDescription(raw)
	}

	c.transport = t
	c.uuid = device.NormalizeUUID(ref.UUID)
	c.handle = ref.Handle
	c.description = description
	c.bound = true
	return nil
}

func decodeDescription(raw []byte) string {
	raw = bytes.TrimRight(raw, "\x00")
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), "�"))
}

func (c *Characteristic) Format() ByteFormat { return c.format }
func (c *Characteristic) UUID() string { return c.uuid }
func (c *Characteristic) Handle() uint16 { return c.handle }
func (c *Characteristic) Bound() bool { return c.bound }

// Description returns the description cached at bind time.
func (c *Characteristic) Description() string { return c.description }

// Unit returns the unit override, or the last word of the description
// ("Temperature °C" → "°C").
func (c *Characteristic) Unit() string {
	if c.unit != "" {
		return c.unit
	}
	fields := strings.Fields(c.description)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// Read fetches and decodes the current value.
func (c *Characteristic) Read(ctx context.Context) (Value, error) {
	if !c.bound {
		return Value{}, ErrNotBound
	}
	raw, err := c.transport.ReadCharacteristic(ctx, c.handle)
	if err != nil {
		return Value{}, err
	}
	return c.format.Decode(raw)
}

// Write encodes v with the characteristic format and writes it.
func (c *Characteristic) Write(ctx context.Context, v any) error {
	if !c.bound {
		return ErrNotBound
	}
	raw, err := c.format.Encode(v)
	if err != nil {
		return err
	}
	return c.transport.WriteCharacteristic(ctx, c.handle, raw)
}

func (c *Characteristic) String() string {
	if c.description != "" {
		return c.description
	}
	if c.bound {
		return fmt.Sprintf("%s@0x%04x", device.ShortenUUID(c.uuid), c.handle)
	}
	return "unbound " + c.format.String()
}
