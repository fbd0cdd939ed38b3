package gatt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrMalformedPayload is matched by every MalformedPayloadError.
var ErrMalformedPayload = errors.New("malformed payload")

// MalformedPayloadError reports a payload whose length does not fit its format.
type MalformedPayloadError struct {
	Format ByteFormat
	Length int
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload: %d bytes is not a whole number of %s values (%d bytes each)",
		e.Length, e.Format, e.Format.Width())
}

// Is makes errors.Is(err, ErrMalformedPayload) hold.
func (e *MalformedPayloadError) Is(target error) bool {
	return target == ErrMalformedPayload
}

// ByteFormat is the little-endian wire encoding of a single value.
type ByteFormat int

const (
	Uint8 ByteFormat = iota + 1
	Uint32
	Uint64
	Float32
)

// Width returns the encoded size in bytes, 0 for an unknown format.
func (f ByteFormat) Width() int {
	switch f {
	case Uint8:
		return 1
	case Uint32, Float32:
		return 4
	case Uint64:
		return 8
	default:
		return 0
	}
}

func (f ByteFormat) String() string {
	switch f {
	case Uint8:
		return "u8"
	case Uint32:
		return "u32"
	case Uint64:
		return "u64"
	case Float32:
		return "f32"
	default:
		return "format(" + strconv.Itoa(int(f)) + ")"
	}
}

// Decode decodes exactly one value from raw.
func (f ByteFormat) Decode(raw []byte) (Value, error) {
	w := f.Width()
	if w == 0 || len(raw) != w {
		return Value{}, &MalformedPayloadError{Format: f, Length: len(raw)}
	}

	var bits uint64
	switch f {
	case Uint8:
		bits = uint64(raw[0])
	case Uint32, Float32:
		bits = uint64(binary.LittleEndian.Uint32(raw))
	case Uint64:
		bits = binary.LittleEndian.Uint64(raw)
	}
	return Value{format: f, bits: bits}, nil
}

// DecodeAll decodes a packed run of values. The payload length must be a
// whole multiple of the format width.
func (f ByteFormat) DecodeAll(raw []byte) ([]Value, error) {
	w := f.Width()
	if w == 0 || len(raw)%w != 0 {
		return nil, &MalformedPayloadError{Format: f, Length: len(raw)}
	}

	values := make([]Value, 0, len(raw)/w)
	for off := 0; off < len(raw); off += w {
		v, err := f.Decode(raw[off : off+w])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Encode encodes v, which may be any Go integer or float kind or a Value.
// Values that do not fit the format are rejected.
func (f ByteFormat) Encode(v any) ([]byte, error) {
	if f.Width() == 0 {
		return nil, fmt.Errorf("encode: unknown format %s", f)
	}
	if val, ok := v.(Value); ok {
		v = val.Interface()
	}

	if f == Float32 {
		x, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("encode %s: unsupported type %T", f, v)
		}
		if !math.IsInf(x, 0) && !math.IsNaN(x) && math.Abs(x) > math.MaxFloat32 {
			return nil, fmt.Errorf("encode %s: %v out of range", f, v)
		}
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(x)))
		return out, nil
	}

	u, err := toUint64(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f, err)
	}

	out := make([]byte, f.Width())
	switch f {
	case Uint8:
		if u > math.MaxUint8 {
			return nil, fmt.Errorf("encode %s: %d out of range", f, u)
		}
		out[0] = uint8(u)
	case Uint32:
		if u > math.MaxUint32 {
			return nil, fmt.Errorf("encode %s: %d out of range", f, u)
		}
		binary.LittleEndian.PutUint32(out, uint32(u))
	case Uint64:
		binary.LittleEndian.PutUint64(out, u)
	}
	return out, nil
}

func toUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case uint:
		return uint64(x), nil
	case int, int8, int16, int32, int64:
		i := toInt64(x)
		if i < 0 {
			return 0, fmt.Errorf("%d is negative", i)
		}
		return uint64(i), nil
	case float32, float64:
		f, _ := toFloat64(x)
		if f < 0 || f != math.Trunc(f) || f >= math.MaxUint64 {
			return 0, fmt.Errorf("%v is not an unsigned integer", x)
		}
		return uint64(f), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	}
	return 0
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case int, int8, int16, int32, int64:
		return float64(toInt64(x)), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint:
		return float64(x), true
	}
	return 0, false
}

// Value is one decoded attribute value tagged with its format.
type Value struct {
	format ByteFormat
	bits   uint64
}

// Format returns the format the value was decoded with.
func (v Value) Format() ByteFormat { return v.format }

// Float64 returns the value widened to float64.
func (v Value) Float64() float64 {
	if v.format == Float32 {
		return float64(math.Float32frombits(uint32(v.bits)))
	}
	return float64(v.bits)
}

// Uint64 returns integer values unchanged and floats truncated toward zero.
func (v Value) Uint64() uint64 {
	if v.format == Float32 {
		f := math.Float32frombits(uint32(v.bits))
		if f <= 0 || math.IsNaN(float64(f)) {
			return 0
		}
		return uint64(f)
	}
	return v.bits
}

// Interface returns the value as its native Go type:
// uint8, uint32, uint64 or float32.
func (v Value) Interface() any {
	switch v.format {
	case Uint8:
		return uint8(v.bits)
	case Uint32:
		return uint32(v.bits)
	case Uint64:
		return v.bits
	case Float32:
		return math.Float32frombits(uint32(v.bits))
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.format == Float32 {
		return strconv.FormatFloat(v.Float64(), 'f', -1, 32)
	}
	return strconv.FormatUint(v.bits, 10)
}
