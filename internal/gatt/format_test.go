package gatt

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteFormat_Decode(t *testing.T) {
	tests := []struct {
		name   string
		format ByteFormat
		raw    []byte
		want   any
	}{
		{"u8 battery", Uint8, []byte{0x57}, uint8(87)},
		{"u32 interval", Uint32, []byte{0xe8, 0x03, 0x00, 0x00}, uint32(1000)},
		{"u64 timestamp", Uint64, []byte{0x10, 0x27, 0, 0, 0, 0, 0, 0}, uint64(10000)},
		{"f32 temperature", Float32, []byte{0x00, 0x00, 0xac, 0x41}, float32(21.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.format.Decode(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.format, v.Format())
			assert.Equal(t, tt.want, v.Interface())
		})
	}
}

func TestByteFormat_DecodeRejectsWrongLength(t *testing.T) {
	// GOAL: Verify a payload that does not match the format width is rejected, never padded or truncated
	//
	// TEST SCENARIO: Decode short and long payloads → MalformedPayloadError carrying the length

	for _, raw := range [][]byte{{}, {1, 2, 3}, {1, 2, 3, 4, 5}} {
		_, err := Float32.Decode(raw)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedPayload), "error MUST match ErrMalformedPayload")

		var mpe *MalformedPayloadError
		require.ErrorAs(t, err, &mpe)
		assert.Equal(t, len(raw), mpe.Length)
		assert.Equal(t, Float32, mpe.Format)
	}
}

func TestByteFormat_DecodeAll(t *testing.T) {
	t.Run("packed floats", func(t *testing.T) {
		raw := []byte{
			0x00, 0x00, 0xac, 0x41, // 21.5
			0x00, 0x00, 0x35, 0x42, // 45.25
		}
		values, err := Float32.DecodeAll(raw)
		require.NoError(t, err)
		require.Len(t, values, 2)
		assert.InDelta(t, 21.5, values[0].Float64(), 1e-6)
		assert.InDelta(t, 45.25, values[1].Float64(), 1e-6)
	})

	t.Run("empty payload", func(t *testing.T) {
		values, err := Float32.DecodeAll(nil)
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("partial value", func(t *testing.T) {
		_, err := Float32.DecodeAll(make([]byte, 6))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}

func TestByteFormat_Encode(t *testing.T) {
	// GOAL: Verify encoding is little-endian, exact width and range checked
	//
	// TEST SCENARIO: Encode in-range values of several Go kinds → expected bytes; out-of-range values → error

	t.Run("in range", func(t *testing.T) {
		cases := []struct {
			format ByteFormat
			in     any
			want   []byte
		}{
			{Uint8, 1, []byte{0x01}},
			{Uint8, uint8(0), []byte{0x00}},
			{Uint32, uint32(1000), []byte{0xe8, 0x03, 0, 0}},
			{Uint64, int64(1709287200000), []byte{0x00, 0xd5, 0x74, 0xf9, 0x8d, 0x01, 0, 0}},
			{Uint64, 0, make([]byte, 8)},
			{Float32, 21.5, []byte{0x00, 0x00, 0xac, 0x41}},
		}
		for _, c := range cases {
			got, err := c.format.Encode(c.in)
			require.NoError(t, err, "%s %v", c.format, c.in)
			assert.Equal(t, c.want, got, "%s %v", c.format, c.in)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		cases := []struct {
			format ByteFormat
			in     any
		}{
			{Uint8, 256},
			{Uint8, -1},
			{Uint32, uint64(math.MaxUint32) + 1},
			{Uint64, 1.5},
			{Float32, math.MaxFloat64},
			{Uint8, "1"},
		}
		for _, c := range cases {
			_, err := c.format.Encode(c.in)
			assert.Error(t, err, "%s %v MUST be rejected", c.format, c.in)
		}
	})

	t.Run("value round trip", func(t *testing.T) {
		v, err := Uint32.Decode([]byte{0xe8, 0x03, 0, 0})
		require.NoError(t, err)
		raw, err := Uint32.Encode(v)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xe8, 0x03, 0, 0}, raw)
	})
}

func TestValue_Conversions(t *testing.T) {
	f, err := Float32.Decode([]byte{0x00, 0x00, 0xac, 0x41})
	require.NoError(t, err)
	assert.Equal(t, uint64(21), f.Uint64(), "float MUST truncate toward zero")
	assert.Equal(t, "21.5", f.String())

	neg, err := Float32.Decode([]byte{0x00, 0x00, 0xac, 0xc1})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), neg.Uint64(), "negative float MUST clamp to zero")
	assert.InDelta(t, -21.5, neg.Float64(), 1e-6)

	u, err := Uint8.Decode([]byte{87})
	require.NoError(t, err)
	assert.Equal(t, 87.0, u.Float64())
	assert.Equal(t, "87", u.String())
}
