package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit short form", input: "180F", expected: "180f"},
		{name: "16-bit with 0x prefix", input: "0x180f", expected: "180f"},
		{name: "SIG base UUID with dashes", input: "0000180f-0000-1000-8000-00805f9b34fb", expected: "180f"},
		{name: "SIG base UUID with braces", input: "{00002a19-0000-1000-8000-00805F9B34FB}", expected: "2a19"},
		{name: "vendor UUID keeps all 128 bits", input: "00001234-b38d-4985-720e-0F993a68ee41", expected: "00001234b38d4985720e0f993a68ee41"},
		{name: "surrounding whitespace", input: "  2902 ", expected: "2902"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	assert.Equal(t, []string{"180f", "2a19"}, NormalizeUUIDs([]string{"0x180F", "00002a19-0000-1000-8000-00805f9b34fb"}))
	assert.Empty(t, NormalizeUUIDs(nil))
}

func TestLookups(t *testing.T) {
	tests := []struct {
		name     string
		lookup   func(string) string
		uuid     string
		expected string
	}{
		{name: "battery service", lookup: LookupService, uuid: "180f", expected: "Battery Service"},
		{name: "temperature service, mixed case", lookup: LookupService, uuid: "00002234-B38D-4985-720E-0F993A68EE41", expected: "Temperature Service"},
		{name: "logging service", lookup: LookupService, uuid: "0000f234-b38d-4985-720e-0f993a68ee41", expected: "Logging Service"},
		{name: "battery level", lookup: LookupCharacteristic, uuid: "00002a19-0000-1000-8000-00805f9b34fb", expected: "Battery Level"},
		{name: "logger interval", lookup: LookupCharacteristic, uuid: "0000f239-b38d-4985-720e-0f993a68ee41", expected: "Logger Interval Ms"},
		{name: "cccd", lookup: LookupDescriptor, uuid: "0x2902", expected: "Client Characteristic Configuration"},
		{name: "unknown service", lookup: LookupService, uuid: "ffff", expected: ""},
		{name: "characteristic uuid is not a service", lookup: LookupService, uuid: "2a19", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.lookup(tt.uuid))
		})
	}
}
