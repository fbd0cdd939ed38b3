// Package bledb names the GATT attributes a Smart Humigadget exposes.
//
// The table is intentionally narrow: Bluetooth SIG attributes the gadget
// carries plus the Sensirion vendor services. Lookups accept any UUID spelling
// NormalizeUUID understands.
package bledb

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

var services = map[string]string{
	"1800":                             "Generic Access",
	"1801":                             "Generic Attribute",
	"180a":                             "Device Information",
	"180f":                             "Battery Service",
	"00002234b38d4985720e0f993a68ee41": "Temperature Service",
	"00001234b38d4985720e0f993a68ee41": "Humidity Service",
	"0000f234b38d4985720e0f993a68ee41": "Logging Service",
}

var characteristics = map[string]string{
	"2a00":                             "Device Name",
	"2a01":                             "Appearance",
	"2a19":                             "Battery Level",
	"2a24":                             "Model Number String",
	"2a25":                             "Serial Number String",
	"2a26":                             "Firmware Revision String",
	"2a29":                             "Manufacturer Name String",
	"00002235b38d4985720e0f993a68ee41": "Temperature",
	"00001235b38d4985720e0f993a68ee41": "Relative Humidity",
	"0000f235b38d4985720e0f993a68ee41": "Sync Time Ms",
	"0000f236b38d4985720e0f993a68ee41": "Oldest Timestamp Ms",
	"0000f237b38d4985720e0f993a68ee41": "Newest Timestamp Ms",
	"0000f238b38d4985720e0f993a68ee41": "Start Logger Download",
	"0000f239b38d4985720e0f993a68ee41": "Logger Interval Ms",
}

var descriptors = map[string]string{
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Descriptor",
	"2902": "Client Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
}

// NormalizeUUID converts a UUID string to lowercase hex without dashes,
// braces or a 0x prefix. SIG base UUIDs collapse to their 16-bit short form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.Trim(u, "{}")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes every entry of uuids.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		out = append(out, NormalizeUUID(u))
	}
	return out
}

// LookupService returns the well-known service name or "".
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the well-known characteristic name or "".
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the well-known descriptor name or "".
func LookupDescriptor(uuid string) string {
	return descriptors[NormalizeUUID(uuid)]
}
