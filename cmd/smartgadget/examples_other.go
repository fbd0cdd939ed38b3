//go:build !darwin

package main

const (
	exampleDeviceAddress = "C4:7C:8D:6A:3E:21"
	deviceAddressNote    = "Device address format: MAC address, e.g. C4:7C:8D:6A:3E:21\n  Use 'smartgadget scan' to discover gadgets"
)
