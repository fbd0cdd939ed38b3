// Package device defines the transport boundary between the gadget protocol
// and a concrete BLE stack.
//
// Everything above this package talks in attribute handles and raw bytes:
//   - Transport reads and writes characteristic values and descriptors
//   - Discoverer resolves a service to its characteristics in handle order
//   - NotificationQueue buffers frames pushed by the stack until the single
//     per-device consumer drains them
//
// The go-ble backed implementation lives in the go-ble subpackage.
package device
