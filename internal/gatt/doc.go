// Package gatt turns raw handle-addressed GATT attributes into typed values.
//
// A Characteristic knows its wire format and reads its human description
// once when bound to a transport. A Subscribable additionally drives the
// client characteristic configuration descriptor and fans decoded
// notifications out to registered listeners.
package gatt
