package engine

import "fmt"

// PayloadTooLargeError is returned synchronously by SendReliable/SendUnreliable
// when payload+header would exceed the configured MTU (spec §7).
type PayloadTooLargeError struct {
	PayloadSize int
	MTU         int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("hudp: payload of %d bytes plus 8-byte header exceeds mtu %d", e.PayloadSize, e.MTU)
}
