// Package flowkey identifies one direction of a TCP flow by its endpoints.
package flowkey

import "fmt"

// Key identifies a unidirectional TCP flow by its four-tuple.
// this structure has an optimized field order to avoid excessive padding.
type Key struct {
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
}

// Reverse returns the key for the opposite direction of the same flow.
func (k Key) Reverse() Key {
	return Key{
		SrcIP:   k.DstIP,
		DstIP:   k.SrcIP,
		SrcPort: k.DstPort,
		DstPort: k.SrcPort,
	}
}

// String renders the key as "src:port->dst:port".
func (k Key) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", k.SrcIP, k.SrcPort, k.DstIP, k.DstPort)
}
