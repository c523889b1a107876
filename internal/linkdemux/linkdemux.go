// Package linkdemux strips the link-layer header from a captured frame and
// yields the IPv4 payload, if any.
package linkdemux

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"
)

// LinkType is the subset of pcap link types this device recognizes.
type LinkType int

const (
	Ethernet LinkType = iota
	Null              // BSD loopback (DLT_NULL)
	LinuxSLL          // Linux cooked capture
)

// FromGopacket maps a gopacket layers.LinkType to our narrower LinkType.
// Returns ok=false for anything this device doesn't support — fatal for
// the capture source per spec §4.1.
func FromGopacket(lt layers.LinkType) (LinkType, bool) {
	switch lt {
	case layers.LinkTypeEthernet:
		return Ethernet, true
	case layers.LinkTypeNull:
		return Null, true
	case layers.LinkTypeLinuxSLL:
		return LinuxSLL, true
	default:
		return 0, false
	}
}

const etherTypeIPv4 = 0x0800

// Demux extracts the IPv4 payload from a raw link-layer frame. ok is false
// when the frame is not IPv4 and should be silently dropped.
func Demux(lt LinkType, frame []byte) (payload []byte, ok bool) {
	switch lt {
	case Ethernet:
		if len(frame) < 14 {
			return nil, false
		}

		if binary.BigEndian.Uint16(frame[12:14]) != etherTypeIPv4 {
			return nil, false
		}

		return frame[14:], true

	case Null:
		if len(frame) < 4 {
			return nil, false
		}

		if binary.LittleEndian.Uint32(frame[0:4]) != 2 {
			return nil, false
		}

		return frame[4:], true

	case LinuxSLL:
		if len(frame) < 16 {
			return nil, false
		}

		if binary.BigEndian.Uint16(frame[14:16]) != etherTypeIPv4 {
			return nil, false
		}

		return frame[16:], true

	default:
		return nil, false
	}
}
