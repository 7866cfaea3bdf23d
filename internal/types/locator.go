package types

import (
	"fmt"
	"net"
)

// LocatorKind enumerates the transport kinds a Locator can address.
type LocatorKind int32

const (
	LocatorKindInvalid LocatorKind = -1
	LocatorKindReserved LocatorKind = 0
	LocatorKindUDPv4    LocatorKind = 1
	LocatorKindUDPv6    LocatorKind = 2
)

// Locator is an addressable transport endpoint: kind, port, 16-byte address.
// For UDPv4 the address occupies the last four bytes of the 16-byte field.
type Locator struct {
	Kind    LocatorKind
	Port    uint32
	Address [16]byte
}

// LocatorInvalid is the RTPS sentinel for "no locator".
var LocatorInvalid = Locator{Kind: LocatorKindInvalid, Port: 0}

func NewLocatorUDPv4(ip net.IP, port uint32) Locator {
	var l Locator
	l.Kind = LocatorKindUDPv4
	l.Port = port
	ip4 := ip.To4()
	if ip4 != nil {
		copy(l.Address[12:16], ip4)
	}
	return l
}

func (l Locator) IsInvalid() bool {
	return l.Kind == LocatorKindInvalid
}

func (l Locator) IP() net.IP {
	if l.Kind == LocatorKindUDPv4 {
		return net.IPv4(l.Address[12], l.Address[13], l.Address[14], l.Address[15])
	}
	return net.IP(l.Address[:])
}

func (l Locator) String() string {
	if l.IsInvalid() {
		return "LOCATOR_INVALID"
	}
	return fmt.Sprintf("%s:%d", l.IP(), l.Port)
}

func (l Locator) Equal(other Locator) bool {
	return l.Kind == other.Kind && l.Port == other.Port && l.Address == other.Address
}

// DedupLocators returns a copy of locators with duplicates removed,
// preserving first-seen order. Locator lists are ordered but deduplicated
// on use, per spec.
func DedupLocators(locators []Locator) []Locator {
	out := make([]Locator, 0, len(locators))
	for _, l := range locators {
		dup := false
		for _, seen := range out {
			if seen.Equal(l) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, l)
		}
	}
	return out
}
