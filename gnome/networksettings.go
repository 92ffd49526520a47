package gnome

import (
	"fmt"
	"net"
)

// Nat classifies the NAT behavior observed for this gnome's public
// endpoint, as reported by the (out-of-scope) networking substrate.
type Nat uint8

const (
	NatUnknown Nat = iota
	NatNone
	NatFullCone
	NatAddressRestrictedCone
	NatPortRestrictedCone
	NatSymmetricWithPortControl
	NatSymmetric
)

func (n Nat) String() string {
	switch n {
	case NatNone:
		return "None"
	case NatFullCone:
		return "FullCone"
	case NatAddressRestrictedCone:
		return "AddressRestrictedCone"
	case NatPortRestrictedCone:
		return "PortRestrictedCone"
	case NatSymmetricWithPortControl:
		return "SymmetricWithPortControl"
	case NatSymmetric:
		return "Symmetric"
	default:
		return "Unknown"
	}
}

// NetworkSettings carries enough of this gnome's public endpoint for a
// forwarded-connect handshake to succeed: public IP, port, observed NAT
// kind, and the range of ports seen in use (widened, never just
// overwritten, on merge).
type NetworkSettings struct {
	PublicIP  net.IP
	PublicPort uint16
	NatKind    Nat
	PortMin    uint16
	PortMax    uint16
}

// DefaultNetworkSettings matches the source's Default impl: an
// unspecified IP, port 1026, unknown NAT, and a range collapsed to
// (MaxUint16, 1026) so the first real observation always widens it.
func DefaultNetworkSettings() NetworkSettings {
	return NetworkSettings{
		PublicIP:   net.IPv4zero,
		PublicPort: 1026,
		NatKind:    NatUnknown,
		PortMin:    65535,
		PortMax:    1026,
	}
}

// Update replaces the IP/port/NAT fields with other's and widens the port
// range to cover both settings' ranges — the NetworkSettings merge law
// from spec.md §8: m.port_range = (min(a.min,b.min), max(a.max,b.max)).
func (s *NetworkSettings) Update(other NetworkSettings) {
	s.PublicIP = other.PublicIP
	s.PublicPort = other.PublicPort
	s.NatKind = other.NatKind
	s.PortMin = minU16(s.PortMin, other.PortMin)
	s.PortMax = maxU16(s.PortMax, other.PortMax)
}

// SetPorts overwrites the observed port range outright (used when a
// scan/probe establishes it directly rather than by merging a peer's
// settings).
func (s *NetworkSettings) SetPorts(min, max uint16) {
	s.PortMin = min
	s.PortMax = max
}

// SetPort records a single observed port, widening the range if it falls
// outside the currently known bounds — original_source/src/gnome.rs
// `NetworkSettings::set_port`, supplemented per SPEC_FULL.md §5.
func (s *NetworkSettings) SetPort(port uint16) {
	if port < s.PortMin {
		s.PortMin = port
	} else if port > s.PortMax {
		s.PortMax = port
	}
	s.PublicPort = port
}

func minU16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

func maxU16(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}

func (s NetworkSettings) String() string {
	return fmt.Sprintf("%s:%d[%s,%d-%d]", s.PublicIP, s.PublicPort, s.NatKind, s.PortMin, s.PortMax)
}

// NetworkSettingsEvent is emitted on a Gnome's outbound network-settings
// channel (spec.md §6) whenever a connect decision is made: Own is this
// gnome's settings, and Peer holds the counterpart's settings once a
// forwarded-connect handshake has produced one, giving the out-of-scope
// transport enough to attempt a direct path.
type NetworkSettingsEvent struct {
	Own  NetworkSettings
	Peer *NetworkSettings
}

func (e NetworkSettingsEvent) String() string {
	if e.Peer == nil {
		return fmt.Sprintf("SettingsEvent{own:%s}", e.Own)
	}
	return fmt.Sprintf("SettingsEvent{own:%s,peer:%s}", e.Own, *e.Peer)
}
