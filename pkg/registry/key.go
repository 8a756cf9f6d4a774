package registry

import (
	"encoding/hex"
	"net"
)

// PeerKey identifies a UDP peer by address family, address octets, and
// port. It copies the octets by value rather than retaining any pointer
// into a kernel-provided sockaddr buffer, per the registry's ownership
// invariant.
type PeerKey struct {
	Family byte    // 4 or 6
	Addr   [16]byte
	Port   uint16
}

// KeyFromUDPAddr builds a PeerKey from a resolved UDP address, copying its
// octets. IPv4 addresses are stored in the low 4 bytes of Addr with Family
// set to 4; IPv6 addresses use the full 16 bytes with Family set to 6.
func KeyFromUDPAddr(addr *net.UDPAddr) PeerKey {
	var k PeerKey
	k.Port = uint16(addr.Port)
	if v4 := addr.IP.To4(); v4 != nil {
		k.Family = 4
		copy(k.Addr[:4], v4)
		return k
	}
	k.Family = 6
	copy(k.Addr[:], addr.IP.To16())
	return k
}

// String renders a canonical, hash-stable key string suitable for use as a
// map key. Equality of the underlying struct implies equality of this
// string and vice versa.
func (k PeerKey) String() string {
	switch k.Family {
	case 4:
		return "4:" + hex.EncodeToString(k.Addr[:4]) + ":" + portHex(k.Port)
	default:
		return "6:" + hex.EncodeToString(k.Addr[:]) + ":" + portHex(k.Port)
	}
}

func portHex(p uint16) string {
	b := [2]byte{byte(p >> 8), byte(p)}
	return hex.EncodeToString(b[:])
}
