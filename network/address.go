package network

import (
	"fmt"
	"net/netip"
	"net/url"
)

// Loopback is the IP every simulated endpoint lives on. Ports are logical
// identifiers, nothing is bound.
var Loopback = netip.AddrFrom4([4]byte{127, 0, 0, 1})

// PeerAddress identifies a simulated endpoint. It is comparable and can be
// used as a map key.
type PeerAddress struct {
	ap netip.AddrPort
}

// NewPeerAddress creates a PeerAddress from an IP and port.
func NewPeerAddress(ip netip.Addr, port uint16) PeerAddress {
	return PeerAddress{ap: netip.AddrPortFrom(ip, port)}
}

// LocalAddress returns the loopback address for the given logical port.
func LocalAddress(port uint16) PeerAddress {
	return NewPeerAddress(Loopback, port)
}

// Unspecified is the placeholder origin used when a request is injected
// directly by a client rather than forwarded by a fabric.
func Unspecified() PeerAddress {
	return NewPeerAddress(netip.IPv4Unspecified(), 0)
}

// ParsePeerAddress parses an "ip:port" string.
func ParsePeerAddress(s string) (PeerAddress, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return PeerAddress{}, fmt.Errorf("invalid peer address %q: %w", s, err)
	}
	return PeerAddress{ap: ap}, nil
}

// AddressFromTarget recovers the destination address from the authority
// component of a request target.
func AddressFromTarget(u *url.URL) (PeerAddress, error) {
	if u == nil || u.Host == "" {
		return PeerAddress{}, fmt.Errorf("target has no authority")
	}
	return ParsePeerAddress(u.Host)
}

// IP returns the address IP.
func (a PeerAddress) IP() netip.Addr { return a.ap.Addr() }

// Port returns the logical port.
func (a PeerAddress) Port() uint16 { return a.ap.Port() }

// IsValid reports whether the address was initialized.
func (a PeerAddress) IsValid() bool { return a.ap.IsValid() }

func (a PeerAddress) String() string { return a.ap.String() }

// URL builds the request target for path on this address.
func (a PeerAddress) URL(path, query string) string {
	if query == "" {
		return fmt.Sprintf("http://%s/%s", a.ap, path)
	}
	return fmt.Sprintf("http://%s/%s?%s", a.ap, path, query)
}

// MarshalText encodes the address as "ip:port".
func (a PeerAddress) MarshalText() ([]byte, error) {
	return []byte(a.ap.String()), nil
}

// UnmarshalText decodes an "ip:port" string.
func (a *PeerAddress) UnmarshalText(b []byte) error {
	parsed, err := ParsePeerAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Compare orders addresses by IP then port.
func (a PeerAddress) Compare(b PeerAddress) int {
	return a.ap.Compare(b.ap)
}
