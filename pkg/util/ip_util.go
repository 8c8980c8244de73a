package util

import (
	"net"
	"strings"

	"github.com/vishvananda/netlink"

	"Netshape/pkg/tcerr"
)

// CheckAddress validates an interface address such as 10.0.0.1/24 or
// fd00::1/64. A bare address is read as a host route.
func CheckAddress(addr string) (*netlink.Addr, error) {
	s := strings.TrimSpace(addr)
	if !strings.Contains(s, "/") {
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, tcerr.Invalid("address", addr, "expected an IPv4 or IPv6 address")
		}
		if ip.To4() != nil {
			s += "/32"
		} else {
			s += "/128"
		}
	}
	a, err := netlink.ParseAddr(s)
	if err != nil {
		return nil, tcerr.Invalid("address", addr, "expected <ip>/<prefix>")
	}
	return a, nil
}
