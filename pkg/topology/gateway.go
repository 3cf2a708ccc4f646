package topology

import "net"

// Gateway binds a port to one IPv4 and one IPv6 subnet, making the port act
// as the default router for hosts on those subnets. Per spec.md §3.
type Gateway struct {
	GWIPv4    net.IP
	GWIPv4Net *net.IPNet
	GWIPv6    net.IP
	GWIPv6Net *net.IPNet
}

// Contains reports whether ip belongs to this gateway's subnet for the
// given family (4 or 6), or equals the gateway address itself.
func (g *Gateway) Contains(ip net.IP, family int) bool {
	if g == nil {
		return false
	}
	switch family {
	case 4:
		if g.GWIPv4 == nil {
			return false
		}
		if g.GWIPv4.Equal(ip) {
			return true
		}
		return g.GWIPv4Net != nil && g.GWIPv4Net.Contains(ip)
	case 6:
		if g.GWIPv6 == nil {
			return false
		}
		if g.GWIPv6.Equal(ip) {
			return true
		}
		return g.GWIPv6Net != nil && g.GWIPv6Net.Contains(ip)
	default:
		return false
	}
}

// IsSelf reports whether ip is exactly this gateway's own address (as
// opposed to merely belonging to its subnet) for the given family.
func (g *Gateway) IsSelf(ip net.IP, family int) bool {
	if g == nil {
		return false
	}
	switch family {
	case 4:
		return g.GWIPv4 != nil && g.GWIPv4.Equal(ip)
	case 6:
		return g.GWIPv6 != nil && g.GWIPv6.Equal(ip)
	default:
		return false
	}
}
