package topology

import (
	"net"

	"github.com/meridian-sdn/meridian/pkg/openflow"
)

// Port is identified by (dpid, port_no). Mirrors spec.md §3: hardware
// address, link cost, optional peer endpoint (set when the port
// participates in an inter-switch link), and an optional Gateway.
type Port struct {
	Number   uint16
	HWAddr   net.HardwareAddr
	Name     string // non-empty only for the OFPP_LOCAL port
	Cost     int
	Gateway  *Gateway
	HasPeer  bool
	PeerDPID uint64
	PeerPort uint16
}

// IsLocal reports whether this is the OFPP_LOCAL port (switch name, no
// link cost).
func (p *Port) IsLocal() bool {
	return p.Number == openflow.PortLocal
}

func newPortFromFeatures(of openflow.Port) *Port {
	p := &Port{
		Number: of.Number,
		HWAddr: of.HWAddr,
		Name:   of.Name,
	}
	if of.Number == openflow.PortLocal {
		p.Cost = 0
	} else {
		p.Cost = openflow.PortCost(of.Features)
	}
	return p
}
