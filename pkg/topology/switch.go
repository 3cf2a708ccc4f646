package topology

import (
	"net"

	"github.com/meridian-sdn/meridian/pkg/openflow"
)

// deferredPacketCap bounds msg_buffer per switch (spec.md §4.1's open
// question: resolved as a 64-entry FIFO with oldest-eviction).
const deferredPacketCap = 64

// DeferredPacket is a packet-in parked awaiting neighbor resolution (ARP/ND
// in flight) before forwarding can be completed.
type DeferredPacket struct {
	PacketIn openflow.PacketIn
	OutPort  uint16
	Family   int
}

// Switch is one connected OpenFlow switch: its live connection, its ports
// keyed by port number, and a bounded queue of packets deferred pending
// neighbor resolution.
type Switch struct {
	DPID uint64
	Conn openflow.Connection
	Name string

	Ports map[uint16]*Port

	// peerToLocalPort maps a neighbor dpid to the local port number facing
	// it, populated from LinkAdd/LinkDelete.
	peerToLocalPort map[uint64]uint16

	msgBuffer []*DeferredPacket
}

func newSwitch(dpid uint64, conn openflow.Connection) *Switch {
	return &Switch{
		DPID:            dpid,
		Conn:            conn,
		Ports:           make(map[uint16]*Port),
		peerToLocalPort: make(map[uint64]uint16),
	}
}

// Port looks up a port by number.
func (s *Switch) Port(number uint16) (*Port, bool) {
	p, ok := s.Ports[number]
	return p, ok
}

// PortToward returns the local port facing the given neighbor dpid, if a
// link to it has been discovered.
func (s *Switch) PortToward(peerDPID uint64) (uint16, bool) {
	p, ok := s.peerToLocalPort[peerDPID]
	return p, ok
}

// Defer appends a packet to this switch's msg_buffer, evicting the oldest
// entry first if the buffer is already at capacity.
func (s *Switch) Defer(dp *DeferredPacket) (evicted bool) {
	if len(s.msgBuffer) >= deferredPacketCap {
		s.msgBuffer = s.msgBuffer[1:]
		evicted = true
	}
	s.msgBuffer = append(s.msgBuffer, dp)
	return evicted
}

// DrainDeferred removes and returns every currently-buffered packet, for
// the caller to retry after a neighbor resolution completes.
func (s *Switch) DrainDeferred() []*DeferredPacket {
	drained := s.msgBuffer
	s.msgBuffer = nil
	return drained
}

// OwnsGatewayAddress reports whether ip is exactly the gateway address of
// any port on this switch (not merely within one of their subnets), per
// spec.md §4.4's ICMP echo responder: "destination is a gateway IP on
// this switch", as opposed to ARP/ND's narrower "the ingress port's
// gateway IP".
func (s *Switch) OwnsGatewayAddress(ip net.IP, family int) bool {
	for _, p := range s.Ports {
		if p.Gateway.IsSelf(ip, family) {
			return true
		}
	}
	return false
}
