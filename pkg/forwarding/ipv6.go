package forwarding

import (
	"net"

	"github.com/google/gopacket/layers"

	"github.com/meridian-sdn/meridian/pkg/l3"
	"github.com/meridian-sdn/meridian/pkg/logging"
	"github.com/meridian-sdn/meridian/pkg/responder"
	"github.com/meridian-sdn/meridian/pkg/topology"
)

// handleICMPv6 implements spec.md §4.4's ICMPv6/ND responder. Returns true
// if the packet was fully handled (no further routing needed) — note that
// a match on local_ipv6 does NOT short-circuit: ND traffic addressed to
// the speaker's own address may still warrant a synthesized reply.
func (e *Engine) handleICMPv6(sw *topology.Switch, inPort uint16, frame *l3.Frame) bool {
	port, hasPort := sw.Port(inPort)

	if frame.ICMPv6 == nil {
		return false
	}

	if e.bgp != nil && e.bgp.LocalIPv6 != nil && e.bgp.LocalIPv6.Equal(frame.IPv6.DstIP) {
		if e.tap != nil {
			if err := e.tap.WriteToTAP(frame.Packet.Data(), true); err != nil {
				logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: tap mirror of icmpv6-to-speaker failed")
			}
		}
		// Continue: ND traffic may still need a synthesized reply below.
	}

	if !hasPort || port.Gateway == nil {
		return false
	}

	switch frame.ICMPv6.TypeCode.Type() {
	case layers.ICMPv6TypeNeighborSolicitation:
		ns := &layers.ICMPv6NeighborSolicitation{}
		if err := ns.DecodeFromBytes(frame.ICMPv6.LayerPayload(), gopacketNilFeedback{}); err != nil {
			return false
		}
		if !port.Gateway.IsSelf(ns.TargetAddress, 6) {
			return false
		}
		reply, err := responder.NeighborAdvertisement(frame, port.HWAddr, port.Gateway.GWIPv6)
		if err != nil {
			logging.WithSwitch(sw.DPID).WithField("error", err).Debug("forwarding: building neighbor advertisement")
			return false
		}
		e.emitSynthesized(sw, inPort, reply)
		return true

	case layers.ICMPv6TypeNeighborAdvertisement:
		na := &layers.ICMPv6NeighborAdvertisement{}
		if err := na.DecodeFromBytes(frame.ICMPv6.LayerPayload(), gopacketNilFeedback{}); err != nil {
			return false
		}
		if !port.Gateway.IsSelf(frame.IPv6.SrcIP, 6) {
			return false
		}
		e.learnAndDrain(sw, frame.IPv6.SrcIP, srcLinkLayerMAC(na), 6)
		return true

	case layers.ICMPv6TypeEchoRequest:
		if !sw.OwnsGatewayAddress(frame.IPv6.DstIP, 6) {
			return false
		}
		reply, err := responder.ICMPv6EchoReply(frame, port.HWAddr, frame.IPv6.DstIP)
		if err != nil {
			logging.WithSwitch(sw.DPID).WithField("error", err).Debug("forwarding: building icmpv6 echo reply")
			return false
		}
		e.emitSynthesized(sw, inPort, reply)
		return true
	}

	return false
}

// srcLinkLayerMAC extracts the Target/Source Link-Layer Address option
// carried by a Neighbor Advertisement.
func srcLinkLayerMAC(na *layers.ICMPv6NeighborAdvertisement) net.HardwareAddr {
	for _, opt := range na.Options {
		if opt.Type == layers.ICMPv6OptTargetAddress || opt.Type == layers.ICMPv6OptSourceAddress {
			return net.HardwareAddr(opt.Data)
		}
	}
	return nil
}

// gopacketNilFeedback is a no-op gopacket.DecodeFeedback for decoding
// option sub-layers outside the main Decode pipeline.
type gopacketNilFeedback struct{}

func (gopacketNilFeedback) SetTruncated() {}
