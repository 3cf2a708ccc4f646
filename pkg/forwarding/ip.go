package forwarding

import (
	"context"
	"net"

	"github.com/meridian-sdn/meridian/pkg/logging"
	"github.com/meridian-sdn/meridian/pkg/merrors"
	"github.com/meridian-sdn/meridian/pkg/l3"
	"github.com/meridian-sdn/meridian/pkg/openflow"
	"github.com/meridian-sdn/meridian/pkg/responder"
	"github.com/meridian-sdn/meridian/pkg/topology"
)

// handleIP implements spec.md §4.5 steps 2-8: the IP path.
func (e *Engine) handleIP(ctx context.Context, sw *topology.Switch, msg openflow.PacketIn, frame *l3.Frame, family int) {
	srcIP, dstIP := ipAddresses(frame, family)
	srcMAC := net.HardwareAddr(frame.Eth.SrcMAC)

	// Step 2: refresh neighbor cache from source MAC/IP, then invoke the
	// family-appropriate ICMP responder.
	if e.neigh != nil && srcIP != nil {
		if err := e.neigh.Set(ctx, sw.DPID, srcIP, srcMAC); err != nil {
			logging.WithSwitch(sw.DPID).WithField("error", err).Debug("forwarding: refreshing neighbor cache")
		}
	}

	if family == 4 {
		if e.handleICMPv4(sw, msg.InPort, frame) {
			return
		}
	} else {
		if e.handleICMPv6(sw, msg.InPort, frame) {
			return
		}
	}

	// Step 3: BGP session traffic mirrors to TAP but still routes normally.
	if frame.TCP != nil && uint16(frame.TCP.DstPort) == bgpTCPPort {
		e.mirrorToTAP(sw, msg.Data)
	}

	// Step 4: traffic addressed to the local BGP speaker mirrors and stops.
	if e.addressedToLocalSpeaker(dstIP, family) {
		e.mirrorToTAP(sw, msg.Data)
		return
	}

	// Step 5: destination is a locally-gatewayed subnet, already addressed
	// by the ARP/ND path.
	gwSwitch, gwPort, found := e.store.FindGatewayFor(dstIP, family)
	if found && gwPort == openflow.PortLocal {
		return
	}

	// Step 6: no local gateway — the destination may be external.
	if !found {
		e.externalResolve(ctx, sw, msg, dstIP, family)
		return
	}

	// Step 7/8: route within the AS.
	if gwSwitch.DPID == sw.DPID {
		e.lastHop(ctx, sw, msg, gwPort, dstIP, family)
		return
	}

	path, ok := e.router.FindRoute(sw.DPID, gwSwitch.DPID)
	if !ok {
		logging.WithSwitch(sw.DPID).WithField("error", (&merrors.NoRouteError{Src: sw.DPID, Dst: gwSwitch.DPID}).Error()).Debug("forwarding: no route")
		e.drop(sw, msg)
		return
	}
	e.programPath(path, dstIP, family)
	e.emitAlongPath(sw, path, dstIP, family)
}

func ipAddresses(frame *l3.Frame, family int) (src, dst net.IP) {
	if family == 4 {
		return frame.IPv4.SrcIP, frame.IPv4.DstIP
	}
	return frame.IPv6.SrcIP, frame.IPv6.DstIP
}

// mirrorToTAP mirrors BGP session traffic and ICMP-to-speaker traffic to
// the TAP device, rewriting the destination MAC to the TAP's own address —
// this traffic arrives addressed to the controller's virtual router MAC,
// not the TAP interface, so the BGP speaker needs it rewritten to reach it.
func (e *Engine) mirrorToTAP(sw *topology.Switch, frame []byte) {
	if e.tap == nil {
		return
	}
	if err := e.tap.WriteToTAP(frame, true); err != nil {
		logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: tap mirror failed")
	}
}

func (e *Engine) addressedToLocalSpeaker(dst net.IP, family int) bool {
	if e.bgp == nil {
		return false
	}
	if family == 4 {
		return e.bgp.LocalIPv4 != nil && e.bgp.LocalIPv4.Equal(dst)
	}
	return e.bgp.LocalIPv6 != nil && e.bgp.LocalIPv6.Equal(dst)
}

// handleICMPv4 implements spec.md §4.4's ICMPv4 responder.
func (e *Engine) handleICMPv4(sw *topology.Switch, inPort uint16, frame *l3.Frame) bool {
	if frame.ICMPv4 == nil {
		return false
	}

	if e.addressedToLocalSpeaker(frame.IPv4.DstIP, 4) {
		e.mirrorToTAP(sw, frame.Packet.Data())
		return true
	}

	port, ok := sw.Port(inPort)
	if !ok || !sw.OwnsGatewayAddress(frame.IPv4.DstIP, 4) {
		return false
	}

	reply, err := responder.ICMPv4EchoReply(frame, port.HWAddr, frame.IPv4.DstIP)
	if err != nil {
		logging.WithSwitch(sw.DPID).WithField("error", err).Debug("forwarding: building icmpv4 echo reply")
		return false
	}
	e.emitSynthesized(sw, inPort, reply)
	return true
}
