package forwarding

import (
	"context"
	"net"

	"github.com/google/gopacket/layers"

	"github.com/meridian-sdn/meridian/pkg/l3"
	"github.com/meridian-sdn/meridian/pkg/logging"
	"github.com/meridian-sdn/meridian/pkg/openflow"
	"github.com/meridian-sdn/meridian/pkg/resolver"
	"github.com/meridian-sdn/meridian/pkg/responder"
	"github.com/meridian-sdn/meridian/pkg/topology"
)

// programPath installs a MODIFY flow on every switch but the last in path,
// matching dst exactly and rewriting MACs to the next hop's peering port,
// per spec.md §4.5 "Path programming".
func (e *Engine) programPath(path []uint64, dst net.IP, family int) {
	for i := 0; i < len(path)-1; i++ {
		hopSw, ok := e.store.Switch(path[i])
		if !ok {
			return
		}
		nextSw, ok := e.store.Switch(path[i+1])
		if !ok {
			return
		}
		outPortNo, ok := hopSw.PortToward(nextSw.DPID)
		if !ok {
			return
		}
		outPort, ok := hopSw.Port(outPortNo)
		if !ok {
			return
		}
		peerPortNo, ok := nextSw.PortToward(hopSw.DPID)
		if !ok {
			return
		}
		peerPort, ok := nextSw.Port(peerPortNo)
		if !ok {
			return
		}

		if err := e.installFlow(hopSw, outPortNo, outPort.HWAddr, peerPort.HWAddr, dst, family); err != nil {
			logging.WithSwitch(hopSw.DPID).WithField("error", err).Warn("forwarding: installing path flow")
			return
		}
	}
}

// emitAlongPath sends the triggering packet's PacketOut from the first
// switch in path, using the same actions as its installed transit flow.
func (e *Engine) emitAlongPath(ingressSw *topology.Switch, path []uint64, dst net.IP, family int) {
	if len(path) < 2 {
		return
	}
	nextSw, ok := e.store.Switch(path[1])
	if !ok {
		return
	}
	outPortNo, ok := ingressSw.PortToward(nextSw.DPID)
	if !ok {
		return
	}
	outPort, ok := ingressSw.Port(outPortNo)
	if !ok {
		return
	}
	peerPortNo, ok := nextSw.PortToward(ingressSw.DPID)
	if !ok {
		return
	}
	peerPort, ok := nextSw.Port(peerPortNo)
	if !ok {
		return
	}
	e.emitRoutedPacketOut(ingressSw, outPortNo, outPort.HWAddr, peerPort.HWAddr)
}

// lastHop implements spec.md §4.5 "Last-hop": resolve dst's MAC via the
// neighbor cache and install a terminal flow, or synthesize a resolution
// request and defer the packet.
func (e *Engine) lastHop(ctx context.Context, sw *topology.Switch, msg openflow.PacketIn, outPortNo uint16, dst net.IP, family int) {
	outPort, ok := sw.Port(outPortNo)
	if !ok {
		e.drop(sw, msg)
		return
	}

	if e.neigh != nil {
		entry, found, err := e.neigh.Get(ctx, sw.DPID, dst)
		if err == nil && found {
			if err := e.installFlow(sw, outPortNo, outPort.HWAddr, entry.MAC, dst, family); err != nil {
				logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: installing last-hop flow")
			}
			e.emitRoutedPacketOut(sw, outPortNo, outPort.HWAddr, entry.MAC)
			return
		}
	}

	e.synthesizeResolutionRequest(sw, outPortNo, outPort.HWAddr, dst, family)
	sw.Defer(&topology.DeferredPacket{PacketIn: msg, OutPort: outPortNo, Family: family})
}

// synthesizeResolutionRequest emits an ARP request (IPv4) or ICMPv6
// Neighbor Solicitation (IPv6) out outPortNo asking for dst's MAC.
func (e *Engine) synthesizeResolutionRequest(sw *topology.Switch, outPortNo uint16, srcMAC net.HardwareAddr, dst net.IP, family int) {
	gatewayIP := gatewaySourceIP(sw, outPortNo, family)

	var frame []byte
	var err error
	if family == 4 {
		frame, err = responder.ARPRequestFor(srcMAC, gatewayIP, dst)
	} else {
		frame, err = responder.NeighborSolicitationFor(srcMAC, gatewayIP, dst)
	}
	if err != nil {
		logging.WithSwitch(sw.DPID).WithField("error", err).Debug("forwarding: synthesizing resolution request")
		return
	}
	e.emitSynthesized(sw, outPortNo, frame)
}

func gatewaySourceIP(sw *topology.Switch, portNo uint16, family int) net.IP {
	port, ok := sw.Port(portNo)
	if !ok || port.Gateway == nil {
		return nil
	}
	if family == 4 {
		return port.Gateway.GWIPv4
	}
	return port.Gateway.GWIPv6
}

// learnAndDrain installs a neighbor cache entry and retries every deferred
// packet on sw, per spec.md §4.5 "Draining deferred packets": entries
// whose destination now resolves are replayed through the last-hop
// routine and removed; the rest keep their relative order.
func (e *Engine) learnAndDrain(sw *topology.Switch, ip net.IP, mac net.HardwareAddr, family int) {
	if mac == nil {
		return
	}
	ctx := context.Background()
	if e.neigh != nil {
		if err := e.neigh.Set(ctx, sw.DPID, ip, mac); err != nil {
			logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: installing neighbor cache entry")
			return
		}
	}

	deferred := sw.DrainDeferred()
	for _, dp := range deferred {
		if dp.Family != family {
			sw.Defer(dp)
			continue
		}
		frame, err := l3.Decode(dp.PacketIn.Data)
		if err != nil {
			continue
		}
		depDst := deferredDestination(frame, dp.Family)
		if depDst == nil || !depDst.Equal(ip) {
			sw.Defer(dp)
			continue
		}
		e.lastHop(ctx, sw, dp.PacketIn, dp.OutPort, depDst, dp.Family)
	}
}

// deferredDestination extracts the IP a deferred packet's last-hop routine
// was waiting to resolve.
func deferredDestination(frame *l3.Frame, family int) net.IP {
	switch {
	case family == 4 && frame.IPv4 != nil:
		return frame.IPv4.DstIP
	case family == 6 && frame.IPv6 != nil:
		return frame.IPv6.DstIP
	default:
		return nil
	}
}

// installFlow builds and sends the MODIFY flow-mod shared by path
// programming, last-hop, and border egress: match dst exactly for the
// given family, rewrite source/destination MAC, and output on outPortNo.
func (e *Engine) installFlow(sw *topology.Switch, outPortNo uint16, srcMAC, dstMAC net.HardwareAddr, dst net.IP, family int) error {
	if sw.Conn == nil {
		return nil
	}
	factory := sw.Conn.Factory()

	var match openflow.Match
	if family == 4 {
		m, err := factory.NewMatch()
		if err != nil {
			return err
		}
		m.SetEtherType(uint16(layers.EthernetTypeIPv4))
		m.SetDstIP(&net.IPNet{IP: dst.To4(), Mask: net.CIDRMask(32, 32)})
		match = m
	} else {
		m, err := factory.NewNXMatch()
		if err != nil {
			return err
		}
		m.SetEtherType(uint16(layers.EthernetTypeIPv6))
		m.SetIPv6Dst(dst)
		match = m
	}

	action, err := factory.NewAction()
	if err != nil {
		return err
	}
	action.SetSrcMAC(srcMAC)
	action.SetDstMAC(dstMAC)
	action.SetOutput(outPortNo, openflow.MaxLenNoBuffer)

	instruction, err := factory.NewInstruction()
	if err != nil {
		return err
	}
	instruction.ApplyAction(action)

	fm, err := factory.NewFlowMod(openflow.FlowModify)
	if err != nil {
		return err
	}
	fm.SetPriority(1)
	fm.SetIdleTimeout(pathIdleTimeout)
	fm.SetHardTimeout(pathHardTimeout)
	fm.SetMatch(match)
	fm.SetInstruction(instruction)

	return sw.Conn.SendFlowMod(fm)
}

// emitRoutedPacketOut emits the triggering packet via a single action that
// sets both MACs and the output port, the PacketOut counterpart to
// installFlow.
func (e *Engine) emitRoutedPacketOut(sw *topology.Switch, outPortNo uint16, srcMAC, dstMAC net.HardwareAddr) {
	if sw.Conn == nil {
		return
	}
	factory := sw.Conn.Factory()
	po, err := factory.NewPacketOut()
	if err != nil {
		logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: building routed packet-out")
		return
	}
	po.SetInPort(openflow.PortNone)
	po.SetBufferID(openflow.BufferIDNone)

	action, err := factory.NewAction()
	if err != nil {
		logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: building routed packet-out action")
		return
	}
	action.SetSrcMAC(srcMAC)
	action.SetDstMAC(dstMAC)
	action.SetOutput(outPortNo, openflow.MaxLenNoBuffer)
	po.AddAction(action)

	if err := sw.Conn.SendPacketOut(po); err != nil {
		logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: sending routed packet-out")
	}
}

// externalResolve implements spec.md §4.5 step 6: consult the external
// resolver, then hand off to the border-egress routine.
func (e *Engine) externalResolve(ctx context.Context, sw *topology.Switch, msg openflow.PacketIn, dst net.IP, family int) {
	if e.resolve == nil {
		e.drop(sw, msg)
		return
	}
	reply, err := e.resolve.Request(ctx, dst, family)
	if err != nil || !reply.Resolved() {
		if err != nil {
			logging.WithSwitch(sw.DPID).WithField("error", err).Debug("forwarding: external resolver request failed")
		}
		e.drop(sw, msg)
		return
	}

	dstSwitch, ok := e.resolveReplySwitch(reply)
	if !ok {
		e.drop(sw, msg)
		return
	}

	e.borderEgress(ctx, sw, msg, dstSwitch, reply.OutportNo, dst, family)
}

// resolveReplySwitch maps a resolver Reply (by dpid or by switch name) to
// a currently-connected Switch.
func (e *Engine) resolveReplySwitch(reply resolver.Reply) (*topology.Switch, bool) {
	if reply.HasDPID {
		return e.store.Switch(reply.DPID)
	}
	return e.store.ResolveSwitchByName(reply.SwitchName)
}

// borderEgress implements spec.md §4.5 "Border egress".
func (e *Engine) borderEgress(ctx context.Context, ingressSw *topology.Switch, msg openflow.PacketIn, dstSwitch *topology.Switch, outportNo uint16, dst net.IP, family int) {
	outPort, ok := dstSwitch.Port(outportNo)
	if !ok {
		e.drop(ingressSw, msg)
		return
	}

	var cachedMAC net.HardwareAddr
	if e.neigh != nil {
		entry, found, err := e.neigh.Get(ctx, dstSwitch.DPID, dst)
		if err != nil || !found {
			e.drop(ingressSw, msg)
			return
		}
		cachedMAC = entry.MAC
	}

	if ingressSw.DPID != dstSwitch.DPID {
		path, ok := e.router.FindRoute(ingressSw.DPID, dstSwitch.DPID)
		if !ok {
			e.drop(ingressSw, msg)
			return
		}
		e.programPath(path, dst, family)
		e.emitAlongPath(ingressSw, path, dst, family)
	}

	if err := e.installFlow(dstSwitch, outportNo, outPort.HWAddr, cachedMAC, dst, family); err != nil {
		logging.WithSwitch(dstSwitch.DPID).WithField("error", err).Warn("forwarding: installing border egress flow")
	}

	// Always emit the in-flight packet on the ingress switch, regardless of
	// whether the ingress and destination switches differ — the original's
	// border_switch_out unconditionally calls initial_dp.send_msg(out).
	e.emitRoutedPacketOut(ingressSw, outportNo, outPort.HWAddr, cachedMAC)
}
