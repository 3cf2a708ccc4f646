// Package forwarding is the packet-in classifier and path-programming
// core, spec.md §4.5: on every packet-in, respond locally, mirror to TAP,
// program a path, request external resolution, or drop — exactly one
// terminal outcome per packet, per spec.md's invariant 3. Grounded on the
// cherry controller's OnPacketIn classifier
// (other_examples/.../yebinMoon-cherry__cherryd-northbound-app-router-router.go.go):
// parse the frame, branch on whether it addresses the router itself, apply
// the matching responder, otherwise fall through to routing.
package forwarding

import (
	"context"
	"net"

	"github.com/google/gopacket/layers"

	"github.com/meridian-sdn/meridian/pkg/config"
	"github.com/meridian-sdn/meridian/pkg/l3"
	"github.com/meridian-sdn/meridian/pkg/logging"
	"github.com/meridian-sdn/meridian/pkg/merrors"
	"github.com/meridian-sdn/meridian/pkg/neighcache"
	"github.com/meridian-sdn/meridian/pkg/openflow"
	"github.com/meridian-sdn/meridian/pkg/resolver"
	"github.com/meridian-sdn/meridian/pkg/responder"
	"github.com/meridian-sdn/meridian/pkg/routing"
	"github.com/meridian-sdn/meridian/pkg/topology"
)

// bgpTCPPort is the well-known BGP port, matched for TAP mirroring of BGP
// sessions (spec.md §4.5 step 3).
const bgpTCPPort = 179

// pathIdleTimeout / pathHardTimeout are the flow-mod timeouts used for
// every installed forwarding flow, spec.md §4.5.
const (
	pathIdleTimeout = 60
	pathHardTimeout = 600
)

// TapWriter mirrors traffic destined for the user-space BGP speaker.
type TapWriter interface {
	WriteToTAP(frame []byte, rewriteDstMAC bool) error
}

// Engine is the packet-in classifier and forwarding programmer.
type Engine struct {
	store   *topology.Store
	router  *routing.Router
	neigh   *neighcache.Cache
	resolve *resolver.Resolver
	bgp     *config.BGPConfig
	tap     TapWriter
}

// New constructs a forwarding Engine.
func New(store *topology.Store, router *routing.Router, neigh *neighcache.Cache, resolve *resolver.Resolver, bgp *config.BGPConfig, tap TapWriter) *Engine {
	return &Engine{store: store, router: router, neigh: neigh, resolve: resolve, bgp: bgp, tap: tap}
}

// SetTap attaches (or replaces) the TAP writer used to mirror BGP traffic,
// for callers that only know the TAP device's name after the engine's own
// store already exists (the TAP bridge's SwitchResolver is built from that
// same store).
func (e *Engine) SetTap(tap TapWriter) {
	e.tap = tap
}

// OnPacketIn is the forwarding engine's entry point, spec.md §4.5.
func (e *Engine) OnPacketIn(ctx context.Context, msg openflow.PacketIn) {
	sw, ok := e.store.Switch(msg.DPID)
	if !ok {
		logging.WithField("error", (&merrors.UnknownSwitchError{DPID: msg.DPID}).Error()).Debug("forwarding: packet-in for unknown switch")
		return
	}

	frame, err := l3.Decode(msg.Data)
	if err != nil {
		logging.WithSwitch(msg.DPID).WithField("error", err).Debug("forwarding: dropping malformed packet-in")
		return
	}

	switch {
	case frame.ARP != nil:
		e.handleARP(sw, msg, frame)
	case frame.IPv4 != nil:
		e.handleIP(ctx, sw, msg, frame, 4)
	case frame.IPv6 != nil:
		e.handleIP(ctx, sw, msg, frame, 6)
	default:
		logging.WithSwitch(msg.DPID).Debug("forwarding: dropping packet-in with no ARP/IPv4/IPv6 layer")
	}
}

// handleARP implements spec.md §4.4's ARP responder.
func (e *Engine) handleARP(sw *topology.Switch, msg openflow.PacketIn, frame *l3.Frame) {
	// Every ARP frame is mirrored to TAP unconditionally, unmodified — the
	// original's write_to_tap(pkt.data) call for ARP relies on its
	// modifyMacAddress=False default (routing.py's _handle_arp).
	if e.tap != nil {
		if err := e.tap.WriteToTAP(msg.Data, false); err != nil {
			logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: tap mirror of ARP frame failed")
		}
	}

	port, ok := sw.Port(msg.InPort)
	if !ok || port.Gateway == nil {
		return
	}

	switch frame.ARP.Operation {
	case layers.ARPRequest:
		target := net.IP(frame.ARP.DstProtAddress)
		if !port.Gateway.IsSelf(target, 4) {
			return
		}
		reply, err := responder.ARPReply(frame, port.HWAddr, port.Gateway.GWIPv4)
		if err != nil {
			logging.WithSwitch(sw.DPID).WithField("error", err).Debug("forwarding: building ARP reply")
			return
		}
		e.emitSynthesized(sw, msg.InPort, reply)

	case layers.ARPReply:
		source := net.IP(frame.ARP.SourceProtAddress)
		if !port.Gateway.IsSelf(source, 4) {
			return
		}
		e.learnAndDrain(sw, source, net.HardwareAddr(frame.ARP.SourceHwAddress), 4)
	}
}

// emitSynthesized sends a synthesized frame back out the given port via a
// PacketOut with in_port = OFPP_NONE, per spec.md §4.4.
func (e *Engine) emitSynthesized(sw *topology.Switch, outPort uint16, frame []byte) {
	if sw.Conn == nil {
		return
	}
	factory := sw.Conn.Factory()
	po, err := factory.NewPacketOut()
	if err != nil {
		logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: building packet-out for synthesized frame")
		return
	}
	po.SetInPort(openflow.PortNone)
	po.SetBufferID(openflow.BufferIDNone)
	po.SetData(frame)

	action, err := factory.NewAction()
	if err != nil {
		logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: building action for synthesized frame")
		return
	}
	action.SetOutput(outPort, openflow.MaxLenNoBuffer)
	po.AddAction(action)

	if err := sw.Conn.SendPacketOut(po); err != nil {
		logging.WithSwitch(sw.DPID).WithField("error", err).Warn("forwarding: sending synthesized packet-out")
	}
}

// drop emits a PacketOut with the original buffer_id/in_port and no
// actions, per spec.md §4.5 "Drop".
func (e *Engine) drop(sw *topology.Switch, msg openflow.PacketIn) {
	if sw.Conn == nil {
		return
	}
	factory := sw.Conn.Factory()
	po, err := factory.NewPacketOut()
	if err != nil {
		return
	}
	po.SetInPort(msg.InPort)
	po.SetBufferID(msg.BufferID)
	if msg.BufferID == openflow.BufferIDNone {
		po.SetData(msg.Data)
	}
	if err := sw.Conn.SendPacketOut(po); err != nil {
		logging.WithSwitch(sw.DPID).WithField("error", err).Debug("forwarding: sending drop packet-out")
	}
}
