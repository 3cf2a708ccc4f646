// Package controller wires the topology store, router, neighbor cache,
// external resolver, and TAP bridge into the single object that consumes
// OpenFlow events and packet-ins, spec.md §4.7 and §6. Modeled on the
// teacher's pkg/network.Network: one top-level aggregate that owns its
// collaborators and exposes the handful of entry points the transport
// layer (the discovery subsystem's event feed and the switch connection's
// packet-in stream) calls into.
package controller

import (
	"context"
	"net"

	"github.com/google/gopacket/layers"

	"github.com/meridian-sdn/meridian/pkg/config"
	"github.com/meridian-sdn/meridian/pkg/forwarding"
	"github.com/meridian-sdn/meridian/pkg/logging"
	"github.com/meridian-sdn/meridian/pkg/neighcache"
	"github.com/meridian-sdn/meridian/pkg/ofevent"
	"github.com/meridian-sdn/meridian/pkg/openflow"
	"github.com/meridian-sdn/meridian/pkg/resolver"
	"github.com/meridian-sdn/meridian/pkg/routing"
	"github.com/meridian-sdn/meridian/pkg/tapbridge"
	"github.com/meridian-sdn/meridian/pkg/topology"
)

// bgpCapturePriority is the priority of the two permanent capture flows
// installed on switch-enter, spec.md §4.7. They only ever match on
// ether-type and TCP destination port, so priority need not distinguish
// them from anything else this controller installs.
const bgpCapturePriority = 1

// Controller is the top-level aggregate: it owns the topology store, the
// router built over it, the neighbor cache, the external resolver, the BGP
// configuration, and the forwarding engine that ties them together.
type Controller struct {
	Store   *topology.Store
	Router  *routing.Router
	Neigh   *neighcache.Cache
	Resolve *resolver.Resolver
	BGP     *config.BGPConfig
	Engine  *forwarding.Engine

	tap *tapbridge.Bridge
}

// New constructs a Controller. tap may be nil when this instance runs
// without a BGP speaker attached (e.g. a pure IP-router deployment);
// resolve may be nil when there is no external resolver collaborator
// configured, in which case every extra-AS destination is dropped.
func New(gateways topology.GatewayLookup, neigh *neighcache.Cache, resolve *resolver.Resolver, bgp *config.BGPConfig, tap *tapbridge.Bridge) *Controller {
	store := topology.New(gateways)
	router := routing.New(store)

	var tapWriter forwarding.TapWriter
	if tap != nil {
		tapWriter = tap
	}
	engine := forwarding.New(store, router, neigh, resolve, bgp, tapWriter)

	return &Controller{
		Store:   store,
		Router:  router,
		Neigh:   neigh,
		Resolve: resolve,
		BGP:     bgp,
		Engine:  engine,
		tap:     tap,
	}
}

// AttachTap wires a TAP bridge into the controller's forwarding engine
// after construction, for callers that must open the TAP device using this
// Controller's own Store (via SwitchResolver) and so cannot supply it to
// New up front.
func (c *Controller) AttachTap(tap *tapbridge.Bridge) {
	c.tap = tap
	c.Engine.SetTap(tap)
}

// OnSwitchEnter handles ofevent.SwitchEnter: creates the Switch record and
// pre-installs the BGP-capture flows, spec.md §4.7.
func (c *Controller) OnSwitchEnter(ev ofevent.SwitchEnter) {
	sw, _ := c.Store.OnSwitchEnter(ev.DPID, ev.Conn)
	if err := installBGPCapture(sw); err != nil {
		logging.WithSwitch(ev.DPID).WithField("error", err).Warn("controller: installing BGP capture flows")
	}
}

// OnSwitchLeave handles ofevent.SwitchLeave.
func (c *Controller) OnSwitchLeave(ev ofevent.SwitchLeave) {
	c.Store.OnSwitchLeave(ev.DPID)
}

// OnFeatures handles ofevent.Features.
func (c *Controller) OnFeatures(ev ofevent.Features) {
	if err := c.Store.OnFeatures(ev.DPID, ev.Ports); err != nil {
		logging.WithSwitch(ev.DPID).WithField("error", err).Warn("controller: applying features reply")
	}
}

// OnPortAdd handles ofevent.PortAdd.
func (c *Controller) OnPortAdd(ev ofevent.PortAdd) {
	if err := c.Store.OnPortAdd(ev.DPID, ev.Port); err != nil {
		logging.WithSwitch(ev.DPID).WithField("error", err).Warn("controller: applying port-add")
	}
}

// OnPortDelete handles ofevent.PortDelete.
func (c *Controller) OnPortDelete(ev ofevent.PortDelete) {
	if err := c.Store.OnPortDelete(ev.DPID, ev.PortNo); err != nil {
		logging.WithSwitch(ev.DPID).WithField("error", err).Warn("controller: applying port-delete")
	}
}

// OnLinkAdd handles ofevent.LinkAdd.
func (c *Controller) OnLinkAdd(ev ofevent.LinkAdd) {
	src := topology.Endpoint{DPID: ev.Src.DPID, PortNo: ev.Src.PortNo}
	dst := topology.Endpoint{DPID: ev.Dst.DPID, PortNo: ev.Dst.PortNo}
	if err := c.Store.OnLinkAdd(src, dst); err != nil {
		logging.WithField("error", err).Warn("controller: applying link-add")
	}
}

// OnLinkDelete handles ofevent.LinkDelete.
func (c *Controller) OnLinkDelete(ev ofevent.LinkDelete) {
	src := topology.Endpoint{DPID: ev.Src.DPID, PortNo: ev.Src.PortNo}
	dst := topology.Endpoint{DPID: ev.Dst.DPID, PortNo: ev.Dst.PortNo}
	c.Store.OnLinkDelete(src, dst)
}

// OnPacketIn dispatches a packet-in to the forwarding engine.
func (c *Controller) OnPacketIn(ctx context.Context, msg openflow.PacketIn) {
	c.Engine.OnPacketIn(ctx, msg)
}

// installBGPCapture installs the two permanent MODIFY flow-mods matching
// TCP destination port 179 over IPv4 and over IPv6, action = OUTPUT to the
// controller with max_len = 65535, per spec.md §4.7.
func installBGPCapture(sw *topology.Switch) error {
	if sw.Conn == nil {
		return nil
	}
	factory := sw.Conn.Factory()

	if err := installCaptureFlow(factory, sw, func() (openflow.Match, error) {
		m, err := factory.NewMatch()
		if err != nil {
			return nil, err
		}
		m.SetEtherType(uint16(layers.EthernetTypeIPv4))
		m.SetTCPDstPort(bgpTCPPort)
		return m, nil
	}); err != nil {
		return err
	}

	return installCaptureFlow(factory, sw, func() (openflow.Match, error) {
		m, err := factory.NewNXMatch()
		if err != nil {
			return nil, err
		}
		m.SetEtherType(uint16(layers.EthernetTypeIPv6))
		m.SetTCPDstPort(bgpTCPPort)
		return m, nil
	})
}

const bgpTCPPort = 179

func installCaptureFlow(factory openflow.Factory, sw *topology.Switch, buildMatch func() (openflow.Match, error)) error {
	match, err := buildMatch()
	if err != nil {
		return err
	}

	action, err := factory.NewAction()
	if err != nil {
		return err
	}
	action.SetOutput(openflow.PortController, openflow.MaxLenNoBuffer)

	instruction, err := factory.NewInstruction()
	if err != nil {
		return err
	}
	instruction.ApplyAction(action)

	fm, err := factory.NewFlowMod(openflow.FlowModify)
	if err != nil {
		return err
	}
	fm.SetPriority(bgpCapturePriority)
	fm.SetIdleTimeout(0)
	fm.SetHardTimeout(0)
	fm.SetMatch(match)
	fm.SetInstruction(instruction)

	return sw.Conn.SendFlowMod(fm)
}

// bgpNeighborLookup adapts *config.BGPConfig to tapbridge.NeighborLookup.
type bgpNeighborLookup struct {
	bgp *config.BGPConfig
}

// NeighborLookup returns a tapbridge.NeighborLookup backed by bgp.
func NeighborLookup(bgp *config.BGPConfig) tapbridge.NeighborLookup {
	return bgpNeighborLookup{bgp: bgp}
}

func (l bgpNeighborLookup) BorderSwitchFor(ip net.IP) (string, uint16, bool) {
	n, ok := l.bgp.MatchNeighbor(ip)
	if !ok {
		return "", 0, false
	}
	return n.BorderSwitch, n.OutportNo, true
}

// storeSwitchResolver adapts *topology.Store to tapbridge.SwitchResolver.
type storeSwitchResolver struct {
	store *topology.Store
}

// SwitchResolver returns a tapbridge.SwitchResolver backed by store.
func SwitchResolver(store *topology.Store) tapbridge.SwitchResolver {
	return storeSwitchResolver{store: store}
}

func (r storeSwitchResolver) ResolveSwitchByName(name string) (uint64, openflow.Connection, bool) {
	sw, ok := r.store.ResolveSwitchByName(name)
	if !ok {
		return 0, nil, false
	}
	return sw.DPID, sw.Conn, true
}

func (r storeSwitchResolver) Version() uint64 {
	return r.store.Version()
}

// SendTAPPacketOut is the tapbridge dispatcher's send hook: emit the TAP
// frame verbatim out outport with in_port = OFPP_NONE, buffer_id =
// OFPP_NONE, per spec.md's E6 TAP-to-network edge case.
func SendTAPPacketOut(conn openflow.Connection, outport uint16, frame []byte) error {
	factory := conn.Factory()
	po, err := factory.NewPacketOut()
	if err != nil {
		return err
	}
	po.SetInPort(openflow.PortNone)
	po.SetBufferID(openflow.BufferIDNone)
	po.SetData(frame)

	action, err := factory.NewAction()
	if err != nil {
		return err
	}
	action.SetOutput(outport, openflow.MaxLenNoBuffer)
	po.AddAction(action)

	return conn.SendPacketOut(po)
}
