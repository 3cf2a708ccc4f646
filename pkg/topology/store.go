// Package topology is the authoritative model of switches, ports, links,
// and gateways — spec.md §3 and §4.1. A single Store, guarded by one
// sync.RWMutex, mirrors the teacher's Network/Device locking pattern
// (pkg/network/network.go, pkg/network/device.go): one writer lock for any
// mutation, bumping a monotonic version counter every caller can use to
// invalidate derived state (route caches, cached border-switch lookups).
package topology

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/meridian-sdn/meridian/pkg/openflow"
)

// GatewayLookup resolves the gateway configuration bound to a given switch
// name and port number, from the loaded routing.config (pkg/config). Store
// depends on this interface rather than pkg/config directly to avoid an
// import cycle between topology and config.
type GatewayLookup interface {
	GatewayFor(switchName string, portNo uint16) (*Gateway, bool)
}

// Store holds every connected Switch. Zero value is not usable; use New.
type Store struct {
	mu       sync.RWMutex
	switches map[uint64]*Switch
	version  atomic.Uint64
	gateways GatewayLookup
}

// New constructs an empty Store. gateways may be nil, in which case
// OnFeatures/OnPortAdd never attach a Gateway to a port.
func New(gateways GatewayLookup) *Store {
	return &Store{
		switches: make(map[uint64]*Switch),
		gateways: gateways,
	}
}

// Version returns the current topology version. Strictly increases across
// any mutating call; unchanged across read-only ones.
func (st *Store) Version() uint64 {
	return st.version.Load()
}

func (st *Store) bump() {
	st.version.Add(1)
}

// Switch looks up a connected switch by dpid.
func (st *Store) Switch(dpid uint64) (*Switch, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sw, ok := st.switches[dpid]
	return sw, ok
}

// Switches returns a snapshot slice of every connected switch.
func (st *Store) Switches() []*Switch {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Switch, 0, len(st.switches))
	for _, sw := range st.switches {
		out = append(out, sw)
	}
	return out
}

// OnSwitchEnter idempotently creates the Switch record for dpid. Returns
// the switch and whether it was newly created (false if it already
// existed, e.g. a reconnect with the same dpid before the old connection's
// leave event was processed — the newer connection replaces the old one).
func (st *Store) OnSwitchEnter(dpid uint64, conn openflow.Connection) (*Switch, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sw, existed := st.switches[dpid]
	if !existed {
		sw = newSwitch(dpid, conn)
		st.switches[dpid] = sw
	} else {
		sw.Conn = conn
	}
	st.bump()
	return sw, !existed
}

// OnSwitchLeave removes the Switch record for dpid, if present.
func (st *Store) OnSwitchLeave(dpid uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.switches[dpid]; !ok {
		return
	}
	delete(st.switches, dpid)
	st.bump()
}

// OnFeatures upserts every port in a Features Reply, computing link cost
// from advertised features, assigning the switch name from OFPP_LOCAL, and
// applying any configured gateway binding.
func (st *Store) OnFeatures(dpid uint64, ports []openflow.Port) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sw, ok := st.switches[dpid]
	if !ok {
		return errUnknownSwitch(dpid)
	}
	// Take the name from OFPP_LOCAL first, so gateway bindings keyed by
	// switch name apply to every port regardless of their order in ports.
	for _, p := range ports {
		if p.Number == openflow.PortLocal && p.Name != "" {
			sw.Name = p.Name
		}
	}
	for _, p := range ports {
		st.upsertPortLocked(sw, p)
	}
	st.bump()
	return nil
}

// OnPortAdd upserts a single port (port-status ADD, or a late-discovered
// port not present in the original Features Reply).
func (st *Store) OnPortAdd(dpid uint64, p openflow.Port) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sw, ok := st.switches[dpid]
	if !ok {
		return errUnknownSwitch(dpid)
	}
	st.upsertPortLocked(sw, p)
	st.bump()
	return nil
}

// OnPortDelete removes a port, clearing any link it participated in on the
// peer side too.
func (st *Store) OnPortDelete(dpid uint64, portNo uint16) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sw, ok := st.switches[dpid]
	if !ok {
		return errUnknownSwitch(dpid)
	}
	p, ok := sw.Ports[portNo]
	if !ok {
		st.bump()
		return nil
	}
	if p.HasPeer {
		st.clearLinkLocked(Endpoint{DPID: dpid, PortNo: portNo}, Endpoint{DPID: p.PeerDPID, PortNo: p.PeerPort})
	}
	delete(sw.Ports, portNo)
	st.bump()
	return nil
}

func (st *Store) upsertPortLocked(sw *Switch, of openflow.Port) {
	existing, ok := sw.Ports[of.Number]
	if !ok {
		existing = newPortFromFeatures(of)
		sw.Ports[of.Number] = existing
	} else {
		existing.HWAddr = of.HWAddr
		if of.Name != "" {
			existing.Name = of.Name
		}
		if of.Number != openflow.PortLocal {
			existing.Cost = openflow.PortCost(of.Features)
		}
	}
	if of.Number == openflow.PortLocal && of.Name != "" {
		sw.Name = of.Name
	}
	if st.gateways != nil {
		if gw, ok := st.gateways.GatewayFor(sw.Name, of.Number); ok {
			existing.Gateway = gw
		}
	}
}

// Endpoint identifies one side of a link by (dpid, port_no).
type Endpoint struct {
	DPID   uint64
	PortNo uint16
}

// OnLinkAdd sets the peer fields on both endpoints' ports and both
// switches' adjacency index. Both endpoints must already exist; unknown
// endpoints are reported as an error and the call is a no-op.
func (st *Store) OnLinkAdd(src, dst Endpoint) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	srcSw, ok := st.switches[src.DPID]
	if !ok {
		return errUnknownSwitch(src.DPID)
	}
	dstSw, ok := st.switches[dst.DPID]
	if !ok {
		return errUnknownSwitch(dst.DPID)
	}
	srcPort, ok := srcSw.Ports[src.PortNo]
	if !ok {
		return errUnknownPort(src)
	}
	dstPort, ok := dstSw.Ports[dst.PortNo]
	if !ok {
		return errUnknownPort(dst)
	}

	srcPort.HasPeer = true
	srcPort.PeerDPID = dst.DPID
	srcPort.PeerPort = dst.PortNo
	dstPort.HasPeer = true
	dstPort.PeerDPID = src.DPID
	dstPort.PeerPort = src.PortNo

	srcSw.peerToLocalPort[dst.DPID] = src.PortNo
	dstSw.peerToLocalPort[src.DPID] = dst.PortNo

	st.bump()
	return nil
}

// OnLinkDelete clears the peer fields on both endpoints and removes both
// adjacency entries. Tolerant of partial state: a missing switch, port, or
// endpoint is silently ignored rather than treated as an error.
func (st *Store) OnLinkDelete(src, dst Endpoint) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.clearLinkLocked(src, dst)
	st.bump()
}

func (st *Store) clearLinkLocked(src, dst Endpoint) {
	if srcSw, ok := st.switches[src.DPID]; ok {
		if srcPort, ok := srcSw.Ports[src.PortNo]; ok {
			srcPort.HasPeer = false
			srcPort.PeerDPID = 0
			srcPort.PeerPort = 0
		}
		delete(srcSw.peerToLocalPort, dst.DPID)
	}
	if dstSw, ok := st.switches[dst.DPID]; ok {
		if dstPort, ok := dstSw.Ports[dst.PortNo]; ok {
			dstPort.HasPeer = false
			dstPort.PeerDPID = 0
			dstPort.PeerPort = 0
		}
		delete(dstSw.peerToLocalPort, src.DPID)
	}
}

// ResolveSwitchByName returns the switch whose OFPP_LOCAL port carries the
// given name, if any is currently connected.
func (st *Store) ResolveSwitchByName(name string) (*Switch, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	for _, sw := range st.switches {
		if sw.Name == name {
			return sw, true
		}
	}
	return nil, false
}

// FindGatewayFor returns the switch and port whose gateway subnet contains
// ip for the given address family (4 or 6). If ip equals a gateway's own
// address exactly, the returned port is openflow.PortLocal, since that
// traffic is addressed to the router itself rather than forwarded out a
// real port.
func (st *Store) FindGatewayFor(ip net.IP, family int) (*Switch, uint16, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	for _, sw := range st.switches {
		for portNo, p := range sw.Ports {
			if p.Gateway == nil {
				continue
			}
			if p.Gateway.IsSelf(ip, family) {
				return sw, openflow.PortLocal, true
			}
			if p.Gateway.Contains(ip, family) {
				return sw, portNo, true
			}
		}
	}
	return nil, 0, false
}
