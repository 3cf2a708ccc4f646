// Package ofevent defines the topology/OpenFlow event types the core
// consumes from the external discovery subsystem (LLDP-driven link
// discovery, switch connection lifecycle) — see spec.md §6.
package ofevent

import "github.com/meridian-sdn/meridian/pkg/openflow"

// SwitchEnter is emitted when a switch's control channel is established.
type SwitchEnter struct {
	DPID uint64
	Conn openflow.Connection
}

// SwitchLeave is emitted when a switch's control channel is lost.
type SwitchLeave struct {
	DPID uint64
}

// Features carries a Features Reply, used to populate a switch's ports.
type Features struct {
	DPID  uint64
	Ports []openflow.Port
}

// PortAdd is emitted when a port appears (port-status ADD, or a later
// FeaturesReply/port-desc that introduces a previously-unseen port).
type PortAdd struct {
	DPID uint64
	Port openflow.Port
}

// PortDelete is emitted when a port disappears.
type PortDelete struct {
	DPID   uint64
	PortNo uint16
}

// Endpoint identifies one side of a link.
type Endpoint struct {
	DPID   uint64
	PortNo uint16
}

// LinkAdd is emitted when LLDP discovery confirms an inter-switch link.
type LinkAdd struct {
	Src Endpoint
	Dst Endpoint
}

// LinkDelete is emitted when a previously-discovered link is withdrawn.
type LinkDelete struct {
	Src Endpoint
	Dst Endpoint
}
