package responder

import (
	"fmt"
	"net"

	"github.com/google/gopacket/layers"

	"github.com/meridian-sdn/meridian/pkg/l3"
)

// NeighborAdvertisement builds a Neighbor Advertisement answering a
// Neighbor Solicitation whose target is the gateway at gwMAC/gwIP. Sets
// the Router, Solicited and Override flags (RFC 4861 §7.2.4) and carries a Target
// Link-Layer Address option.
func NeighborAdvertisement(frame *l3.Frame, gwMAC net.HardwareAddr, gwIP net.IP) ([]byte, error) {
	if frame.Eth == nil || frame.IPv6 == nil || frame.ICMPv6 == nil {
		return nil, fmt.Errorf("responder: NeighborAdvertisement requires a decoded ICMPv6 frame")
	}
	if frame.ICMPv6.TypeCode.Type() != layers.ICMPv6TypeNeighborSolicitation {
		return nil, fmt.Errorf("responder: NeighborAdvertisement called on a non-NS frame")
	}

	ns := &layers.ICMPv6NeighborSolicitation{}
	if err := ns.DecodeFromBytes(frame.ICMPv6.LayerPayload(), nil); err != nil {
		return nil, fmt.Errorf("responder: decoding neighbor solicitation: %w", err)
	}

	eth, ip6, icmp6 := l3.IPv6NDLayers(gwMAC, frame.Eth.SrcMAC, gwIP, frame.IPv6.SrcIP, layers.CreateICMPv6TypeCode(layers.ICMPv6TypeNeighborAdvertisement, 0))
	icmp6.SetNetworkLayerForChecksum(ip6)

	na := &layers.ICMPv6NeighborAdvertisement{
		Flags:         0xe0, // Router | Solicited | Override
		TargetAddress: gwIP,
		Options: layers.ICMPv6Options{
			{Type: layers.ICMPv6OptTargetAddress, Data: gwMAC},
		},
	}

	return l3.Serialize(eth, ip6, icmp6, na)
}
