package responder

import (
	"net"

	"github.com/google/gopacket/layers"

	"github.com/meridian-sdn/meridian/pkg/l3"
)

// ARPRequestFor builds an ARP request broadcast from (srcMAC, srcIP) asking
// for the hardware address of targetIP, for the last-hop routine's
// cache-miss synthesis (spec.md §4.5 "Last-hop").
func ARPRequestFor(srcMAC net.HardwareAddr, srcIP net.IP, targetIP net.IP) ([]byte, error) {
	broadcast := net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       broadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	req := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: srcIP.To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    targetIP.To4(),
	}
	return l3.Serialize(eth, req)
}

// NeighborSolicitationFor builds an ICMPv6 Neighbor Solicitation from
// (srcMAC, srcIP) asking for the link-layer address of targetIP, sent to
// targetIP's solicited-node multicast address per RFC 2464/2373, for the
// last-hop routine's cache-miss synthesis.
func NeighborSolicitationFor(srcMAC net.HardwareAddr, srcIP net.IP, targetIP net.IP) ([]byte, error) {
	dstIP := l3.SolicitedNodeMulticast(targetIP)
	dstMAC := l3.SolicitedNodeMulticastMAC(dstIP)

	eth, ip6, icmp6 := l3.IPv6NDLayers(srcMAC, dstMAC, srcIP, dstIP, layers.CreateICMPv6TypeCode(layers.ICMPv6TypeNeighborSolicitation, 0))
	icmp6.SetNetworkLayerForChecksum(ip6)

	ns := &layers.ICMPv6NeighborSolicitation{
		TargetAddress: targetIP,
		Options: layers.ICMPv6Options{
			{Type: layers.ICMPv6OptSourceAddress, Data: srcMAC},
		},
	}

	return l3.Serialize(eth, ip6, icmp6, ns)
}
