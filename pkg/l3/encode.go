package l3

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

// Serialize builds a raw frame from layers bottom-up (Ethernet first),
// mirroring gopacket.SerializeLayers(buf, opts, &ethHeader, ...) as used in
// the corpus's own TCP/IP frame construction.
func Serialize(layerList ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, layerList...); err != nil {
		return nil, fmt.Errorf("l3: serializing frame: %w", err)
	}
	return buf.Bytes(), nil
}

// SolicitedNodeMulticast derives the IPv6 solicited-node multicast address
// for target, ff02::1:ffXX:XXXX, by taking the low 24 bits of target and
// OR-ing them onto the ff02::1:ff00:0000 prefix. Built byte-by-byte from
// the well-known prefix rather than by mutating a previously-unpacked
// address struct — resolves spec.md §9's open question on constructing the
// ND target multicast address.
func SolicitedNodeMulticast(target net.IP) net.IP {
	t := target.To16()
	out := make(net.IP, net.IPv6len)
	copy(out, []byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0xff, 0, 0, 0})
	out[13] = t[13]
	out[14] = t[14]
	out[15] = t[15]
	return out
}

// SolicitedNodeMulticastMAC derives the Ethernet multicast MAC that carries
// frames to a solicited-node multicast address: 33:33:XX:XX:XX:XX from the
// low 32 bits of the IPv6 address, per RFC 2464.
func SolicitedNodeMulticastMAC(multicastAddr net.IP) net.HardwareAddr {
	a := multicastAddr.To16()
	return net.HardwareAddr{0x33, 0x33, a[12], a[13], a[14], a[15]}
}

// IPv6NDLayers builds the Ethernet/IPv6/ICMPv6 layer stack shared by
// Neighbor Solicitation and Advertisement messages; callers append their
// own ICMPv6 option bytes as payload.
func IPv6NDLayers(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, icmpType layers.ICMPv6TypeCode) (*layers.Ethernet, *layers.IPv6, *layers.ICMPv6) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv6,
	}
	ip6 := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolICMPv6,
		HopLimit:   255,
		SrcIP:      srcIP,
		DstIP:      dstIP,
	}
	icmp6 := &layers.ICMPv6{TypeCode: icmpType}
	return eth, ip6, icmp6
}
