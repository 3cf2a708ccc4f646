package responder

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/meridian-sdn/meridian/pkg/l3"
)

// ICMPv4EchoReply builds an ICMPv4 echo reply answering an echo request
// addressed to the gateway at gwMAC/gwIP.
func ICMPv4EchoReply(frame *l3.Frame, gwMAC net.HardwareAddr, gwIP net.IP) ([]byte, error) {
	if frame.Eth == nil || frame.IPv4 == nil || frame.ICMPv4 == nil {
		return nil, fmt.Errorf("responder: ICMPv4EchoReply requires a decoded ICMPv4 frame")
	}
	if frame.ICMPv4.TypeCode.Type() != layers.ICMPv4TypeEchoRequest {
		return nil, fmt.Errorf("responder: ICMPv4EchoReply called on a non-echo-request frame")
	}

	eth := &layers.Ethernet{
		SrcMAC:       gwMAC,
		DstMAC:       frame.Eth.SrcMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip4 := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    gwIP.To4(),
		DstIP:    frame.IPv4.SrcIP,
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0),
		Id:       frame.ICMPv4.Id,
		Seq:      frame.ICMPv4.Seq,
	}

	return l3.Serialize(eth, ip4, icmp, gopacket.Payload(frame.ICMPv4.Payload))
}

// ICMPv6EchoReply builds an ICMPv6 echo reply answering an echo request
// addressed to the gateway at gwMAC/gwIP.
func ICMPv6EchoReply(frame *l3.Frame, gwMAC net.HardwareAddr, gwIP net.IP) ([]byte, error) {
	if frame.Eth == nil || frame.IPv6 == nil || frame.ICMPv6 == nil {
		return nil, fmt.Errorf("responder: ICMPv6EchoReply requires a decoded ICMPv6 frame")
	}
	if frame.ICMPv6.TypeCode.Type() != layers.ICMPv6TypeEchoRequest {
		return nil, fmt.Errorf("responder: ICMPv6EchoReply called on a non-echo-request frame")
	}

	eth, ip6, icmp6 := l3.IPv6NDLayers(gwMAC, frame.Eth.SrcMAC, gwIP, frame.IPv6.SrcIP, layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoReply, 0))
	icmp6.SetNetworkLayerForChecksum(ip6)

	return l3.Serialize(eth, ip6, icmp6, gopacket.Payload(frame.ICMPv6.Payload))
}
