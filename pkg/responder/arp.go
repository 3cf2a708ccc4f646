// Package responder synthesizes ARP/ND/ICMP echo responses for traffic
// addressed to a configured gateway, spec.md §4.4. It never decides
// applicability — the forwarding engine checks that the target IP belongs
// to (or is) the ingress port's Gateway before calling here — it only
// builds the reply frame.
package responder

import (
	"fmt"
	"net"

	"github.com/google/gopacket/layers"

	"github.com/meridian-sdn/meridian/pkg/l3"
)

// ARPReply builds an ARP reply frame answering the ARP request in frame, as if sent by a host
// with hardware address gwMAC at IP gwIP.
func ARPReply(frame *l3.Frame, gwMAC net.HardwareAddr, gwIP net.IP) ([]byte, error) {
	if frame.Eth == nil || frame.ARP == nil {
		return nil, fmt.Errorf("responder: ARPReply requires a decoded ARP frame")
	}
	if frame.ARP.Operation != layers.ARPRequest {
		return nil, fmt.Errorf("responder: ARPReply called on a non-request ARP frame")
	}

	eth := &layers.Ethernet{
		SrcMAC:       gwMAC,
		DstMAC:       frame.Eth.SrcMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	reply := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   gwMAC,
		SourceProtAddress: gwIP.To4(),
		DstHwAddress:      frame.ARP.SourceHwAddress,
		DstProtAddress:    frame.ARP.SourceProtAddress,
	}

	return l3.Serialize(eth, reply)
}
