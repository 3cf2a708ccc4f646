package forwarding

import (
	"net"

	"github.com/meridian-sdn/meridian/pkg/openflow"
)

// fakeMatch records every field set on it; it satisfies both Match and
// NXMatch so one fake factory can build either.
type fakeMatch struct {
	inPort     uint16
	etherType  uint16
	srcMAC     net.HardwareAddr
	dstMAC     net.HardwareAddr
	dstIP      *net.IPNet
	ipv6Dst    net.IP
	tcpDstPort uint16
}

func (m *fakeMatch) SetInPort(port uint16)             { m.inPort = port }
func (m *fakeMatch) SetEtherType(ethType uint16)       { m.etherType = ethType }
func (m *fakeMatch) SetSrcMAC(mac net.HardwareAddr)    { m.srcMAC = mac }
func (m *fakeMatch) SetDstMAC(mac net.HardwareAddr)    { m.dstMAC = mac }
func (m *fakeMatch) SetDstIP(ip *net.IPNet)            { m.dstIP = ip }
func (m *fakeMatch) SetTCPDstPort(port uint16)         { m.tcpDstPort = port }
func (m *fakeMatch) SetIPv6Dst(ip net.IP)              { m.ipv6Dst = ip }

type fakeAction struct {
	srcMAC net.HardwareAddr
	dstMAC net.HardwareAddr
	output uint16
	maxLen uint16
	isSet  bool
}

func (a *fakeAction) SetSrcMAC(mac net.HardwareAddr)        { a.srcMAC = mac }
func (a *fakeAction) SetDstMAC(mac net.HardwareAddr)        { a.dstMAC = mac }
func (a *fakeAction) SetOutput(port uint16, maxLen uint16)  { a.output, a.maxLen, a.isSet = port, maxLen, true }

type fakeInstruction struct {
	actions []*fakeAction
}

func (i *fakeInstruction) ApplyAction(a openflow.Action) {
	i.actions = append(i.actions, a.(*fakeAction))
}

type fakeFlowMod struct {
	cmd      openflow.FlowModCommand
	priority uint16
	idle     uint16
	hard     uint16
	match    *fakeMatch
	instr    *fakeInstruction
}

func (f *fakeFlowMod) SetCommand(cmd openflow.FlowModCommand) { f.cmd = cmd }
func (f *fakeFlowMod) SetPriority(p uint16)                   { f.priority = p }
func (f *fakeFlowMod) SetIdleTimeout(s uint16)                { f.idle = s }
func (f *fakeFlowMod) SetHardTimeout(s uint16)                { f.hard = s }
func (f *fakeFlowMod) SetMatch(m openflow.Match)              { f.match = m.(*fakeMatch) }
func (f *fakeFlowMod) SetInstruction(i openflow.Instruction)  { f.instr = i.(*fakeInstruction) }

type fakePacketOut struct {
	inPort   uint16
	bufferID uint32
	data     []byte
	actions  []*fakeAction
}

func (p *fakePacketOut) SetInPort(port uint16)   { p.inPort = port }
func (p *fakePacketOut) SetBufferID(id uint32)   { p.bufferID = id }
func (p *fakePacketOut) SetData(data []byte)     { p.data = data }
func (p *fakePacketOut) AddAction(a openflow.Action) {
	p.actions = append(p.actions, a.(*fakeAction))
}

type fakeFactory struct{}

func (fakeFactory) NewMatch() (openflow.Match, error)     { return &fakeMatch{}, nil }
func (fakeFactory) NewNXMatch() (openflow.NXMatch, error) { return &fakeMatch{}, nil }
func (fakeFactory) NewAction() (openflow.Action, error)   { return &fakeAction{}, nil }
func (fakeFactory) NewInstruction() (openflow.Instruction, error) {
	return &fakeInstruction{}, nil
}
func (fakeFactory) NewFlowMod(cmd openflow.FlowModCommand) (openflow.FlowMod, error) {
	return &fakeFlowMod{cmd: cmd}, nil
}
func (fakeFactory) NewPacketOut() (openflow.PacketOut, error) { return &fakePacketOut{}, nil }

type fakeConn struct {
	dpid       uint64
	flowMods   []*fakeFlowMod
	packetOuts []*fakePacketOut
}

func (c *fakeConn) DPID() uint64             { return c.dpid }
func (c *fakeConn) Factory() openflow.Factory { return fakeFactory{} }
func (c *fakeConn) SendFlowMod(fm openflow.FlowMod) error {
	c.flowMods = append(c.flowMods, fm.(*fakeFlowMod))
	return nil
}
func (c *fakeConn) SendPacketOut(po openflow.PacketOut) error {
	c.packetOuts = append(c.packetOuts, po.(*fakePacketOut))
	return nil
}
func (c *fakeConn) Close() error { return nil }
