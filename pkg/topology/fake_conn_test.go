package topology

import "github.com/meridian-sdn/meridian/pkg/openflow"

// fakeConn is a minimal openflow.Connection double used across this
// package's tests. It records nothing and fails nothing; tests that need
// to observe flow-mods/packet-outs live in pkg/forwarding.
type fakeConn struct {
	dpid uint64
}

func (f *fakeConn) DPID() uint64             { return f.dpid }
func (f *fakeConn) Factory() openflow.Factory { return nil }
func (f *fakeConn) SendFlowMod(openflow.FlowMod) error     { return nil }
func (f *fakeConn) SendPacketOut(openflow.PacketOut) error { return nil }
func (f *fakeConn) Close() error { return nil }
