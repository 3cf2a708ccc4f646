// Package tapbridge is the full-duplex bridge between the kernel TAP
// device and the cooperative controller event loop, spec.md §4.3/§5.
//
// Model (from spec.md, mapped onto Go primitives):
//   - a dedicated OS thread (runtime.LockOSThread) performs blocking Read
//     on a github.com/songgao/water TAP interface (grounded on the
//     water.Interface open/Read/Write idiom in
//     other_examples/.../balookrd-outline-cli-ws/internal/tun_native.go)
//     and enqueues each frame into a bounded channel FIFO;
//   - after each enqueue it signals a self-pipe (here: a zero-length send
//     on a buffered "wake" channel — the natural Go analogue of a
//     self-pipe, since a channel send is itself the wakeup primitive and
//     needs no OS-level pipe);
//   - a dispatcher goroutine drains the FIFO, parses L3, selects the
//     target (border switch, outport) by matching against the BGP peer
//     config, and emits a PacketOut.
package tapbridge

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/songgao/water"

	"github.com/meridian-sdn/meridian/pkg/l3"
	"github.com/meridian-sdn/meridian/pkg/logging"
	"github.com/meridian-sdn/meridian/pkg/merrors"
	"github.com/meridian-sdn/meridian/pkg/openflow"
)

// queueCap bounds the blocking reader's FIFO to the dispatcher. Frames are
// dropped oldest-first on overflow, mirroring msg_buffer's eviction policy.
const queueCap = 256

// NeighborLookup resolves a BGP neighbor address to the border switch and
// outport that faces it (bgper_config.neighbors[*]).
type NeighborLookup interface {
	BorderSwitchFor(ip net.IP) (switchName string, outportNo uint16, ok bool)
}

// SwitchResolver looks up a live switch connection by name, and reports
// the topology version it was read at (used to invalidate the dispatcher's
// border-switch/outport cache).
type SwitchResolver interface {
	ResolveSwitchByName(name string) (dpid uint64, conn openflow.Connection, ok bool)
	Version() uint64
}

// Bridge owns one TAP device and bridges it to the network.
type Bridge struct {
	iface *water.Interface
	mac   net.HardwareAddr

	queue chan []byte
	wake  chan struct{}

	neighbors NeighborLookup
	switches  SwitchResolver

	dropped atomic.Uint64

	cacheMu      sync.Mutex
	cacheVersion uint64
	cacheName    string
	cacheDPID    uint64
	cacheConn    openflow.Connection
	cacheOutport uint16
	cacheValid   bool
}

// Open opens the named TAP device (pre-created by the host, matching the
// outline-cli-ws idiom of operating on an existing interface rather than
// creating one) and returns a Bridge wired to neighbors/switches for
// outbound dispatch.
func Open(deviceName string, neighbors NeighborLookup, switches SwitchResolver) (*Bridge, error) {
	cfg := water.Config{DeviceType: water.TAP}
	cfg.Name = deviceName
	iface, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("tapbridge: opening %q: %w", deviceName, err)
	}

	ifi, err := net.InterfaceByName(deviceName)
	if err != nil {
		iface.Close()
		return nil, fmt.Errorf("tapbridge: querying mac of %q: %w", deviceName, err)
	}

	return &Bridge{
		iface:     iface,
		mac:       ifi.HardwareAddr,
		queue:     make(chan []byte, queueCap),
		wake:      make(chan struct{}, 1),
		neighbors: neighbors,
		switches:  switches,
	}, nil
}

// NewForDispatch builds a Bridge wired to neighbors/switches without
// opening an OS TAP device — for exercising Dispatch/RunDispatcher's
// resolve-and-send path (everything but RunReader) in tests and other
// callers that already have frames from elsewhere.
func NewForDispatch(neighbors NeighborLookup, switches SwitchResolver) *Bridge {
	return &Bridge{
		queue:     make(chan []byte, queueCap),
		wake:      make(chan struct{}, 1),
		neighbors: neighbors,
		switches:  switches,
	}
}

// MAC returns the TAP device's own hardware address, queried once at open.
func (b *Bridge) MAC() net.HardwareAddr {
	return b.mac
}

// DroppedFrames returns the count of frames dropped from the inbound queue
// due to overflow.
func (b *Bridge) DroppedFrames() uint64 {
	return b.dropped.Load()
}

// Close releases the TAP device.
func (b *Bridge) Close() error {
	return b.iface.Close()
}

// RunReader performs the blocking reads on a dedicated OS thread,
// enqueuing each frame and signaling the dispatcher. Call as its own
// goroutine; returns when ctx is done or a read error occurs.
func (b *Bridge) RunReader(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	buf := make([]byte, 65535)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := b.iface.Read(buf)
		if err != nil {
			return fmt.Errorf("tapbridge: reading tap device: %w", err)
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])

		select {
		case b.queue <- frame:
		default:
			// Overflow: drop the oldest queued frame to make room, then
			// enqueue the new one, preserving the bounded-FIFO policy
			// used for msg_buffer elsewhere in the controller.
			select {
			case <-b.queue:
				b.dropped.Add(1)
			default:
			}
			select {
			case b.queue <- frame:
			default:
				b.dropped.Add(1)
			}
		}

		select {
		case b.wake <- struct{}{}:
		default:
		}
	}
}

// RunDispatcher drains the FIFO and dispatches each frame, blocking on the
// wake signal between batches. Call as its own goroutine; returns when ctx
// is done.
func (b *Bridge) RunDispatcher(ctx context.Context, sendPacketOut func(conn openflow.Connection, outport uint16, frame []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.wake:
		}

	drain:
		for {
			select {
			case frame := <-b.queue:
				b.Dispatch(frame, sendPacketOut)
			default:
				break drain
			}
		}
	}
}

// Dispatch decodes one TAP frame, selects its target border switch and
// outport by matching against the configured BGP neighbors, and hands it to
// sendPacketOut. RunDispatcher calls this for every frame it drains from
// the queue; it's exported separately so callers (and tests) can drive a
// single frame through the real resolve-and-send path without a live TAP
// device.
func (b *Bridge) Dispatch(frame []byte, sendPacketOut func(conn openflow.Connection, outport uint16, frame []byte) error) {
	parsed, err := l3.Decode(frame)
	if err != nil {
		logging.WithPacket(0).WithField("error", err).Debug("tapbridge: dropping unparseable frame")
		return
	}

	var dst net.IP
	switch {
	case parsed.IPv4 != nil:
		dst = parsed.IPv4.DstIP
	case parsed.IPv6 != nil:
		dst = parsed.IPv6.DstIP
	default:
		return
	}

	switchName, outport, ok := b.neighbors.BorderSwitchFor(dst)
	if !ok {
		logging.WithField("dst", dst.String()).Debug("tapbridge: no configured BGP neighbor for destination, dropping")
		return
	}

	dpid, conn, ok := b.borderEgress(switchName, outport)
	if !ok {
		return
	}

	if err := sendPacketOut(conn, outport, frame); err != nil {
		logging.WithSwitch(dpid).WithField("error", err).Warn("tapbridge: packet-out failed")
	}
}

// borderEgress resolves (and caches) the live connection + outport for a
// border switch name. The cache is invalidated whenever the topology
// version changes or the cached switch name differs from the request —
// spec.md §4.3's "cleared on switch-leave and on topology version change."
func (b *Bridge) borderEgress(switchName string, outport uint16) (uint64, openflow.Connection, bool) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()

	version := b.switches.Version()
	if b.cacheValid && b.cacheName == switchName && b.cacheOutport == outport && b.cacheVersion == version {
		return b.cacheDPID, b.cacheConn, true
	}

	dpid, conn, ok := b.switches.ResolveSwitchByName(switchName)
	if !ok {
		b.cacheValid = false
		return 0, nil, false
	}

	b.cacheValid = true
	b.cacheVersion = version
	b.cacheName = switchName
	b.cacheDPID = dpid
	b.cacheConn = conn
	b.cacheOutport = outport
	return dpid, conn, true
}

// WriteToTAP writes frame to the TAP device. When rewriteDstMAC is true,
// the frame's destination MAC is rewritten to the TAP device's own address
// first, since such frames arrive addressed to the controller's virtual
// router MAC rather than the TAP interface's MAC (spec.md §4.3's mirrored
// ICMP/BGP traffic). ARP frames must NOT be rewritten: they're mirrored
// to the BGP speaker byte-for-byte, matching the original's
// write_to_tap(data, modifyMacAddress=False) default.
func (b *Bridge) WriteToTAP(frame []byte, rewriteDstMAC bool) error {
	frame = maybeRewriteDstMAC(frame, b.mac, rewriteDstMAC)

	n, err := b.iface.Write(frame)
	if err != nil {
		return &merrors.TapWriteError{Attempted: len(frame), Cause: err}
	}
	if n != len(frame) {
		return &merrors.TapWriteError{Attempted: len(frame), Cause: fmt.Errorf("short write: wrote %d of %d bytes", n, len(frame))}
	}
	return nil
}

// maybeRewriteDstMAC returns frame with its destination MAC (the first six
// bytes) replaced by mac, if rewrite is true and frame is at least 12 bytes
// long (both MAC address fields); otherwise it returns frame unchanged.
func maybeRewriteDstMAC(frame []byte, mac net.HardwareAddr, rewrite bool) []byte {
	if !rewrite || len(frame) < 12 {
		return frame
	}
	rewritten := make([]byte, len(frame))
	copy(rewritten, frame)
	copy(rewritten[0:6], mac)
	return rewritten
}
