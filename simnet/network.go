package simnet

import (
	"errors"
	"net"
	"sync"

	"github.com/kprusa/anthocnet"
)

// ErrLinkDown is returned by NodeTransport.Send when the trace says the
// link to the target is currently down.
var ErrLinkDown = errors.New("simnet: link down")

// ErrUnknownNode is returned when the destination was never registered
// on the fabric.
var ErrUnknownNode = errors.New("simnet: unknown destination")

// Fabric is a centralized stand-in for the wireless medium: every
// registered node's Send calls come through here, and delivery is
// gated on the Trace the way the teacher's Controller gated delivery on
// its NetworkTypology. A real deployment has no such central authority;
// this exists only so tests can script link failures deterministically.
type Fabric struct {
	mu    sync.Mutex
	trace *Trace
	tick  func() int
	nodes map[anthocnet.Addr]map[int]chan anthocnet.Inbound
}

// NewFabric builds a Fabric whose delivery decisions are gated by
// trace, reading the current tick from tick.
func NewFabric(trace *Trace, tick func() int) *Fabric {
	return &Fabric{
		trace: trace,
		tick:  tick,
		nodes: make(map[anthocnet.Addr]map[int]chan anthocnet.Inbound),
	}
}

// Register attaches a node identity on one interface to the fabric and
// returns the datagramTransport view the Engine running as that node
// should use.
func (f *Fabric) Register(addr anthocnet.Addr, iface int) *NodeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	ifaces, ok := f.nodes[addr]
	if !ok {
		ifaces = make(map[int]chan anthocnet.Inbound)
		f.nodes[addr] = ifaces
	}
	ch := make(chan anthocnet.Inbound, 256)
	ifaces[iface] = ch
	return &NodeTransport{fabric: f, self: addr, iface: iface}
}

// NodeTransport is one node's view of the Fabric: it satisfies the
// engine's datagramTransport interface structurally, without either
// package importing the other's unexported type.
type NodeTransport struct {
	fabric *Fabric
	self   anthocnet.Addr
	iface  int
}

// Send delivers buf to every live neighbor (broadcast) or to dst
// (unicast), consulting the fabric's trace for reachability at the
// current tick.
func (nt *NodeTransport) Send(iface int, broadcast bool, dst *net.UDPAddr, buf []byte) error {
	nt.fabric.mu.Lock()
	defer nt.fabric.mu.Unlock()

	tick := nt.fabric.tick()
	data := append([]byte(nil), buf...)

	if broadcast {
		for addr, ifaces := range nt.fabric.nodes {
			if addr == nt.self {
				continue
			}
			ch, ok := ifaces[iface]
			if !ok || !nt.fabric.trace.IsUp(nt.self, addr, tick) {
				continue
			}
			nt.deliver(ch, data)
		}
		return nil
	}

	ip := dst.IP.To4()
	if ip == nil {
		return errors.New("simnet: destination is not IPv4")
	}
	var dstAddr anthocnet.Addr
	copy(dstAddr[:], ip)

	ifaces, ok := nt.fabric.nodes[dstAddr]
	if !ok {
		return ErrUnknownNode
	}
	ch, ok := ifaces[iface]
	if !ok {
		return ErrUnknownNode
	}
	if !nt.fabric.trace.IsUp(nt.self, dstAddr, tick) {
		return ErrLinkDown
	}
	nt.deliver(ch, data)
	return nil
}

func (nt *NodeTransport) deliver(ch chan anthocnet.Inbound, data []byte) {
	select {
	case ch <- anthocnet.Inbound{Iface: nt.iface, Sender: nt.self, Data: data}:
	default:
		// Full inbound buffer: the datagram is lost, same as a real
		// dropped frame would be.
	}
}

// Inbound returns this node's inbound datagram channel.
func (nt *NodeTransport) Inbound() <-chan anthocnet.Inbound {
	nt.fabric.mu.Lock()
	defer nt.fabric.mu.Unlock()
	return nt.fabric.nodes[nt.self][nt.iface]
}
