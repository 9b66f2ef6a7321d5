package anthocnet

import (
	"net"

	log "github.com/sirupsen/logrus"
)

// Inbound is one datagram delivered off an interface, still encoded.
// The engine's single event-loop goroutine is the only consumer of the
// channel that carries these, preserving the "incoming datagrams
// processed in arrival order per interface" ordering guarantee; order
// across interfaces is left undefined, same as the design calls for.
type Inbound struct {
	Iface  int
	Sender Addr
	Data   []byte
}

// addrFromUDP extracts the 4-byte network identifier from a UDP sender
// address, ignoring the port. The protocol's "previous hop" bookkeeping
// (who delivered this datagram to us) reads this field rather than
// trying to recover it from the ant stack, which a backward ant does
// not need to carry duplicate identity information for.
func addrFromUDP(a *net.UDPAddr) Addr {
	var out Addr
	ip := a.IP.To4()
	if ip != nil {
		copy(out[:], ip)
	}
	return out
}

// Transport is the per-interface UDP endpoint set the engine sends ants
// and receives datagrams through. It is the concrete form of the "best
// effort datagram layer" external collaborator named in scope: real
// net.UDPConn sockets, since no example repo in this codebase's lineage
// reaches for a third-party socket library over the standard one for
// raw datagram I/O.
type Transport struct {
	port    int
	conns   map[int]*net.UDPConn
	bcast   map[int]*net.UDPAddr
	inbound chan Inbound
	done    chan struct{}
}

// NewTransport binds one UDP socket per (interface index -> local,
// broadcast) address pair on port, and starts a read goroutine per
// interface feeding a single shared Inbound channel.
func NewTransport(port int, ifaces map[int]*net.UDPAddr, broadcasts map[int]*net.UDPAddr) (*Transport, error) {
	t := &Transport{
		port:    port,
		conns:   make(map[int]*net.UDPConn),
		bcast:   broadcasts,
		inbound: make(chan Inbound, 256),
		done:    make(chan struct{}),
	}
	for iface, laddr := range ifaces {
		conn, err := net.ListenUDP("udp4", laddr)
		if err != nil {
			t.Close()
			return nil, err
		}
		t.conns[iface] = conn
		go t.readLoop(iface, conn)
	}
	return t, nil
}

func (t *Transport) readLoop(iface int, conn *net.UDPConn) {
	buf := make([]byte, 2048)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				log.WithError(err).WithField("iface", iface).Warn("transport: read error")
				return
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case t.inbound <- Inbound{Iface: iface, Sender: addrFromUDP(raddr), Data: data}:
		case <-t.done:
			return
		}
	}
}

// Inbound returns the channel the engine selects on for arriving
// datagrams.
func (t *Transport) Inbound() <-chan Inbound { return t.inbound }

// Send transmits buf on iface, to the interface's broadcast address if
// broadcast is true, otherwise unicast to dst.
func (t *Transport) Send(iface int, broadcast bool, dst *net.UDPAddr, buf []byte) error {
	conn, ok := t.conns[iface]
	if !ok {
		return ErrInterfaceDown
	}
	target := dst
	if broadcast {
		target = t.bcast[iface]
	}
	_, err := conn.WriteToUDP(buf, target)
	return err
}

// Close tears down every socket and stops the read goroutines.
func (t *Transport) Close() error {
	close(t.done)
	var firstErr error
	for _, conn := range t.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
