// Package udp is the low-latency datagram channel between the two nodes.
// Every send is a single packet, fire-and-once, bounded by a write deadline.
package udp

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultPort is the caregiver node's listening port.
const DefaultPort = 4210

// MaxDatagram is the largest datagram the listener accepts; longer packets
// are truncated.
const MaxDatagram = 254

// Sender sends datagrams from a single local socket.
type Sender struct {
	conn    *net.UDPConn
	timeout time.Duration
}

// NewSender opens a local socket on laddr ("" for an ephemeral port).
func NewSender(laddr string, timeout time.Duration) (*Sender, error) {
	var local *net.UDPAddr
	if laddr != "" {
		a, err := net.ResolveUDPAddr("udp", laddr)
		if err != nil {
			return nil, fmt.Errorf("resolve local address %q: %w", laddr, err)
		}
		local = a
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w", err)
	}
	return &Sender{conn: conn, timeout: timeout}, nil
}

// Resolve parses a host:port destination.
func Resolve(addr string) (*net.UDPAddr, error) {
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	return a, nil
}

// Send writes payload as one datagram to dst.
func (s *Sender) Send(dst *net.UDPAddr, payload []byte) error {
	if dst == nil {
		return errors.New("udp: no destination")
	}
	if s.timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	n, err := s.conn.WriteToUDP(payload, dst)
	if err != nil {
		return fmt.Errorf("send to %s: %w", dst, err)
	}
	if n != len(payload) {
		return fmt.Errorf("send to %s: short write %d/%d", dst, n, len(payload))
	}
	return nil
}

// LocalAddr returns the socket's local address.
func (s *Sender) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}

// Listener receives datagrams on a fixed port.
type Listener struct {
	conn *net.UDPConn
	buf  []byte
}

// Listen binds addr, e.g. ":4210".
func Listen(addr string) (*Listener, error) {
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", a)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Listener{conn: conn, buf: make([]byte, MaxDatagram+1)}, nil
}

// Receive blocks until a datagram arrives. The returned slice is only valid
// until the next call to Receive.
func (l *Listener) Receive() ([]byte, *net.UDPAddr, error) {
	n, from, err := l.conn.ReadFromUDP(l.buf)
	if err != nil {
		return nil, nil, err
	}
	if n > MaxDatagram {
		n = MaxDatagram
	}
	return l.buf[:n], from, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Close unblocks any pending Receive and releases the socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// IsClosed reports whether err came from a closed listener.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
