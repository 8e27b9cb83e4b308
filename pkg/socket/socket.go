// Package socket wraps a bound UDP socket with the receive-buffer tuning
// and endpoint parsing the original netvid socket_wrapper performed.
package socket

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/trylle/netvid/pkg/logging"
)

// RecvBufferSize is the requested SO_RCVBUF size, matching the original's
// 1MiB receive buffer request.
const RecvBufferSize = 1024 * 1024

// Socket wraps a single bound or connected UDP socket.
type Socket struct {
	Conn *net.UDPConn
	log  *logging.Logger
}

// New creates an unbound Socket. Call Bind before using it.
func New(log *logging.Logger) *Socket {
	return &Socket{log: log}
}

// Bind resolves endpoint and binds a UDP socket to it.
func (s *Socket) Bind(endpoint string) error {
	addr, err := ResolveEndpoint(endpoint)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", endpoint, err)
	}

	s.Conn = conn

	return nil
}

// SetReceiveBuffer requests RecvBufferSize for SO_RCVBUF and logs the size
// the kernel actually granted, mirroring receiver::start's buffer-size trace.
func (s *Socket) SetReceiveBuffer() error {
	if err := s.Conn.SetReadBuffer(RecvBufferSize); err != nil {
		return fmt.Errorf("set receive buffer: %w", err)
	}

	actual := RecvBufferSize

	if rawConn, err := s.Conn.SyscallConn(); err == nil {
		rawConn.Control(func(fd uintptr) {
			if v, serr := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF); serr == nil {
				actual = v
			}
		})
	}

	if s.log != nil {
		s.log.Info("receive buffer size", logging.Fields{
			"requested": RecvBufferSize,
			"actual":    actual,
		})
		s.log.Info("started", logging.Fields{"local_addr": s.Conn.LocalAddr().String()})
	}

	return nil
}

// SendTo concatenates parts and writes them as a single UDP datagram to addr.
func (s *Socket) SendTo(addr *net.UDPAddr, parts ...[]byte) (int, error) {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	buf := make([]byte, 0, total)
	for _, p := range parts {
		buf = append(buf, p...)
	}

	return s.Conn.WriteToUDP(buf, addr)
}

// Close closes the underlying connection.
func (s *Socket) Close() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.Close()
}
