// Package archive ships completed netvid capture files to a remote archival
// endpoint over QUIC, so a recorder can offload recordings without blocking
// on TCP head-of-line stalls. Adapted from the teacher's pkg/transport QUIC
// wrapper, with the peer encryption layer removed per the wire protocol's
// no-encryption scope.
package archive

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/trylle/netvid/pkg/logging"
)

// Transport listens for incoming archive streams, or dials out to ship a
// local capture file to a remote archiver.
type Transport struct {
	listener   *quic.Listener
	tlsConfig  *tls.Config
	quicConfig *quic.Config
	log        *logging.Logger

	mu    sync.Mutex
	conns map[string]*quic.Conn
}

// NewTransport creates a QUIC listener on addr.
func NewTransport(addr string, tlsConfig *tls.Config, log *logging.Logger) (*Transport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve archive address: %w", err)
	}

	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen archive udp: %w", err)
	}

	quicConfig := &quic.Config{
		MaxIncomingStreams:    4,
		MaxIncomingUniStreams: 0,
		KeepAlivePeriod:       10 * time.Second,
		MaxIdleTimeout:        30 * time.Second,
	}

	listener, err := quic.Listen(udpConn, tlsConfig, quicConfig)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("listen archive quic: %w", err)
	}

	if log != nil {
		log.Info("archive transport listening", logging.Fields{"addr": addr})
	}

	return &Transport{
		listener:   listener,
		tlsConfig:  tlsConfig,
		quicConfig: quicConfig,
		log:        log,
		conns:      make(map[string]*quic.Conn),
	}, nil
}

// AcceptArchive waits for one incoming archive upload and streams its
// payload to w, returning the stream's declared file name.
func (t *Transport) AcceptArchive(ctx context.Context, w io.Writer) (string, error) {
	conn, err := t.listener.Accept(ctx)
	if err != nil {
		return "", fmt.Errorf("accept archive connection: %w", err)
	}
	defer conn.CloseWithError(0, "archive received")

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return "", fmt.Errorf("accept archive stream: %w", err)
	}
	defer stream.Close()

	name, err := readHeader(stream)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(w, stream); err != nil {
		return "", fmt.Errorf("read archive payload: %w", err)
	}

	if t.log != nil {
		t.log.Info("archive received", logging.Fields{"name": name, "remote": conn.RemoteAddr().String()})
	}

	return name, nil
}

// SendArchive dials addr and streams r to it under the given archive name.
func SendArchive(ctx context.Context, addr string, tlsConfig *tls.Config, name string, r io.Reader) error {
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, &quic.Config{MaxIdleTimeout: 30 * time.Second})
	if err != nil {
		return fmt.Errorf("dial archive endpoint: %w", err)
	}
	defer conn.CloseWithError(0, "archive sent")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open archive stream: %w", err)
	}
	defer stream.Close()

	if err := writeHeader(stream, name); err != nil {
		return err
	}

	if _, err := io.Copy(stream, r); err != nil {
		return fmt.Errorf("write archive payload: %w", err)
	}

	return nil
}

// writeHeader writes a [2-byte name length][name] preamble, reused by
// readHeader on the accepting side.
func writeHeader(w io.Writer, name string) error {
	if len(name) > 65535 {
		return fmt.Errorf("archive name too long: %d bytes", len(name))
	}

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(name)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write archive name length: %w", err)
	}
	if _, err := io.WriteString(w, name); err != nil {
		return fmt.Errorf("write archive name: %w", err)
	}

	return nil
}

func readHeader(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", fmt.Errorf("read archive name length: %w", err)
	}

	nameLen := binary.BigEndian.Uint16(lenBuf[:])
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return "", fmt.Errorf("read archive name: %w", err)
	}

	return string(nameBytes), nil
}

// Close shuts down the archive listener.
func (t *Transport) Close() error {
	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}
