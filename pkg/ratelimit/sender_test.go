package ratelimit

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/trylle/netvid/pkg/socket"
)

func newLoopbackPair(t *testing.T) (sender *socket.Socket, recvConn *net.UDPConn) {
	t.Helper()

	sock := socket.New(nil)
	if err := sock.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("bind sender: %v", err)
	}
	t.Cleanup(func() { sock.Close() })

	recvAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("resolve receiver: %v", err)
	}
	conn, err := net.ListenUDP("udp", recvAddr)
	if err != nil {
		t.Fatalf("listen receiver: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return sock, conn
}

func TestUnlimitedSenderDelivers(t *testing.T) {
	sock, recvConn := newLoopbackPair(t)
	u := &Unlimited{Socket: sock}

	if err := u.Send(context.Background(), recvConn.LocalAddr().(*net.UDPAddr), []byte("hello "), []byte("world")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	buf := make([]byte, 64)
	recvConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := recvConn.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got := string(buf[:n]); got != "hello world" {
		t.Errorf("received %q, want %q", got, "hello world")
	}
}

func TestRateLimitedSenderDeliversAndDelays(t *testing.T) {
	sock, recvConn := newLoopbackPair(t)

	r := &RateLimited{Socket: sock, MaxRateBytesPerSec: 1000} // slow: 1000 B/s
	payload := make([]byte, 500)                               // should take ~0.5s

	start := time.Now()
	if err := r.Send(context.Background(), recvConn.LocalAddr().(*net.UDPAddr), payload); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 400*time.Millisecond {
		t.Errorf("Send() returned after %v, want >= ~500ms given the configured rate", elapsed)
	}

	buf := make([]byte, 1024)
	recvConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := recvConn.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != len(payload) {
		t.Errorf("received %d bytes, want %d", n, len(payload))
	}
}

func TestRateLimitedSenderReportsSendFailureImmediately(t *testing.T) {
	sock, recvConn := newLoopbackPair(t)
	_ = recvConn

	// Close the socket so the send goroutine's SendTo fails right away.
	sock.Close()

	r := &RateLimited{Socket: sock, MaxRateBytesPerSec: 1} // would otherwise pace for ~1000s
	payload := make([]byte, 1000)

	start := time.Now()
	err := r.Send(context.Background(), recvConn.LocalAddr().(*net.UDPAddr), payload)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Send() error = nil, want the closed-socket write error")
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Send() took %v to report a send failure, want it reported immediately without waiting out the pacing delay", elapsed)
	}
}

func TestRateLimitedSenderRespectsCancellation(t *testing.T) {
	sock, recvConn := newLoopbackPair(t)
	_ = recvConn

	r := &RateLimited{Socket: sock, MaxRateBytesPerSec: 1} // extremely slow
	payload := make([]byte, 10000)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Send(ctx, recvConn.LocalAddr().(*net.UDPAddr), payload)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Send() error = nil, want context deadline exceeded")
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Send() took %v, want to return promptly after context cancellation", elapsed)
	}
}
