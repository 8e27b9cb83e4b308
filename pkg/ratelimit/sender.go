// Package ratelimit provides the two packet send strategies used by the
// frame sender: an unthrottled sender and one that paces sends to a target
// byte rate, ported from unlimited_sender/rate_limited_sender in net.h.
package ratelimit

import (
	"context"
	"net"
	"time"

	"github.com/trylle/netvid/pkg/socket"
)

// Sender writes a datagram assembled from parts (e.g. header + payload) to
// addr, returning once the send is complete under whatever pacing policy
// the implementation applies.
type Sender interface {
	Send(ctx context.Context, addr *net.UDPAddr, parts ...[]byte) error
}

// Unlimited sends as fast as the socket will accept writes.
type Unlimited struct {
	Socket *socket.Socket
}

func (u *Unlimited) Send(ctx context.Context, addr *net.UDPAddr, parts ...[]byte) error {
	_, err := u.Socket.SendTo(addr, parts...)
	return err
}

// DefaultMaxRateBytesPerSecond is 90 Mbps expressed in bytes/sec.
const DefaultMaxRateBytesPerSecond = 90 * 1024 * 1024 / 8

// RateLimited paces sends so that the configured byte rate is not exceeded,
// by joining the socket write and a timer expiry before returning — the
// same two-completion join as rate_limited_sender::send, expressed with a
// goroutine reporting through a done channel instead of an io_service
// completion chain. A send error is reported as soon as it happens rather
// than after the pacing delay, matching transfer_complete/wait_complete:
// either completion handler fires immediately on error, without joining
// the other.
type RateLimited struct {
	Socket             *socket.Socket
	MaxRateBytesPerSec int
}

// NewRateLimited creates a RateLimited sender at the default rate.
func NewRateLimited(sock *socket.Socket) *RateLimited {
	return &RateLimited{Socket: sock, MaxRateBytesPerSec: DefaultMaxRateBytesPerSecond}
}

func (r *RateLimited) bytesToDelay(bytesSent int) time.Duration {
	rate := r.MaxRateBytesPerSec
	if rate <= 0 {
		rate = DefaultMaxRateBytesPerSecond
	}
	return time.Duration(bytesSent) * time.Second / time.Duration(rate)
}

func (r *RateLimited) Send(ctx context.Context, addr *net.UDPAddr, parts ...[]byte) error {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	timer := time.NewTimer(r.bytesToDelay(total))
	defer timer.Stop()

	sendDone := make(chan error, 1)
	go func() {
		_, err := r.Socket.SendTo(addr, parts...)
		sendDone <- err
	}()

	select {
	case err := <-sendDone:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
