// Package receiver implements the UDP packet-batching receive loop and the
// double-buffered frame reassembler, ported from batched_receiver and
// frame_receiver in net.h/net.cpp.
package receiver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/trylle/netvid/pkg/logging"
	"github.com/trylle/netvid/pkg/socket"
)

// MaxPacketSize bounds a single UDP datagram read.
const MaxPacketSize = 64 * 1024

// Packet is one received datagram, copied out of the read buffer.
type Packet struct {
	Data   []byte
	Remote *net.UDPAddr
}

// BatchedReceiver reads UDP packets on a dedicated goroutine and accumulates
// them into a batch, handing the whole batch to a consumer in one flip
// instead of dispatching each packet as it arrives — mirroring
// batched_receiver's threaded_packets/buffered_packets swap via a single
// posted task, expressed here with a mutex instead of an io_service post.
type BatchedReceiver struct {
	sock *socket.Socket
	log  *logging.Logger

	mu              sync.Mutex
	threadedPackets []Packet
	bufferedPackets []Packet

	// OnLivePacket fires for every packet on the read goroutine as it
	// arrives, after it has been appended to the batch and passed to
	// ExtraHook — used by raw (non-batched) consumers like the recorder.
	OnLivePacket func(Packet)

	// ExtraHook fires for every packet on the read goroutine, after it has
	// been appended to the current batch. FrameReceiver uses this to run
	// its live chunk validator inline with arrival.
	ExtraHook func(Packet)

	// OnPacket fires once per packet, from ProcessPackets, on the consumer
	// side of the flip.
	OnPacket func(Packet)

	// OnBatchComplete fires once per ProcessPackets call, after every
	// batched packet has been dispatched to OnPacket.
	OnBatchComplete func()

	// OnFlipPacketBuffer fires synchronously during FlipBuffers, while
	// still holding the batch mutex.
	OnFlipPacketBuffer func()
}

// NewBatchedReceiver creates a receiver over sock. log may be nil.
func NewBatchedReceiver(sock *socket.Socket, log *logging.Logger) *BatchedReceiver {
	return &BatchedReceiver{sock: sock, log: log}
}

// Start runs the receive loop until ctx is cancelled.
func (r *BatchedReceiver) Start(ctx context.Context) error {
	if err := r.sock.SetReceiveBuffer(); err != nil {
		return err
	}

	buf := make([]byte, MaxPacketSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.sock.Conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

		n, remote, err := r.sock.Conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if r.log != nil {
				r.log.Warn("recv failed", logging.Fields{"error": err.Error()})
			}
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		pkt := Packet{Data: data, Remote: remote}

		r.packetHandler(pkt)

		if r.ExtraHook != nil {
			r.ExtraHook(pkt)
		}

		if r.OnLivePacket != nil {
			r.OnLivePacket(pkt)
		}
	}
}

func (r *BatchedReceiver) packetHandler(pkt Packet) {
	r.mu.Lock()
	r.threadedPackets = append(r.threadedPackets, pkt)
	r.mu.Unlock()
}

// FlipBuffers swaps the read goroutine's in-progress batch with the
// consumer-owned batch from the previous round, under a single lock.
func (r *BatchedReceiver) FlipBuffers() {
	r.mu.Lock()
	r.bufferedPackets, r.threadedPackets = r.threadedPackets, r.bufferedPackets[:0]

	if r.OnFlipPacketBuffer != nil {
		r.OnFlipPacketBuffer()
	}
	r.mu.Unlock()
}

// ProcessPackets flips the batch buffer and dispatches every packet in it
// to OnPacket, then fires OnBatchComplete.
func (r *BatchedReceiver) ProcessPackets() {
	r.FlipBuffers()

	for _, pkt := range r.bufferedPackets {
		if r.OnPacket != nil {
			r.OnPacket(pkt)
		}
	}

	if r.OnBatchComplete != nil {
		r.OnBatchComplete()
	}
}
