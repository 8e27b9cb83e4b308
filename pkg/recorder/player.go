package recorder

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/trylle/netvid/pkg/logging"
	"github.com/trylle/netvid/pkg/socket"
	"github.com/trylle/netvid/pkg/validator"
)

// Player replays a capture file to a remote endpoint, pacing sends to
// match the recorded inter-packet timing (scaled by Speed), ported from
// netvid_play.cpp's seek/stop/pacing loop.
type Player struct {
	reader *Reader
	sock   *socket.Socket
	remote *net.UDPAddr
	speed  float64
	log    *logging.Logger

	validator *validator.Validator

	mu            sync.Mutex
	peeked        bool
	current       *RecordedPacket
	firstPacketAt *time.Duration
	lastFrameID   *uint32

	// OnPacketSent, if set, fires after every successful send with the
	// number of payload bytes written — used to feed pkg/metrics without
	// coupling the player to any particular collector.
	OnPacketSent func(n int)
}

// NewPlayer creates a Player reading from r and sending to remote over sock
// at the given speed multiplier (1 = real time).
func NewPlayer(r *Reader, sock *socket.Socket, remote *net.UDPAddr, speed float64, log *logging.Logger) *Player {
	p := &Player{
		reader:    r,
		sock:      sock,
		remote:    remote,
		speed:     speed,
		log:       log,
		validator: validator.New(log),
	}

	p.validator.FrameCompleted = func(frameID uint32) {
		p.mu.Lock()
		if p.lastFrameID != nil && *p.lastFrameID+1 != frameID && p.log != nil {
			p.log.Warn("frame gap during playback", logging.Fields{
				"expected": *p.lastFrameID + 1,
				"got":      frameID,
			})
		}
		fid := frameID
		p.lastFrameID = &fid
		p.mu.Unlock()

		p.validator.TraceMissingChunks()
	}

	return p
}

func (p *Player) processPacket() (bool, error) {
	if p.peeked {
		p.peeked = false
		return true, nil
	}

	pkt, err := p.reader.ReadPacket()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	p.current = pkt
	p.mu.Unlock()

	p.validator.Process(pkt.Payload)

	return true, nil
}

// Seek advances past every packet before the given frame, leaving the
// first packet belonging to it "peeked" so the next processPacket call
// returns it without reading further — mirroring netvid_play's seek loop.
func (p *Player) Seek(frame uint32) error {
	if frame == 0 {
		return nil
	}

	for {
		ok, err := p.processPacket()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		fid, has := p.validator.FrameID()
		if !has || fid < frame {
			continue
		}

		p.peeked = true
		return nil
	}
}

// Run replays packets until the file is exhausted, ctx is cancelled, or
// stop (when >= 0) is reached. Sends are paced by
// (packet.Time - firstPacket.Time) / Speed relative to Run's start time.
func (p *Player) Run(ctx context.Context, stop int64) error {
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ok, err := p.processPacket()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if stop >= 0 {
			if fid, has := p.validator.FrameID(); has && int64(fid) >= stop {
				return nil
			}
		}

		p.mu.Lock()
		if p.firstPacketAt == nil {
			t := p.current.Time
			p.firstPacketAt = &t
		}
		elapsed := p.current.Time - *p.firstPacketAt
		payload := p.current.Payload
		p.mu.Unlock()

		next := time.Duration(float64(elapsed) / p.speed)
		if d := time.Until(start.Add(next)); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}

		n, err := p.sock.SendTo(p.remote, payload)
		if err != nil {
			return fmt.Errorf("send packet: %w", err)
		}
		if p.OnPacketSent != nil {
			p.OnPacketSent(n)
		}
	}
}

// StatusLine renders the one-second status line printed by netvid_play.cpp:
// "frame: N" with the last completed frame once one has completed, or
// "bytes: ?" before that (the player keeps no byte count), plus the
// timestamp of the current packet once one has been read.
func (p *Player) StatusLine() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var left string
	if p.lastFrameID != nil {
		left = fmt.Sprintf("frame: %d", *p.lastFrameID)
	} else {
		left = "bytes: ?"
	}

	if p.current == nil {
		return left
	}

	d := p.current.Time
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond

	return fmt.Sprintf("%s\ttime: %02d:%02d:%02d.%03d", left, h, m, s, ms)
}
