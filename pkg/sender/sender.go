// Package sender implements frame partitioning and sequential chunk
// emission, ported from the sender<sender_impl> template in net.h/net.cpp.
package sender

import (
	"context"
	"fmt"
	"math"
	"net"

	"github.com/trylle/netvid/pkg/logging"
	"github.com/trylle/netvid/pkg/pixel"
	"github.com/trylle/netvid/pkg/ratelimit"
	"github.com/trylle/netvid/pkg/wire"
)

type chunkProgress struct {
	buffer  pixel.Buffer
	x, y    int
	wDiv    int
	hDiv    int
	chunkID uint32
	abort   bool
}

func (c *chunkProgress) reset() {
	*c = chunkProgress{wDiv: 1, hDiv: 1, chunkID: math.MaxUint32}
}

// Sender chunks successive frames and emits a MODE header followed by the
// frame's CHUNK packets over the given rate limiter.
type Sender struct {
	limiter        ratelimit.Sender
	remoteEndpoint *net.UDPAddr
	log            *logging.Logger

	seqID   uint32
	frameID uint32
	current chunkProgress
}

// New creates a Sender targeting remote over limiter. log may be nil.
func New(limiter ratelimit.Sender, remote *net.UDPAddr, log *logging.Logger) *Sender {
	s := &Sender{
		limiter:        limiter,
		remoteEndpoint: remote,
		log:            log,
		seqID:          math.MaxUint32,
		frameID:        math.MaxUint32,
	}
	s.current.reset()
	return s
}

// Restart resets chunk emission to the start of the grid for the frame
// currently in progress, without re-sending the MODE header.
func (s *Sender) Restart() {
	s.current.x = 0
	s.current.y = 0
	s.current.chunkID = math.MaxUint32
}

// Abort stops emitting further chunks for the frame in progress.
func (s *Sender) Abort() {
	s.current.abort = true
}

// SendFrame sends f as a new frame: a MODE header, followed by every chunk
// in the frame's partition grid.
func (s *Sender) SendFrame(ctx context.Context, f *pixel.Buffer) error {
	var mh wire.ModeHeader
	mh.PktID = wire.PktMode
	mh.Width = uint32(f.Width)
	mh.Height = uint32(f.Height)
	mh.Bpp = uint32(f.Bpp)
	mh.Pitch = uint32(f.Pitch)
	mh.AspectRatio = f.AspectRatio
	s.seqID++
	mh.SeqID = s.seqID

	s.frameID++

	s.current.reset()
	s.current.wDiv, s.current.hDiv = wire.GetFrameDivisions(f.Width, f.Height, f.Bpp, wire.DefaultMaxBytes)

	data, err := mh.Marshal()
	if err != nil {
		return fmt.Errorf("marshal mode header: %w", err)
	}

	if err := s.limiter.Send(ctx, s.remoteEndpoint, data); err != nil {
		return fmt.Errorf("send mode header: %w", err)
	}

	return s.sendChunks(ctx, f)
}

func (s *Sender) sendChunks(ctx context.Context, f *pixel.Buffer) error {
	for {
		if s.current.x >= s.current.wDiv {
			s.current.x = 0
			s.current.y++
		}

		if s.current.y >= s.current.hDiv || s.current.abort {
			return nil
		}

		top, left, bottom, right := wire.GetChunk(f.Width, f.Height, s.current.wDiv, s.current.hDiv, s.current.y, s.current.x)
		s.current.x++

		s.current.chunkID++
		totalChunks := uint32(s.current.wDiv * s.current.hDiv)

		if err := s.sendChunk(ctx, f, s.current.chunkID, totalChunks, top, left, bottom, right); err != nil {
			if s.log != nil {
				s.log.Warn("send chunk failed", logging.Fields{
					"chunk_id":     s.current.chunkID,
					"total_chunks": totalChunks,
					"error":        err.Error(),
				})
			}
		}
	}
}

func (s *Sender) sendChunk(ctx context.Context, f *pixel.Buffer, chunkID, totalChunks uint32, top, left, bottom, right int) error {
	var ch wire.ChunkHeader
	ch.PktID = wire.PktChunk
	ch.X = uint32(left)
	ch.Y = uint32(top)
	ch.Width = uint32(right - left)
	ch.Bpp = uint32(f.Bpp)
	ch.Pitch = uint32((int(ch.Width)*f.Bpp + 7) / 8)
	ch.Height = uint32(bottom - top)
	ch.ChunkID = chunkID
	ch.FrameChunks = totalChunks
	ch.FrameID = s.frameID
	s.seqID++
	ch.SeqID = s.seqID

	s.current.buffer.Resize(int(ch.Width), int(ch.Height), int(ch.Pitch), int(ch.Bpp))

	for y := 0; y < int(ch.Height); y++ {
		srcOff := f.PixelOffset(left, top+y)
		dstOff := s.current.buffer.PixelOffset(0, y)
		copy(s.current.buffer.Data[dstOff:dstOff+int(ch.Pitch)], f.Data[srcOff:srcOff+int(ch.Pitch)])
	}

	header, err := ch.Marshal()
	if err != nil {
		return fmt.Errorf("marshal chunk header: %w", err)
	}

	payload := s.current.buffer.Data[:s.current.buffer.Bytes()]

	if err := s.limiter.Send(ctx, s.remoteEndpoint, header, payload); err != nil {
		return fmt.Errorf("send chunk %d/%d: %w", chunkID, totalChunks, err)
	}

	return nil
}
