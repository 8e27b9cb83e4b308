package sender

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/trylle/netvid/pkg/pixel"
	"github.com/trylle/netvid/pkg/wire"
)

// recordingSender collects every datagram passed to Send instead of
// touching a real socket.
type recordingSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (r *recordingSender) Send(ctx context.Context, addr *net.UDPAddr, parts ...[]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	r.sent = append(r.sent, buf)

	return nil
}

func TestSendFrameEmitsModeThenAllChunks(t *testing.T) {
	rec := &recordingSender{}
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12382}
	s := New(rec, remote, nil)

	var f pixel.Buffer
	f.ResizeAuto(64, 64, 32)
	for i := range f.Data {
		f.Data[i] = byte(i)
	}

	if err := s.SendFrame(context.Background(), &f); err != nil {
		t.Fatalf("SendFrame() error = %v", err)
	}

	if len(rec.sent) < 2 {
		t.Fatalf("sent %d packets, want at least a MODE + 1 CHUNK", len(rec.sent))
	}

	var mh wire.ModeHeader
	if err := mh.Unmarshal(rec.sent[0]); err != nil {
		t.Fatalf("first packet not a valid MODE header: %v", err)
	}
	if mh.PktID != wire.PktMode {
		t.Errorf("first packet PktID = %d, want %d", mh.PktID, wire.PktMode)
	}
	if mh.Width != 64 || mh.Height != 64 {
		t.Errorf("MODE header dims = %dx%d, want 64x64", mh.Width, mh.Height)
	}

	totalChunkBytes := 0
	var chunks []wire.ChunkHeader
	for _, pkt := range rec.sent[1:] {
		var ch wire.ChunkHeader
		if err := ch.Unmarshal(pkt); err != nil {
			t.Fatalf("chunk packet failed to parse: %v", err)
		}
		if ch.PktID != wire.PktChunk {
			t.Errorf("packet PktID = %d, want %d", ch.PktID, wire.PktChunk)
		}
		chunks = append(chunks, ch)
		totalChunkBytes += len(pkt) - wire.ChunkHeaderSize
	}

	if totalChunkBytes != f.Bytes() {
		t.Errorf("chunk payload bytes total = %d, want %d (frame size)", totalChunkBytes, f.Bytes())
	}

	if uint32(len(chunks)) != chunks[0].FrameChunks {
		t.Errorf("sent %d chunks, header declares FrameChunks = %d", len(chunks), chunks[0].FrameChunks)
	}

	seen := make(map[uint32]bool)
	for _, ch := range chunks {
		if seen[ch.ChunkID] {
			t.Errorf("duplicate chunk id %d", ch.ChunkID)
		}
		seen[ch.ChunkID] = true
	}
}

func TestSendFrameIncrementsFrameAndSeqID(t *testing.T) {
	rec := &recordingSender{}
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12382}
	s := New(rec, remote, nil)

	var f pixel.Buffer
	f.ResizeAuto(8, 8, 16)

	if err := s.SendFrame(context.Background(), &f); err != nil {
		t.Fatalf("SendFrame() #1 error = %v", err)
	}
	var mh1 wire.ModeHeader
	mh1.Unmarshal(rec.sent[0])

	rec.sent = nil
	if err := s.SendFrame(context.Background(), &f); err != nil {
		t.Fatalf("SendFrame() #2 error = %v", err)
	}
	var mh2 wire.ModeHeader
	mh2.Unmarshal(rec.sent[0])

	if mh2.SeqID <= mh1.SeqID {
		t.Errorf("second MODE seq_id = %d, want > first (%d)", mh2.SeqID, mh1.SeqID)
	}

	var ch wire.ChunkHeader
	ch.Unmarshal(rec.sent[1])
	if ch.FrameID == 0 {
		t.Error("second frame's chunks have FrameID = 0, want the frame counter to have advanced")
	}
}

// abortAfterNSender aborts the Sender as soon as n packets have been
// observed, simulating Abort() being called mid-frame from another
// goroutine while chunks are still being emitted.
type abortAfterNSender struct {
	recordingSender
	s *Sender
	n int
}

func (a *abortAfterNSender) Send(ctx context.Context, addr *net.UDPAddr, parts ...[]byte) error {
	if err := a.recordingSender.Send(ctx, addr, parts...); err != nil {
		return err
	}
	if len(a.recordingSender.sent) >= a.n {
		a.s.Abort()
	}
	return nil
}

func TestAbortStopsChunkEmissionMidFrame(t *testing.T) {
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12382}

	a := &abortAfterNSender{n: 2} // MODE + first chunk
	s := New(a, remote, nil)
	a.s = s

	var f pixel.Buffer
	f.ResizeAuto(256, 256, 32) // large enough to need several chunks

	if err := s.SendFrame(context.Background(), &f); err != nil {
		t.Fatalf("SendFrame() error = %v", err)
	}

	if len(a.sent) != 2 {
		t.Errorf("sent %d packets after Abort() mid-frame, want exactly 2 (MODE + 1 chunk)", len(a.sent))
	}
}

// flakySender fails the call at index failAt (1-indexed, counting the MODE
// header as call 1) as if the datagram never reached the socket, then lets
// every later call through.
type flakySender struct {
	mu     sync.Mutex
	sent   [][]byte
	calls  int
	failAt int
}

func (f *flakySender) Send(ctx context.Context, addr *net.UDPAddr, parts ...[]byte) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if call == f.failAt {
		return fmt.Errorf("simulated send failure on call %d", call)
	}

	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}

	f.mu.Lock()
	f.sent = append(f.sent, buf)
	f.mu.Unlock()

	return nil
}

func TestSendFrameContinuesPastAFailingChunk(t *testing.T) {
	f := &flakySender{failAt: 2} // fail the first chunk after the MODE header
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12382}
	s := New(f, remote, nil)

	var frame pixel.Buffer
	frame.ResizeAuto(256, 256, 32) // needs several chunks

	if err := s.SendFrame(context.Background(), &frame); err != nil {
		t.Fatalf("SendFrame() error = %v", err)
	}

	var mh wire.ModeHeader
	if err := mh.Unmarshal(f.sent[0]); err != nil {
		t.Fatalf("first packet not a valid MODE header: %v", err)
	}

	var lastChunkID, frameChunks uint32
	for _, pkt := range f.sent[1:] {
		var ch wire.ChunkHeader
		if err := ch.Unmarshal(pkt); err != nil {
			t.Fatalf("chunk packet failed to parse: %v", err)
		}
		frameChunks = ch.FrameChunks
		if ch.ChunkID > lastChunkID {
			lastChunkID = ch.ChunkID
		}
	}

	// One chunk (chunk id 0, the first chunk after the MODE header) never made it into
	// f.sent, but the loop must have kept going through the rest of the
	// grid instead of stopping at the failure.
	if lastChunkID != frameChunks-1 {
		t.Errorf("last observed chunk id = %d, want %d (emission continued to the end of the frame)", lastChunkID, frameChunks-1)
	}
	if len(f.sent) != int(frameChunks) { // MODE + every chunk except the one that failed
		t.Errorf("sent %d packets, want %d (MODE + all chunks but the failed one)", len(f.sent), frameChunks)
	}
}
