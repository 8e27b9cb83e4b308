package receiver

import (
	"testing"

	"github.com/trylle/netvid/pkg/socket"
	"github.com/trylle/netvid/pkg/wire"
)

func newTestFrameReceiver(t *testing.T) *FrameReceiver {
	t.Helper()
	sock := socket.New(nil)
	if err := sock.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	t.Cleanup(func() { sock.Close() })
	return NewFrameReceiver(sock, nil)
}

func modePacket(t *testing.T, width, height, pitch, bpp, seqID uint32) []byte {
	t.Helper()
	mh := wire.ModeHeader{
		Header: wire.Header{PktID: wire.PktMode, SeqID: seqID},
		Width:  width, Height: height, Pitch: pitch, Bpp: bpp,
	}
	data, err := mh.Marshal()
	if err != nil {
		t.Fatalf("ModeHeader.Marshal() error = %v", err)
	}
	return data
}

func chunkPacketWithPayload(t *testing.T, frameID, frameChunks, chunkID, x, y, width, height, pitch, bpp, seqID uint32, payload []byte) []byte {
	t.Helper()
	ch := wire.ChunkHeader{
		Header:      wire.Header{PktID: wire.PktChunk, SeqID: seqID},
		FrameID:     frameID,
		FrameChunks: frameChunks,
		ChunkID:     chunkID,
		X:           x, Y: y, Width: width, Height: height, Pitch: pitch, Bpp: bpp,
	}
	data, err := ch.Marshal()
	if err != nil {
		t.Fatalf("ChunkHeader.Marshal() error = %v", err)
	}
	return append(data, payload...)
}

func TestFrameReceiverAssemblesSingleChunkFrame(t *testing.T) {
	fr := newTestFrameReceiver(t)

	frames := 0
	fr.OnFrame = func() { frames++ }

	payload := []byte{1, 2, 3, 4} // 2x2, 1 byte/pixel, pitch 2
	fr.threadedPackets = append(fr.threadedPackets,
		Packet{Data: modePacket(t, 2, 2, 2, 8, 0)},
		Packet{Data: chunkPacketWithPayload(t, 0, 1, 0, 0, 0, 2, 2, 2, 8, 1, payload)},
	)

	fr.ProcessPackets()

	if frames != 1 {
		t.Fatalf("OnFrame fired %d times, want 1", frames)
	}

	unlock := fr.LockFrontBuffer()
	defer unlock()

	front := fr.FrontBuffer()
	if front.Width != 2 || front.Height != 2 {
		t.Fatalf("front buffer dims = %dx%d, want 2x2", front.Width, front.Height)
	}
	if string(front.Data[:4]) != string(payload) {
		t.Errorf("front buffer data = %v, want %v", front.Data[:4], payload)
	}
}

func TestFrameReceiverAssemblesMultiChunkFrame(t *testing.T) {
	fr := newTestFrameReceiver(t)

	frames := 0
	fr.OnFrame = func() { frames++ }

	// 2x2 frame split into two 1-row chunks, delivered out of order.
	fr.threadedPackets = append(fr.threadedPackets,
		Packet{Data: modePacket(t, 2, 2, 2, 8, 0)},
		Packet{Data: chunkPacketWithPayload(t, 0, 2, 1, 0, 1, 2, 1, 2, 8, 2, []byte{30, 40})},
		Packet{Data: chunkPacketWithPayload(t, 0, 2, 0, 0, 0, 2, 1, 2, 8, 1, []byte{10, 20})},
	)

	fr.ProcessPackets()

	if frames != 1 {
		t.Fatalf("OnFrame fired %d times, want 1", frames)
	}

	unlock := fr.LockFrontBuffer()
	defer unlock()

	front := fr.FrontBuffer()
	want := []byte{10, 20, 30, 40}
	if string(front.Data[:4]) != string(want) {
		t.Errorf("front buffer data = %v, want %v", front.Data[:4], want)
	}
}

func TestFrameReceiverRejectsDuplicateModePacket(t *testing.T) {
	fr := newTestFrameReceiver(t)

	var seen []wire.ModeHeader
	fr.OnModeSet = func(mh wire.ModeHeader) { seen = append(seen, mh) }

	// The same seq_id arriving twice (a retransmitted duplicate) must only
	// set the mode once: checkNew requires a strictly positive forward gap.
	fr.threadedPackets = append(fr.threadedPackets,
		Packet{Data: modePacket(t, 4, 4, 4, 8, 5)},
		Packet{Data: modePacket(t, 8, 8, 8, 8, 5)},
	)

	fr.ProcessPackets()

	if len(seen) != 1 {
		t.Fatalf("OnModeSet fired %d times, want 1 (duplicate seq_id rejected)", len(seen))
	}
	if seen[0].Width != 4 {
		t.Errorf("accepted mode width = %d, want 4 (the first delivery)", seen[0].Width)
	}
}

func TestFrameReceiverAcceptsForwardModePacket(t *testing.T) {
	fr := newTestFrameReceiver(t)

	var seen []wire.ModeHeader
	fr.OnModeSet = func(mh wire.ModeHeader) { seen = append(seen, mh) }

	fr.threadedPackets = append(fr.threadedPackets,
		Packet{Data: modePacket(t, 4, 4, 4, 8, 1)},
		Packet{Data: modePacket(t, 8, 8, 8, 8, 2)},
	)

	fr.ProcessPackets()

	if len(seen) != 2 {
		t.Fatalf("OnModeSet fired %d times, want 2 (both in-order)", len(seen))
	}
}
