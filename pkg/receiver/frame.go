package receiver

import (
	"sync"

	"github.com/trylle/netvid/pkg/logging"
	"github.com/trylle/netvid/pkg/pixel"
	"github.com/trylle/netvid/pkg/socket"
	"github.com/trylle/netvid/pkg/validator"
	"github.com/trylle/netvid/pkg/wire"
)

// SeqDiffOutOfRange is half the uint32 range: a seq_id gap at or beyond
// this is treated as wraparound/staleness rather than forward progress.
const SeqDiffOutOfRange uint32 = 4294967295 / 2

// FrameReceiver assembles a stream of MODE/CHUNK packets into complete
// frames behind a double buffer: a back buffer that chunks are written into
// as ProcessPackets dispatches each batch, and a consumer-visible front
// buffer that is only ever touched under frontMu, flipped once per
// completed frame.
type FrameReceiver struct {
	*BatchedReceiver

	backBuffer  pixel.Buffer
	frontBuffer pixel.Buffer
	frontMu     sync.Mutex

	OnModeSet func(wire.ModeHeader)
	OnChunk   func(wire.ChunkHeader, []byte)
	OnFrame   func()

	lastModeSet  *uint32
	currentSeqID *uint32

	framePending   bool
	buffersFlipped bool

	condMu                 sync.Mutex
	cond                   *sync.Cond
	framePendingProcessing bool

	liveValidator      *validator.Validator
	processedValidator *validator.Validator

	log *logging.Logger
}

// NewFrameReceiver creates a FrameReceiver over sock.
func NewFrameReceiver(sock *socket.Socket, log *logging.Logger) *FrameReceiver {
	fr := &FrameReceiver{
		BatchedReceiver:     NewBatchedReceiver(sock, log),
		liveValidator:       validator.New(log),
		processedValidator:  validator.New(log),
		log:                 log,
	}
	fr.cond = sync.NewCond(&fr.condMu)
	fr.wireCallbacks()
	return fr
}

func (fr *FrameReceiver) wireCallbacks() {
	fr.OnFlipPacketBuffer = func() {
		fr.condMu.Lock()
		defer fr.condMu.Unlock()
		fr.framePendingProcessing = false
	}

	fr.processedValidator.FrameCompleted = func(frameID uint32) {
		fr.processedValidator.TraceMissingChunks()
		fr.framePending = false
		fr.flipBuffers()
	}

	fr.processedValidator.OnChunk = func(header wire.ChunkHeader, payload []byte) {
		fr.framePending = true
		if fr.OnChunk != nil {
			fr.OnChunk(header, payload)
		}
	}

	fr.OnPacket = func(pkt Packet) {
		var rh wire.Header
		if err := rh.Unmarshal(pkt.Data); err != nil {
			return
		}

		seqID := rh.SeqID
		fr.currentSeqID = &seqID
		fr.expire(&fr.lastModeSet)

		if rh.PktID == wire.PktMode && fr.checkNew(&fr.lastModeSet, rh.SeqID) {
			var rmh wire.ModeHeader
			if err := rmh.Unmarshal(pkt.Data); err == nil && fr.OnModeSet != nil {
				fr.OnModeSet(rmh)
			}
		}

		fr.processedValidator.Process(pkt.Data)
	}

	fr.OnBatchComplete = func() {
		if fr.buffersFlipped {
			fr.buffersFlipped = false
			if fr.OnFrame != nil {
				fr.OnFrame()
			}
		}
	}

	fr.OnModeSet = func(rmh wire.ModeHeader) {
		fr.backBuffer.Resize(int(rmh.Width), int(rmh.Height), int(rmh.Pitch), int(rmh.Bpp))
	}

	fr.OnChunk = func(header wire.ChunkHeader, data []byte) {
		w := maxInt(fr.backBuffer.Width, int(header.Width+header.X))

		fr.backBuffer.Resize(
			w,
			maxInt(fr.backBuffer.Height, int(header.Height+header.Y)),
			maxInt(fr.backBuffer.Pitch, (w*int(header.Bpp)+7)/8),
			int(header.Bpp),
		)

		rowBytes := (int(header.Width)*int(header.Bpp) + 7) / 8

		for y := 0; y < int(header.Height); y++ {
			srcOff := int(header.Pitch) * y
			if srcOff+rowBytes > len(data) {
				break
			}
			dstOff := fr.backBuffer.PixelOffset(int(header.X), int(header.Y)+y)
			copy(fr.backBuffer.Data[dstOff:dstOff+rowBytes], data[srcOff:srcOff+rowBytes])
		}
	}

	fr.liveValidator.FrameCompleted = func(uint32) {
		fr.condMu.Lock()
		fr.framePendingProcessing = true
		fr.condMu.Unlock()
		fr.cond.Signal()
	}

	fr.ExtraHook = func(pkt Packet) {
		fr.liveValidator.Process(pkt.Data)
	}
}

func (fr *FrameReceiver) flipBuffers() {
	fr.frontMu.Lock()
	defer fr.frontMu.Unlock()

	fr.frontBuffer, fr.backBuffer = fr.backBuffer, fr.frontBuffer
	fr.backBuffer.Resize(fr.frontBuffer.Width, fr.frontBuffer.Height, fr.frontBuffer.Pitch, fr.frontBuffer.Bpp)
	copy(fr.backBuffer.Data, fr.frontBuffer.Data[:fr.frontBuffer.Bytes()])
	fr.buffersFlipped = true
}

func (fr *FrameReceiver) expire(seqID **uint32) {
	if *seqID == nil {
		return
	}
	if fr.currentSeqID == nil || (*fr.currentSeqID-**seqID) >= SeqDiffOutOfRange {
		*seqID = nil
	}
}

func (fr *FrameReceiver) checkNew(stored **uint32, newSeqID uint32) bool {
	if *stored == nil || ((newSeqID-**stored) < SeqDiffOutOfRange && (newSeqID-**stored) > 0) {
		v := newSeqID
		*stored = &v
		return true
	}
	return false
}

// WaitForFrame blocks until a frame has finished assembling on the live
// validator, or returns immediately if one already is.
func (fr *FrameReceiver) WaitForFrame() {
	fr.condMu.Lock()
	defer fr.condMu.Unlock()

	if fr.framePendingProcessing {
		return
	}

	fr.cond.Wait()
}

// LockFrontBuffer locks the front buffer for reading and returns the
// unlock function.
func (fr *FrameReceiver) LockFrontBuffer() func() {
	fr.frontMu.Lock()
	return fr.frontMu.Unlock
}

// FrontBuffer returns the front (consumer-visible) pixel buffer. Callers
// must hold the lock from LockFrontBuffer while reading it.
func (fr *FrameReceiver) FrontBuffer() *pixel.Buffer {
	return &fr.frontBuffer
}

// FrontFrameID returns the frame_id of the frame currently being assembled
// into the back buffer.
func (fr *FrameReceiver) FrontFrameID() (uint32, bool) {
	return fr.processedValidator.FrameID()
}

// Run drives the consumer side of the handoff: wait for a completed frame,
// then process the batch that completed it, repeating until done is closed.
func (fr *FrameReceiver) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		fr.WaitForFrame()
		fr.ProcessPackets()
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
