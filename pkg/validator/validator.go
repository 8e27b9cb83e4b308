// Package validator implements the chunk reassembly state machine,
// ported from chunk_validator in the original net.h/net.cpp.
package validator

import (
	"strconv"
	"strings"
	"time"

	"github.com/trylle/netvid/pkg/logging"
	"github.com/trylle/netvid/pkg/wire"
)

// frameSwitchWindow bounds how far a new frame_id may jump ahead of the
// currently-tracked one and still trigger a frame switch; chunks for a
// frame_id outside the window are rejected as stale (until the idle timeout
// lets any frame_id take over).
const frameSwitchWindow = 60

// idleTimeout is how long a frame may sit incomplete before the next
// chunk for any frame_id forces a switch, even without a contiguous jump.
const idleTimeout = 3 * time.Second

// ChunkCallback is invoked for every chunk accepted into the frame
// currently being assembled.
type ChunkCallback func(header wire.ChunkHeader, payload []byte)

// FrameCompletedCallback is invoked once per frame, whether it completed
// fully or was abandoned because a newer frame_id arrived.
type FrameCompletedCallback func(frameID uint32)

// Validator reassembles CHUNK packets into complete frames, tolerating
// loss, reordering, and 32-bit sequence wraparound.
type Validator struct {
	frameIDAssignTime time.Time
	frameID           *uint32
	chunksReceived    []bool

	OnChunk        ChunkCallback
	FrameCompleted FrameCompletedCallback

	log *logging.Logger
}

// New creates a Validator. log may be nil to disable logging.
func New(log *logging.Logger) *Validator {
	return &Validator{log: log}
}

// Process parses data as a CHUNK packet and folds it into the current
// frame's reassembly state. Returns false if data is not a chunk packet.
func (v *Validator) Process(data []byte) bool {
	var ch wire.ChunkHeader
	if err := ch.Unmarshal(data); err != nil || ch.PktID != wire.PktChunk {
		return false
	}

	now := time.Now()
	diff := ch.FrameID - boolToUint32(v.frameID) // wraps, like the original's unsigned subtraction
	frameSwitch := v.frameID == nil ||
		v.frameIDAssignTime.Add(idleTimeout).Before(now) ||
		(diff != 0 && diff < frameSwitchWindow)

	if frameSwitch {
		if v.frameID != nil {
			if v.FrameCompleted != nil {
				v.FrameCompleted(*v.frameID)
			}

			if ch.FrameID > *v.frameID+1 && v.log != nil {
				fields := logging.Fields{"from": *v.frameID + 1}
				if ch.FrameID > *v.frameID+2 {
					fields["to"] = ch.FrameID - 1
				}
				v.log.Warn("missed frame", fields)
			}
		}

		fid := ch.FrameID
		v.frameID = &fid
		v.frameIDAssignTime = now
		v.chunksReceived = nil
	}

	if v.frameID == nil || *v.frameID != ch.FrameID {
		return true
	}

	if uint32(len(v.chunksReceived)) != ch.FrameChunks {
		v.chunksReceived = make([]bool, ch.FrameChunks)
	}

	if ch.ChunkID < uint32(len(v.chunksReceived)) {
		v.chunksReceived[ch.ChunkID] = true
	}

	if v.OnChunk != nil && len(data) >= wire.ChunkHeaderSize {
		v.OnChunk(ch, data[wire.ChunkHeaderSize:])
	}

	if !v.complete() {
		return true
	}

	if v.FrameCompleted != nil {
		v.FrameCompleted(*v.frameID)
	}

	v.frameID = nil
	v.chunksReceived = nil

	return true
}

func boolToUint32(frameID *uint32) uint32 {
	if frameID == nil {
		return 0
	}
	return *frameID
}

func (v *Validator) complete() bool {
	for _, got := range v.chunksReceived {
		if !got {
			return false
		}
	}
	return true
}

// Complete reports whether every chunk of the frame currently being
// assembled has been received.
func (v *Validator) Complete() bool {
	return v.complete()
}

// FrameID returns the frame_id currently being assembled, if any.
func (v *Validator) FrameID() (uint32, bool) {
	if v.frameID == nil {
		return 0, false
	}
	return *v.frameID, true
}

// TraceMissingChunks logs the contiguous runs of chunks not yet received
// for the frame currently being assembled.
func (v *Validator) TraceMissingChunks() {
	if v.complete() || v.log == nil {
		return
	}

	var ranges strings.Builder
	missing := 0
	first := true

	for i := 0; i < len(v.chunksReceived); {
		if v.chunksReceived[i] {
			i++
			continue
		}

		j := i
		for j < len(v.chunksReceived) && !v.chunksReceived[j] {
			j++
		}
		missing += j - i

		if !first {
			ranges.WriteString(", ")
		}
		first = false

		ranges.WriteString(strconv.Itoa(i))
		if j-i > 1 {
			ranges.WriteString("-")
			ranges.WriteString(strconv.Itoa(j - 1))
		}

		i = j
	}

	frameID := boolToUint32(v.frameID)
	v.log.Warn("missing chunks", logging.Fields{
		"frame_id": frameID,
		"ranges":   ranges.String(),
		"count":    missing,
	})
}
