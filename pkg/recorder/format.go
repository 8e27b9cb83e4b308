// Package recorder implements the netvid capture file format (record),
// timed replay (play), and verbatim packet copy (slice), ported from
// netvid_record.cpp, netvid_play.cpp and netvid_slice.cpp.
//
// Each recorded packet is a {timestamp int64 nanoseconds, size uint32,
// payload} triple. The original C++ tool serialized the platform's native
// steady_clock::duration (16 bytes on most targets) verbatim; this port
// normalizes the timestamp to a portable little-endian int64 nanosecond
// count instead (see the open question resolution in SPEC_FULL.md).
package recorder

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

const packetHeaderSize = 8 + 4

// RecordedPacket is one packet read back out of a capture file.
type RecordedPacket struct {
	Time    time.Duration
	Payload []byte
}

// Writer appends packets to a capture file.
type Writer struct {
	w       io.Writer
	written int64
}

// NewWriter wraps w as a capture file writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WritePacket appends one packet record.
func (rw *Writer) WritePacket(t time.Duration, payload []byte) error {
	var hdr [packetHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(t.Nanoseconds()))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(payload)))

	if _, err := rw.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write packet header: %w", err)
	}
	if _, err := rw.w.Write(payload); err != nil {
		return fmt.Errorf("write packet payload: %w", err)
	}

	rw.written += int64(len(hdr)) + int64(len(payload))

	return nil
}

// BytesWritten returns the total bytes appended so far.
func (rw *Writer) BytesWritten() int64 {
	return rw.written
}

// Reader reads packets back out of a capture file in order.
type Reader struct {
	r io.Reader
}

// NewReader wraps r as a capture file reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadPacket reads the next packet record, returning io.EOF once the file
// is exhausted. A record header cut short by the end of the file also
// reads as io.EOF; a payload cut short is an error.
func (rr *Reader) ReadPacket() (*RecordedPacket, error) {
	var hdr [packetHeaderSize]byte

	if _, err := io.ReadFull(rr.r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read packet header: %w", err)
	}

	nanos := binary.LittleEndian.Uint64(hdr[0:8])
	size := binary.LittleEndian.Uint32(hdr[8:12])

	payload := make([]byte, size)
	if _, err := io.ReadFull(rr.r, payload); err != nil {
		return nil, fmt.Errorf("read packet payload: %w", err)
	}

	return &RecordedPacket{Time: time.Duration(nanos), Payload: payload}, nil
}
