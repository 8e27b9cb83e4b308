package recorder

import (
	"io"

	"github.com/trylle/netvid/pkg/validator"
)

// Slicer copies a seek/stop-bounded range of packets from one capture file
// to another, verbatim and without pacing, ported from netvid_slice.cpp.
type Slicer struct {
	reader *Reader
	writer *Writer

	validator *validator.Validator

	peeked  bool
	current *RecordedPacket
}

// NewSlicer creates a Slicer copying from r to w.
func NewSlicer(r *Reader, w *Writer) *Slicer {
	return &Slicer{reader: r, writer: w, validator: validator.New(nil)}
}

func (s *Slicer) processPacket() (bool, error) {
	if s.peeked {
		s.peeked = false
		return true, nil
	}

	pkt, err := s.reader.ReadPacket()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.current = pkt
	s.validator.Process(pkt.Payload)

	return true, nil
}

// Seek discards packets before the given frame, using the same
// single-packet lookahead as Player.Seek.
func (s *Slicer) Seek(frame uint32) error {
	if frame == 0 {
		return nil
	}

	for {
		ok, err := s.processPacket()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		fid, has := s.validator.FrameID()
		if !has || fid < frame {
			continue
		}

		s.peeked = true
		return nil
	}
}

// Run copies packets verbatim until the file is exhausted or stop
// (when >= 0) is reached. The packet that crosses the stop threshold is
// not written, matching netvid_slice.cpp's process_packet/stop check.
func (s *Slicer) Run(stop int64) error {
	for {
		ok, err := s.processPacket()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if stop >= 0 {
			if fid, has := s.validator.FrameID(); has && int64(fid) >= stop {
				return nil
			}
		}

		if err := s.writer.WritePacket(s.current.Time, s.current.Payload); err != nil {
			return err
		}
	}
}
