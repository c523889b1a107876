// Package frame extracts 4-byte-length-prefixed records from a contiguous
// byte stream, the application-level framing the scene server uses.
package frame

import (
	"encoding/binary"

	"go.uber.org/zap"
)

// MinFrameLen and MaxFrameLen bound a valid frame's announced length,
// inclusive of the 4-byte length prefix itself, per spec §3/§6.
const (
	MinFrameLen = 4
	MaxFrameLen = 0x0F_FFFF
)

// Source is the minimal interface the splitter needs from the byte stream
// it reads frames out of; tcpreassembly.Reassembler satisfies it.
type Source interface {
	Assembled() []byte
	Consume(n int)
	Flush()
}

// Splitter repeatedly slices complete frames off a Source's assembled
// buffer and invokes a callback with each frame's body (the bytes after
// the 4-byte length prefix).
type Splitter struct {
	src Source
	log *zap.Logger
}

// New creates a Splitter reading from src.
func New(src Source, log *zap.Logger) *Splitter {
	if log == nil {
		log = zap.NewNop()
	}

	return &Splitter{src: src, log: log.Named("frame")}
}

// Split drains every complete frame currently available and calls emit for
// each one's body in order. It stops when fewer than 4 bytes remain.
func (s *Splitter) Split(emit func(body []byte)) {
	for {
		buf := s.src.Assembled()
		if len(buf) < MinFrameLen {
			return
		}

		length := int(binary.BigEndian.Uint32(buf[:4]))

		if length < MinFrameLen || length > MaxFrameLen {
			s.log.Error("invalid frame length, flushing assembly buffer", zap.Int("length", length))
			s.src.Flush()

			return
		}

		if len(buf) < length {
			// not enough data yet; wait for more.
			return
		}

		body := make([]byte, length-MinFrameLen)
		copy(body, buf[MinFrameLen:length])

		s.src.Consume(length)

		emit(body)
	}
}
