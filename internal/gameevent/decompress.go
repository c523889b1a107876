package gameevent

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// ErrNoDecompressor is returned by RequireZstd when the runtime cannot
// construct a zstd decompressor. Per spec §7 this is the one fatal
// condition in the whole pipeline: a PacketDecoder implementation is
// expected to perform its own per-frame decompression, and without it
// the system refuses to start.
var ErrNoDecompressor = errors.New("zstd decompressor unavailable")

// RequireZstd verifies the runtime can construct a zstd decoder, returning
// ErrNoDecompressor wrapped with the underlying cause if not. Callers
// should treat a non-nil error as fatal at startup.
func RequireZstd() (*zstd.Decoder, error) {
	d, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(ErrNoDecompressor, err.Error())
	}

	return d, nil
}
