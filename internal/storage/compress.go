package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstd encoders and decoders are safe for concurrent use and costly to build.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

func compressText(s string) []byte {
	if s == "" {
		return nil
	}
	return zstdEncoder.EncodeAll([]byte(s), nil)
}

func decompressText(b []byte, size int) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	out, err := zstdDecoder.DecodeAll(b, make([]byte, 0, size))
	if err != nil {
		return "", fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != size {
		return "", fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
	}
	return string(out), nil
}
