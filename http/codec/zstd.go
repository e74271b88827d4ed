package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

func NewZSTD() Codec {
	return baseCodec{
		token: "zstd",
		newFunc: func(level int) (Compressor, error) {
			encoderLevel := zstd.SpeedDefault
			if level > 0 {
				encoderLevel = zstd.EncoderLevelFromZstd(level)
			}

			w, err := zstd.NewWriter(io.Discard,
				zstd.WithEncoderLevel(encoderLevel),
				zstd.WithEncoderConcurrency(1),
			)
			if err != nil {
				return nil, err
			}

			return w, nil
		},
	}
}
