package codec

import (
	"io"

	"github.com/klauspost/compress/flate"
)

func NewDeflate() Codec {
	return baseCodec{
		token: "deflate",
		newFunc: func(level int) (Compressor, error) {
			if level < flate.HuffmanOnly || level > flate.BestCompression {
				level = flate.DefaultCompression
			}

			w, err := flate.NewWriter(io.Discard, level)
			if err != nil {
				return nil, err
			}

			return w, nil
		},
	}
}
