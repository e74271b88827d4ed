package codec

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

func NewGZIP() Codec {
	return baseCodec{
		token: "gzip",
		newFunc: func(level int) (Compressor, error) {
			if level < gzip.HuffmanOnly || level > gzip.BestCompression {
				level = gzip.DefaultCompression
			}

			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				return nil, err
			}

			return w, nil
		},
	}
}
