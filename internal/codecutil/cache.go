package codecutil

import (
	"github.com/indigo-web/connector/http/codec"
)

// Cache holds at most one compressor instance per codec. Instances are created lazily,
// on first demand.
type Cache struct {
	level     int
	codecs    []codec.Codec
	instances []codec.Compressor
}

func NewCache(codecs []codec.Codec, level int) Cache {
	return Cache{
		level:     level,
		codecs:    codecs,
		instances: make([]codec.Compressor, len(codecs)),
	}
}

// Codecs returns the codecs the cache was built on, in the order of preference.
func (c Cache) Codecs() []codec.Codec {
	return c.codecs
}

// Get returns the compressor of the codec, or nil if the codec isn't in the cache.
func (c Cache) Get(token string) (codec.Compressor, error) {
	for i, entry := range c.codecs {
		if entry.Token() != token {
			continue
		}

		if c.instances[i] == nil {
			inst, err := entry.New(c.level)
			if err != nil {
				return nil, err
			}

			c.instances[i] = inst
		}

		return c.instances[i], nil
	}

	return nil, nil
}
