package http1

import (
	"bytes"
	"io"
	"slices"

	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/http/status"
	"github.com/indigo-web/connector/internal/buffer"
	"github.com/indigo-web/connector/internal/hexconv"
	"github.com/indigo-web/connector/kv"
	"github.com/indigo-web/utils/uf"
)

type chunkedParserState uint8

const (
	eChunkLength chunkedParserState = iota
	eChunkExt
	eChunkLengthCR
	eChunkBody
	eChunkBodyDone
	eChunkBodyCRLF
	eChunkTrailer
	eChunkTrailerCRLF
	eChunkTrailerFieldLine
)

// maxChunkLengthDigits keeps the chunk length within int64.
const maxChunkLengthDigits = 15

type chunkedParser struct {
	state        chunkedParserState
	lengthDigits uint8
	chunkLength  int64
	extSize      int
	cfg          *config.Config
	allowed      []string
	trailerLines buffer.Buffer
	trailers     *kv.Storage
}

func newChunkedParser(cfg *config.Config, trailers *kv.Storage) *chunkedParser {
	allowed := make([]string, len(cfg.Trailers.Allowed))
	for i, name := range cfg.Trailers.Allowed {
		b := []byte(name)
		lower(b)
		allowed[i] = string(b)
	}

	return &chunkedParser{
		state:        eChunkLength,
		cfg:          cfg,
		allowed:      allowed,
		trailerLines: buffer.New(min(cfg.Trailers.MaxSize, 512), cfg.Trailers.MaxSize),
		trailers:     trailers,
	}
}

// Parse returns a chunk when it's ready, nil otherwise. io.EOF signals that the body
// is complete, allowed trailer fields are stored by then.
func (c *chunkedParser) Parse(data []byte) (chunk, extra []byte, err error) {
	switch c.state {
	case eChunkLength:
		goto chunkLength
	case eChunkExt:
		goto chunkExt
	case eChunkLengthCR:
		goto chunkLengthCR
	case eChunkBody:
		goto chunkBody
	case eChunkBodyDone:
		goto chunkBodyDone
	case eChunkBodyCRLF:
		goto chunkBodyCRLF
	case eChunkTrailer:
		goto trailer
	case eChunkTrailerCRLF:
		goto chunkTrailerCRLF
	case eChunkTrailerFieldLine:
		goto chunkTrailerFieldLine
	default:
		panic("unreachable code")
	}

chunkLength:
	for i := 0; i < len(data); i++ {
		switch char := data[i]; char {
		case '\r':
			if c.lengthDigits == 0 {
				return nil, nil, status.ErrBadChunk
			}

			data = data[i+1:]
			goto chunkLengthCR
		case '\n':
			if c.lengthDigits == 0 {
				return nil, nil, status.ErrBadChunk
			}

			data = data[i:]
			goto chunkLengthCR
		case ';', ' ', '\t':
			if c.lengthDigits == 0 {
				return nil, nil, status.ErrBadChunk
			}

			data = data[i+1:]
			goto chunkExt
		default:
			val := hexconv.Halfbyte[char]
			if val == 0xFF {
				return nil, nil, status.ErrBadChunk
			}

			if c.lengthDigits++; c.lengthDigits > maxChunkLengthDigits {
				return nil, nil, status.ErrChunkTooLarge
			}

			c.chunkLength = (c.chunkLength << 4) | int64(val)
			if c.chunkLength > c.cfg.Body.MaxChunkSize {
				return nil, nil, status.ErrChunkTooLarge
			}
		}
	}

	c.state = eChunkLength
	return nil, nil, nil

chunkExt:
	{
		// extensions aren't interpreted, but still limited in size
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			if c.extSize += len(data); c.extSize > c.cfg.Trailers.MaxExtensionSize {
				return nil, nil, status.ErrExtensionTooLarge
			}

			c.state = eChunkExt
			return nil, nil, nil
		}

		if c.extSize += boundary; c.extSize > c.cfg.Trailers.MaxExtensionSize {
			return nil, nil, status.ErrExtensionTooLarge
		}

		data = data[boundary+1:]
		if c.chunkLength == 0 {
			goto trailer
		}

		goto chunkBody
	}

chunkLengthCR:
	if len(data) == 0 {
		c.state = eChunkLengthCR
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	data = data[1:]

	if c.chunkLength == 0 {
		goto trailer
	}

	goto chunkBody

chunkBody:
	{
		if len(data) == 0 {
			c.state = eChunkBody
			return nil, nil, nil
		}

		n := min(c.chunkLength, int64(len(data)))
		c.chunkLength -= n
		chunk = data[:n]

		if c.chunkLength == 0 {
			c.state = eChunkBodyDone
		} else {
			c.state = eChunkBody
		}

		return chunk, data[n:], nil
	}

chunkBodyDone:
	if len(data) == 0 {
		c.state = eChunkBodyDone
		return nil, nil, nil
	}

	c.lengthDigits = 0
	switch data[0] {
	case '\r':
		data = data[1:]
		goto chunkBodyCRLF
	case '\n':
		data = data[1:]
		goto chunkLength
	default:
		return nil, nil, status.ErrBadChunk
	}

chunkBodyCRLF:
	if len(data) == 0 {
		c.state = eChunkBodyCRLF
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	data = data[1:]
	goto chunkLength

trailer:
	if len(data) == 0 {
		c.state = eChunkTrailer
		return nil, nil, nil
	}

	switch data[0] {
	case '\r':
		data = data[1:]
		goto chunkTrailerCRLF
	case '\n':
		c.reset()
		return nil, data[1:], io.EOF
	default:
		goto chunkTrailerFieldLine
	}

chunkTrailerCRLF:
	if len(data) == 0 {
		c.state = eChunkTrailerCRLF
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	c.reset()
	return nil, data[1:], io.EOF

chunkTrailerFieldLine:
	{
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			if !c.trailerLines.Append(data) {
				return nil, nil, status.ErrTrailersTooLarge
			}

			c.state = eChunkTrailerFieldLine
			return nil, nil, nil
		}

		if !c.trailerLines.Append(data[:boundary]) {
			return nil, nil, status.ErrTrailersTooLarge
		}

		if err = c.onTrailer(stripCR(c.trailerLines.Finish())); err != nil {
			return nil, nil, err
		}

		data = data[boundary+1:]
		goto trailer
	}
}

func (c *chunkedParser) onTrailer(line []byte) error {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return status.ErrBadChunk
	}

	name := line[:colon]
	lower(name)
	if !slices.Contains(c.allowed, uf.B2S(name)) {
		return nil
	}

	c.trailers.Add(uf.B2S(name), uf.B2S(trimSpaces(line[colon+1:])))
	return nil
}

func (c *chunkedParser) reset() {
	c.state = eChunkLength
	c.lengthDigits = 0
	c.chunkLength = 0
	c.extSize = 0
}

// Recycle prepares the parser for the next body. Trailers of the previous one become invalid.
func (c *chunkedParser) Recycle() {
	c.reset()
	c.trailerLines.Clear()
}
