package http1

import (
	"strconv"

	"github.com/indigo-web/connector/http/codec"
	"github.com/indigo-web/connector/kv"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

// Sink is a stage of the response body pipeline.
type Sink interface {
	Write(b []byte) (int, error)
	// End flushes everything the stage holds and ends the next one.
	End() error
}

// OutputFilter is an encoding stage, which can be chained in front of another sink.
type OutputFilter interface {
	Sink
	SetNext(next Sink)
	Recycle()
}

// disallowedTrailers must never be sent as trailer fields.
var disallowedTrailers = []string{
	"age", "cache-control", "content-length", "content-encoding", "content-range",
	"content-type", "date", "expires", "location", "retry-after", "trailer",
	"transfer-encoding", "vary", "warning",
}

func trailerAllowed(name string) bool {
	for _, disallowed := range disallowedTrailers {
		if strcomp.EqualFold(name, disallowed) {
			return false
		}
	}

	return true
}

// ChunkedFilter encodes every write as a separate chunk.
type ChunkedFilter struct {
	next     Sink
	trailers func() *kv.Storage
	scratch  []byte
}

func NewChunkedFilter(trailers func() *kv.Storage) *ChunkedFilter {
	return &ChunkedFilter{
		trailers: trailers,
		scratch:  make([]byte, 0, 64),
	}
}

func (c *ChunkedFilter) SetNext(next Sink) {
	c.next = next
}

func (c *ChunkedFilter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	c.scratch = strconv.AppendUint(c.scratch[:0], uint64(len(b)), 16)
	c.scratch = append(c.scratch, crlf...)
	if _, err := c.next.Write(c.scratch); err != nil {
		return 0, err
	}

	if _, err := c.next.Write(b); err != nil {
		return 0, err
	}

	if _, err := c.next.Write(uf.S2B(crlf)); err != nil {
		return 0, err
	}

	return len(b), nil
}

func (c *ChunkedFilter) End() error {
	c.scratch = append(c.scratch[:0], "0\r\n"...)

	if c.trailers != nil {
		for name, value := range c.trailers().Pairs() {
			if !trailerAllowed(name) {
				continue
			}

			c.scratch = appendSanitized(c.scratch, name)
			c.scratch = append(c.scratch, ": "...)
			c.scratch = appendSanitized(c.scratch, value)
			c.scratch = append(c.scratch, crlf...)
		}
	}

	c.scratch = append(c.scratch, crlf...)
	if _, err := c.next.Write(c.scratch); err != nil {
		return err
	}

	return c.next.End()
}

func (c *ChunkedFilter) Recycle() {
	c.next = nil
	if cap(c.scratch) > 4096 {
		c.scratch = make([]byte, 0, 64)
	}
}

// IdentityFilter passes through exactly as many bytes as the announced content length.
// Anything beyond is silently dropped.
type IdentityFilter struct {
	next Sink
	left int64
}

func NewIdentityFilter() *IdentityFilter {
	return new(IdentityFilter)
}

func (i *IdentityFilter) SetLength(length int64) {
	i.left = length
}

func (i *IdentityFilter) SetNext(next Sink) {
	i.next = next
}

func (i *IdentityFilter) Write(b []byte) (int, error) {
	if i.left <= 0 {
		return len(b), nil
	}

	piece := b[:min(int64(len(b)), i.left)]
	i.left -= int64(len(piece))
	if _, err := i.next.Write(piece); err != nil {
		return 0, err
	}

	return len(b), nil
}

func (i *IdentityFilter) End() error {
	return i.next.End()
}

func (i *IdentityFilter) Recycle() {
	i.next = nil
	i.left = 0
}

// VoidFilter swallows the body. It's used for responses, which must not have any.
type VoidFilter struct {
	next Sink
}

func NewVoidFilter() *VoidFilter {
	return new(VoidFilter)
}

func (v *VoidFilter) SetNext(next Sink) {
	v.next = next
}

func (v *VoidFilter) Write(b []byte) (int, error) {
	return len(b), nil
}

func (v *VoidFilter) End() error {
	return v.next.End()
}

func (v *VoidFilter) Recycle() {
	v.next = nil
}

// CompressionFilter streams the body through the compressor.
type CompressionFilter struct {
	next       Sink
	compressor codec.Compressor
}

func NewCompressionFilter() *CompressionFilter {
	return new(CompressionFilter)
}

// SetCompressor must be called after SetNext.
func (c *CompressionFilter) SetCompressor(compressor codec.Compressor) {
	c.compressor = compressor
	compressor.Reset(c.next)
}

func (c *CompressionFilter) SetNext(next Sink) {
	c.next = next
}

func (c *CompressionFilter) Write(b []byte) (int, error) {
	return c.compressor.Write(b)
}

func (c *CompressionFilter) End() error {
	if err := c.compressor.Close(); err != nil {
		return err
	}

	return c.next.End()
}

func (c *CompressionFilter) Recycle() {
	c.next = nil
	c.compressor = nil
}
