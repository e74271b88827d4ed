package codecutil

import (
	"io"
	"testing"

	"github.com/indigo-web/connector/http/codec"
	"github.com/stretchr/testify/require"
)

type mockCodec struct {
	Instantiated int
}

func (m *mockCodec) Token() string {
	return "mock"
}

func (m *mockCodec) New(int) (codec.Compressor, error) {
	m.Instantiated++
	return nopCompressor{}, nil
}

type nopCompressor struct{}

func (nopCompressor) Write(b []byte) (int, error) { return len(b), nil }
func (nopCompressor) Close() error                { return nil }
func (nopCompressor) Reset(io.Writer)             {}

func TestLazyInstantiation(t *testing.T) {
	mock := new(mockCodec)
	cache := NewCache([]codec.Codec{mock}, -1)
	require.Zero(t, mock.Instantiated)

	c, err := cache.Get("rand")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Zero(t, mock.Instantiated)

	c, err = cache.Get("mock")
	require.NoError(t, err)
	require.NotNil(t, c)
	_, _ = cache.Get("mock")
	require.Equal(t, 1, mock.Instantiated)
}

func TestRealCodecs(t *testing.T) {
	cache := NewCache(codec.Lookup([]string{"gzip", "zstd"}), -1)
	require.Len(t, cache.Codecs(), 2)

	gz, err := cache.Get("gzip")
	require.NoError(t, err)
	require.NotNil(t, gz)
}
