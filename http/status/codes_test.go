package status

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringCode(t *testing.T) {
	for _, code := range KnownCodes {
		require.Equal(t, strconv.Itoa(int(code)), StringCode(code))
	}

	require.Equal(t, "799", StringCode(799))
	require.Equal(t, "299", StringCode(299))
}

func TestDropsConnection(t *testing.T) {
	for _, code := range []Code{400, 408, 411, 413, 414, 500, 501, 503} {
		require.True(t, DropsConnection(code), code)
	}

	for _, code := range []Code{200, 204, 304, 404, 431, 502} {
		require.False(t, DropsConnection(code), code)
	}
}

func TestHTTPError(t *testing.T) {
	var herr HTTPError
	err := errors.Join(errors.New("reading"), ErrURITooLong)
	require.True(t, errors.As(err, &herr))
	require.Equal(t, RequestURITooLong, herr.Code)
	require.True(t, errors.Is(err, ErrURITooLong))
}

func Benchmark(b *testing.B) {
	code := KnownCodes[rand.IntN(len(KnownCodes))]
	b.ResetTimer()

	for range b.N {
		_ = StringCode(code)
	}
}
