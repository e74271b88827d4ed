package dummy

import (
	"io"
	"testing"

	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/transport"
	"github.com/stretchr/testify/require"
)

func TestConn(t *testing.T) {
	t.Run("chunks are preserved", func(t *testing.T) {
		slices := [][]byte{
			[]byte("Hello"), []byte("world!"),
		}
		conn := transport.NewConn(1, NewConn(slices...), config.Default().NET, nil)

		for _, slice := range slices {
			got, err := conn.Read()
			require.NoError(t, err)
			require.Equal(t, string(slice), string(got))
		}

		_, err := conn.Read()
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("pushback", func(t *testing.T) {
		conn := transport.NewConn(1, NewConn([]byte("Hello, world!")), config.Default().NET, nil)
		data, err := conn.Read()
		require.NoError(t, err)
		conn.Pushback(data[7:])
		require.Equal(t, "world!", string(conn.Pending()))

		data, err = conn.Read()
		require.NoError(t, err)
		require.Equal(t, "world!", string(data))
		require.Empty(t, conn.Pending())
	})

	t.Run("short buffer", func(t *testing.T) {
		cfg := config.Default().NET
		cfg.ReadBufferSize = 4
		conn := transport.NewConn(1, NewConn([]byte("Hello")), cfg, nil)

		data, err := conn.Read()
		require.NoError(t, err)
		require.Equal(t, "Hell", string(data))
		data, err = conn.Read()
		require.NoError(t, err)
		require.Equal(t, "o", string(data))
	})

	t.Run("journal", func(t *testing.T) {
		raw := NewConn()
		conn := transport.NewConn(1, raw, config.Default().NET, nil)
		_, err := conn.Write([]byte("Hello"))
		require.NoError(t, err)
		require.Equal(t, "Hello", string(raw.Written()))
		require.NoError(t, conn.Close())
		require.True(t, raw.Closed())
		require.True(t, conn.IsClosed())
	})

	t.Run("closed connection is not dispatched", func(t *testing.T) {
		d := new(Dispatcher)
		conn := transport.NewConn(7, NewConn(), config.Default().NET, d)
		require.True(t, conn.ProcessSocket(transport.OpenRead, true))
		require.NoError(t, conn.Close())
		require.False(t, conn.ProcessSocket(transport.OpenRead, true))
		require.Equal(t, []Event{{Key: 7, Event: transport.OpenRead, Dispatch: true}}, d.Journal())
	})
}
