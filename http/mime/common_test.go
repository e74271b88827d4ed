package mime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComplies(t *testing.T) {
	for _, tc := range []string{"", JSON, JSON + ";", JSON + ";param", "Application/JSON; charset=utf-8"} {
		require.True(t, Complies(JSON, tc))
	}

	require.False(t, Complies(JSON, Plain))
}

func TestOneOf(t *testing.T) {
	require.True(t, OneOf("text/plain; charset=utf-8", Compressible))
	require.True(t, OneOf(" TEXT/HTML", Compressible))
	require.False(t, OneOf(PNG, Compressible))
	require.False(t, OneOf("", Compressible))
}
