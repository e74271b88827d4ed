// Package codec provides response body compressors negotiated via Accept-Encoding.
package codec

import (
	"io"
	"strings"

	"github.com/indigo-web/utils/strcomp"
)

type Codec interface {
	// Token returns a coding token associated with the codec itself.
	Token() string
	// New returns a fresh compressor. Level is interpreted on the gzip scale, values out of
	// range fall back to the codec's default.
	New(level int) (Compressor, error)
}

// Compressor is a streaming encoder, which can be reused for many bodies.
type Compressor interface {
	io.WriteCloser
	Reset(w io.Writer)
}

// Lookup returns codecs by their tokens in the order they were listed. Unknown tokens
// are ignored.
func Lookup(tokens []string) []Codec {
	codecs := make([]Codec, 0, len(tokens))

	for _, token := range tokens {
		for _, c := range known {
			if strcomp.EqualFold(token, c.Token()) {
				codecs = append(codecs, c)
				break
			}
		}
	}

	return codecs
}

var known = []Codec{NewGZIP(), NewDeflate(), NewZSTD()}

// Negotiate picks the first codec, whose token is accepted by the Accept-Encoding value.
// Tokens with zero quality are treated as not accepted.
func Negotiate(codecs []Codec, acceptEncoding string) Codec {
	for _, c := range codecs {
		if accepts(acceptEncoding, c.Token()) {
			return c
		}
	}

	return nil
}

func accepts(header, token string) bool {
	for len(header) > 0 {
		var entry string
		entry, header, _ = strings.Cut(header, ",")
		name, params, _ := strings.Cut(entry, ";")
		name = strings.TrimSpace(name)

		if name != "*" && !strcomp.EqualFold(name, token) {
			continue
		}

		return !zeroQuality(params)
	}

	return false
}

func zeroQuality(params string) bool {
	params = strings.TrimSpace(params)
	if len(params) < 2 || (params[0] != 'q' && params[0] != 'Q') || params[1] != '=' {
		return false
	}

	q := strings.TrimRight(params[2:], " ")
	return strings.Trim(q, "0.") == "" && len(q) > 0 && q[0] == '0'
}

type baseCodec struct {
	token   string
	newFunc func(level int) (Compressor, error)
}

func (b baseCodec) Token() string {
	return b.token
}

func (b baseCodec) New(level int) (Compressor, error) {
	return b.newFunc(level)
}
