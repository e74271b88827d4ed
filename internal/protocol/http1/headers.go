package http1

import (
	"strings"

	"github.com/indigo-web/connector/http/mime"
	"github.com/indigo-web/utils/strcomp"
)

func equalFold(a, b string) bool {
	return strcomp.EqualFold(a, b)
}

// hasToken reports whether the comma-separated header value contains the token.
func hasToken(value, token string) bool {
	for len(value) > 0 {
		var elem string
		elem, value, _ = strings.Cut(value, ",")
		if equalFold(strings.Trim(elem, " \t"), token) {
			return true
		}
	}

	return false
}

// isManagedHeader tells whether the response header is produced by the processor itself,
// so values set by the application directly are ignored.
func isManagedHeader(name string) bool {
	return equalFold(name, "content-type") ||
		equalFold(name, "content-length") ||
		equalFold(name, "transfer-encoding")
}

func compressible(contentType string, types []string) bool {
	return mime.OneOf(contentType, types)
}
