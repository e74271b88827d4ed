package mime

import (
	"strings"

	"github.com/indigo-web/utils/strcomp"
)

type MIME = string

const (
	OctetStream MIME = "application/octet-stream"
	Plain       MIME = "text/plain"
	HTML        MIME = "text/html"
	XML         MIME = "text/xml"
	CSS         MIME = "text/css"
	JS          MIME = "text/javascript"
	JSON        MIME = "application/json"
	AppXML      MIME = "application/xml"
	AppJS       MIME = "application/javascript"
	GZIP        MIME = "application/gzip"
	ZSTD        MIME = "application/zstd"
	PNG         MIME = "image/png"
	JPEG        MIME = "image/jpeg"
)

// Compressible lists the types worth compressing by default.
var Compressible = []MIME{HTML, XML, Plain, CSS, JS, AppJS, JSON, AppXML}

// Base strips parameters off the content type.
func Base(contentType string) MIME {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.Trim(base, " \t")
}

// Complies returns whether two MIMEs are compatible. Empty MIME is
// considered compatible with any other MIME
func Complies(mime MIME, with string) bool {
	with = Base(with)
	return len(with) == 0 || strcomp.EqualFold(with, mime)
}

// OneOf reports whether the content type, parameters aside, is any of the listed ones.
func OneOf(contentType string, types []MIME) bool {
	base := Base(contentType)
	if len(base) == 0 {
		return false
	}

	for _, t := range types {
		if strcomp.EqualFold(base, t) {
			return true
		}
	}

	return false
}
