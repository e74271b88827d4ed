package http1

import (
	"bytes"

	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/http"
	"github.com/indigo-web/connector/http/method"
	"github.com/indigo-web/connector/http/proto"
	"github.com/indigo-web/connector/http/status"
	"github.com/indigo-web/connector/internal/buffer"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

type parserState uint8

const (
	eMethod parserState = iota + 1
	ePath
	eQuery
	eProtocol
	eHeaderName
	eHeaderValue
	eHeaderBlockCR
)

// Parser is a resumable parser of the request line and the header block. Data can be
// fed in pieces of any size; parsed values are copied, so the fed data may be reused
// right after.
type Parser struct {
	state        parserState
	cfg          *config.Config
	request      *http.Request
	requestLine  buffer.Buffer
	headers      buffer.Buffer
	name         string
	headersCount int
}

func NewParser(cfg *config.Config, request *http.Request) *Parser {
	return &Parser{
		state:       eMethod,
		cfg:         cfg,
		request:     request,
		requestLine: buffer.New(min(cfg.URI.MaxRequestLineSize, 512), cfg.URI.MaxRequestLineSize),
		headers:     buffer.New(min(cfg.Headers.MaxSize, 4096), cfg.Headers.MaxSize),
	}
}

// Started tells whether any byte of the current request was consumed.
func (p *Parser) Started() bool {
	return p.state != eMethod || p.requestLine.SegmentLength() > 0
}

// Parse consumes the data until the header block is over. In that case done is true and
// extra holds the bytes following the block. Errors are always fatal for the connection.
func (p *Parser) Parse(data []byte) (done bool, extra []byte, err error) {
	request := p.request
	requestLine := &p.requestLine
	headers := &p.headers

	switch p.state {
	case eMethod:
		goto method
	case ePath:
		goto path
	case eQuery:
		goto query
	case eProtocol:
		goto protocol
	case eHeaderName:
		goto headerName
	case eHeaderValue:
		goto headerValue
	case eHeaderBlockCR:
		goto headerBlockCR
	default:
		panic("unreachable code")
	}

method:
	if requestLine.SegmentLength() == 0 {
		// empty lines preceding the request line are ignored
		for len(data) > 0 && (data[0] == '\r' || data[0] == '\n') {
			data = data[1:]
		}
	}

	{
		sp := bytes.IndexByte(data, ' ')
		if sp == -1 {
			if bytes.IndexByte(data, '\n') != -1 {
				return true, nil, status.ErrBadRequestLine
			}

			if !requestLine.Append(data) {
				return true, nil, status.ErrURITooLong
			}

			p.state = eMethod
			return false, nil, nil
		}

		if !requestLine.Append(data[:sp]) {
			return true, nil, status.ErrURITooLong
		}

		raw := requestLine.Finish()
		if len(raw) == 0 {
			return true, nil, status.ErrBadRequestLine
		}

		request.RawMethod = uf.B2S(raw)
		request.Method = method.Parse(request.RawMethod)
		data = data[sp+1:]
	}

path:
	for i, char := range data {
		switch char {
		case ' ', '?':
			if !requestLine.Append(data[:i]) {
				return true, nil, status.ErrURITooLong
			}

			request.Path = uf.B2S(requestLine.Finish())
			if len(request.Path) == 0 {
				return true, nil, status.ErrBadRequestLine
			}

			data = data[i+1:]
			if char == '?' {
				goto query
			}

			goto protocol
		case '\r', '\n':
			return true, nil, status.ErrBadRequestLine
		}
	}

	if !requestLine.Append(data) {
		return true, nil, status.ErrURITooLong
	}

	p.state = ePath
	return false, nil, nil

query:
	for i, char := range data {
		switch char {
		case ' ':
			if !requestLine.Append(data[:i]) {
				return true, nil, status.ErrURITooLong
			}

			request.Query = uf.B2S(requestLine.Finish())
			data = data[i+1:]
			goto protocol
		case '\r', '\n':
			return true, nil, status.ErrBadRequestLine
		}
	}

	if !requestLine.Append(data) {
		return true, nil, status.ErrURITooLong
	}

	p.state = eQuery
	return false, nil, nil

protocol:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !requestLine.Append(data) {
				return true, nil, status.ErrURITooLong
			}

			p.state = eProtocol
			return false, nil, nil
		}

		if !requestLine.Append(data[:lf]) {
			return true, nil, status.ErrURITooLong
		}

		raw := stripCR(requestLine.Finish())
		if proto.FromBytes(raw) == proto.Unknown {
			if proto.IsHTTP(raw) {
				return true, nil, status.ErrUnsupportedProtocol
			}

			return true, nil, status.ErrBadRequestLine
		}

		request.Protocol = uf.B2S(raw)
		data = data[lf+1:]
	}

headerName:
	{
		if len(data) == 0 {
			p.state = eHeaderName
			return false, nil, nil
		}

		if headers.SegmentLength() == 0 {
			switch data[0] {
			case '\n':
				p.state = eMethod
				return true, data[1:], p.finalize()
			case '\r':
				data = data[1:]
				goto headerBlockCR
			case ' ', '\t':
				// obsolete line folding
				return true, nil, status.ErrBadHeader
			}
		}

		colon := bytes.IndexByte(data, ':')
		name := data
		if colon != -1 {
			name = data[:colon]
		}

		if bytes.IndexByte(name, '\n') != -1 {
			return true, nil, status.ErrBadHeader
		}

		if headers.SegmentLength()+len(name) > p.cfg.Headers.MaxNameSize {
			return true, nil, status.ErrHeaderNameTooLarge
		}

		if !headers.Append(name) {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		lower(headers.Preview()[headers.SegmentLength()-len(name):])

		if colon == -1 {
			p.state = eHeaderName
			return false, nil, nil
		}

		raw := headers.Finish()
		if len(raw) == 0 || bytes.ContainsAny(raw, " \t\r") {
			return true, nil, status.ErrBadHeader
		}

		if p.headersCount++; p.headersCount > p.cfg.Headers.MaxCount {
			return true, nil, status.ErrTooManyHeaders
		}

		p.name = uf.B2S(raw)
		data = data[colon+1:]
	}

headerValue:
	{
		lf := bytes.IndexByte(data, '\n')
		value := data
		if lf != -1 {
			value = data[:lf]
		}

		if headers.SegmentLength()+len(value) > p.cfg.Headers.MaxValueSize+1 {
			return true, nil, status.ErrHeaderValueTooLarge
		}

		if !headers.Append(value) {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		if lf == -1 {
			p.state = eHeaderValue
			return false, nil, nil
		}

		data = data[lf+1:]
		if err = p.onHeader(p.name, uf.B2S(trimSpaces(stripCR(headers.Finish())))); err != nil {
			return true, nil, err
		}

		goto headerName
	}

headerBlockCR:
	if len(data) == 0 {
		p.state = eHeaderBlockCR
		return false, nil, nil
	}

	if data[0] != '\n' {
		return true, nil, status.ErrBadHeader
	}

	p.state = eMethod
	return true, data[1:], p.finalize()
}

func (p *Parser) onHeader(name, value string) error {
	request := p.request
	request.Headers.Add(name, value)

	switch name {
	case "content-length":
		length, ok := parseContentLength(value)
		if !ok || (request.ContentLength >= 0 && request.ContentLength != length) {
			return status.ErrBadContentLength
		}

		request.ContentLength = length
	case "content-type":
		request.ContentType = value
	case "transfer-encoding":
		return p.onTransferEncoding(value)
	case "expect":
		if strcomp.EqualFold(value, "100-continue") {
			request.SetExpectContinue(true)
		}
	}

	return nil
}

func (p *Parser) onTransferEncoding(value string) error {
	request := p.request

	for len(value) > 0 {
		var token string
		token, value = cutbyte(value, ',')
		token = uf.B2S(trimSpaces(uf.S2B(token)))

		switch {
		case len(token) == 0:
		case strcomp.EqualFold(token, "identity"):
		case request.Chunked:
			// chunked must always be the last one
			return status.ErrBadEncoding
		case strcomp.EqualFold(token, "chunked"):
			request.Chunked = true
		default:
			return status.ErrUnsupportedEncoding
		}
	}

	return nil
}

func (p *Parser) finalize() error {
	p.headersCount = 0

	if p.request.Chunked {
		// the transfer coding overrides the length
		p.request.ContentLength = -1
	}

	return nil
}

// Reset drops everything parsed so far. Strings of the previous request become invalid.
func (p *Parser) Reset() {
	p.state = eMethod
	p.headersCount = 0
	p.name = ""
	p.requestLine.Clear()
	p.headers.Clear()
}

func parseContentLength(value string) (length int64, ok bool) {
	if len(value) == 0 || len(value) > 18 {
		return 0, false
	}

	for i := 0; i < len(value); i++ {
		char := value[i]
		if char < '0' || char > '9' {
			return 0, false
		}

		length = length*10 + int64(char-'0')
	}

	return length, true
}

func lower(b []byte) {
	for i, char := range b {
		if char >= 'A' && char <= 'Z' {
			b[i] = char | 0x20
		}
	}
}

func trimSpaces(b []byte) []byte {
	return bytes.Trim(b, " \t")
}

func stripCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}

	return b
}

func cutbyte(str string, sep byte) (prefix, postfix string) {
	for i := 0; i < len(str); i++ {
		if str[i] == sep {
			return str[:i], str[i+1:]
		}
	}

	return str, ""
}
