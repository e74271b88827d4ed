package status

type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

var (
	ErrBadRequest           = NewError(BadRequest, "bad request")
	ErrBadRequestLine       = NewError(BadRequest, "malformed request line")
	ErrBadHeader            = NewError(BadRequest, "malformed header field")
	ErrBadContentLength     = NewError(BadRequest, "invalid Content-Length value")
	ErrBadEncoding          = NewError(BadRequest, "bad request encoding")
	ErrBadChunk             = NewError(BadRequest, "malformed chunk-encoded data")
	ErrURITooLong           = NewError(RequestURITooLong, "request line is too long")
	ErrHeaderFieldsTooLarge = NewError(RequestHeaderFieldsTooLarge, "too large headers section")
	ErrHeaderNameTooLarge   = NewError(RequestHeaderFieldsTooLarge, "header field name is too long")
	ErrHeaderValueTooLarge  = NewError(RequestHeaderFieldsTooLarge, "header field value is too long")
	ErrTooManyHeaders       = NewError(RequestHeaderFieldsTooLarge, "too many headers")
	ErrTrailersTooLarge     = NewError(RequestHeaderFieldsTooLarge, "too large trailer section")
	ErrExtensionTooLarge    = NewError(RequestEntityTooLarge, "too large chunk extensions")
	ErrChunkTooLarge        = NewError(RequestEntityTooLarge, "too large chunk")
	ErrBodyTooLarge         = NewError(RequestEntityTooLarge, "request body is too large")
	ErrLengthRequired       = NewError(LengthRequired, "length required")
	ErrUnsupportedEncoding  = NewError(NotImplemented, "transfer encoding is not supported")
	ErrUnsupportedProtocol  = NewError(HTTPVersionNotSupported, "HTTP version not supported")
	ErrRequestTimeout       = NewError(RequestTimeout, "request timeout")
	ErrInternalServerError  = NewError(InternalServerError, "internal server error")
	ErrServiceUnavailable   = NewError(ServiceUnavailable, "service unavailable")
	// ErrHeadersTooLarge is raised when response headers don't fit into the output header buffer.
	ErrHeadersTooLarge = NewError(InternalServerError, "response headers exceed the buffer")
)
