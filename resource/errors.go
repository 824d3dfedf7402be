package resource

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a request failure.
type Kind int

const (
	// KindNetwork is a transport failure: no response was received.
	KindNetwork Kind = iota
	// KindHTTPStatus is a non-2xx response.
	KindHTTPStatus
	// KindValidation is a payload rejected before sending or by the backend
	// with 400 or 422.
	KindValidation
	// KindDecode is a 2xx response whose body could not be decoded.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http_status"
	case KindValidation:
		return "validation"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RequestError is the single error shape produced by Client. StatusCode is
// zero unless a response was received.
type RequestError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Method     string
	URL        string
	Err        error
}

func (e *RequestError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.URL, e.StatusCode, msg)
	}
	if e.Method == "" {
		return msg
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, msg)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewValidationError reports a payload that failed client-side validation.
func NewValidationError(err error) *RequestError {
	return &RequestError{
		Kind:    KindValidation,
		Message: err.Error(),
		Err:     err,
	}
}

func statusError(method, url string, status int, message string) *RequestError {
	kind := KindHTTPStatus
	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		kind = KindValidation
	}
	return &RequestError{
		Kind:       kind,
		StatusCode: status,
		Message:    message,
		Method:     method,
		URL:        url,
	}
}

// AsRequestError returns the RequestError in err's chain.
func AsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

// StatusCode returns the response status carried by err, or zero.
func StatusCode(err error) int {
	if reqErr, ok := AsRequestError(err); ok {
		return reqErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsValidation reports whether err is a rejected payload.
func IsValidation(err error) bool {
	reqErr, ok := AsRequestError(err)
	return ok && reqErr.Kind == KindValidation
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	reqErr, ok := AsRequestError(err)
	return ok && reqErr.Kind == KindNetwork
}
