package safefetch

import (
	"errors"
	"fmt"
)

// Code identifies one failure class of the fetch pipeline.
type Code int

const (
	CodeUnknown Code = iota
	CodeMalformedURL
	CodeProtocolNotAllowed
	CodePortNotAllowed
	CodeBlockedAddress
	CodeResolutionFailure
	CodeNetworkError
	CodeTimeout
	CodeContentTooLarge
	CodeUnsupportedContentType
	CodeTooManyRedirects
)

var codeNames = map[Code]string{
	CodeUnknown:                "unknown",
	CodeMalformedURL:           "malformed_url",
	CodeProtocolNotAllowed:     "protocol_not_allowed",
	CodePortNotAllowed:         "port_not_allowed",
	CodeBlockedAddress:         "blocked_address",
	CodeResolutionFailure:      "resolution_failure",
	CodeNetworkError:           "network_error",
	CodeTimeout:                "timeout",
	CodeContentTooLarge:        "content_too_large",
	CodeUnsupportedContentType: "unsupported_content_type",
	CodeTooManyRedirects:       "too_many_redirects",
}

// Messages returned to callers. They never include addresses or resolver output.
var publicMessages = map[Code]string{
	CodeUnknown:                "Failed to analyze URL",
	CodeMalformedURL:           "The URL is not well formed",
	CodeProtocolNotAllowed:     "Only http and https URLs can be analyzed",
	CodePortNotAllowed:         "The URL uses a port that is not allowed",
	CodeBlockedAddress:         "The URL points to a private or reserved network address",
	CodeResolutionFailure:      "The hostname could not be resolved",
	CodeNetworkError:           "The page could not be retrieved",
	CodeTimeout:                "The page took too long to respond",
	CodeContentTooLarge:        "The page is too large to analyze",
	CodeUnsupportedContentType: "The URL does not point to an HTML page",
	CodeTooManyRedirects:       "The URL redirects too many times",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// IsValidation reports whether the code is raised before any network I/O
// towards the target.
func (c Code) IsValidation() bool {
	switch c {
	case CodeMalformedURL, CodeProtocolNotAllowed, CodePortNotAllowed, CodeBlockedAddress:
		return true
	}
	return false
}

// Error is the single error type returned by the pipeline.
type Error struct {
	Code   Code
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrMalformedURL           = &Error{Code: CodeMalformedURL}
	ErrProtocolNotAllowed     = &Error{Code: CodeProtocolNotAllowed}
	ErrPortNotAllowed         = &Error{Code: CodePortNotAllowed}
	ErrBlockedAddress         = &Error{Code: CodeBlockedAddress}
	ErrResolutionFailure      = &Error{Code: CodeResolutionFailure}
	ErrNetworkError           = &Error{Code: CodeNetworkError}
	ErrTimeout                = &Error{Code: CodeTimeout}
	ErrContentTooLarge        = &Error{Code: CodeContentTooLarge}
	ErrUnsupportedContentType = &Error{Code: CodeUnsupportedContentType}
	ErrTooManyRedirects       = &Error{Code: CodeTooManyRedirects}
)

func newError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// PublicMessage returns a caller-safe description of err.
func PublicMessage(err error) string {
	return publicMessages[CodeOf(err)]
}
