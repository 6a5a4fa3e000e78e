package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrProtocol marks a well-formed HTTP response whose body lacks what the API promises.
var ErrProtocol = errors.New("vkteams: protocol error")

// ServerError is an HTTP response with status >= 500. It is the only retryable failure.
type ServerError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("vkteams: %s: server error %d: %s", e.Endpoint, e.Status, e.Body)
}

// ClientError is any other non-2xx HTTP response.
type ClientError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("vkteams: %s: http %d: %s", e.Endpoint, e.Status, e.Body)
}

// APIError is a 2xx response carrying "ok": false.
type APIError struct {
	Endpoint    string
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("vkteams: %s: request not ok", e.Endpoint)
	}
	return fmt.Sprintf("vkteams: %s: %s", e.Endpoint, e.Description)
}

// ErrorKind classifies a TransportError.
type ErrorKind string

const (
	KindTimeout  ErrorKind = "timeout"
	KindDNS      ErrorKind = "dns"
	KindDial     ErrorKind = "dial"
	KindTLS      ErrorKind = "tls"
	KindDecode   ErrorKind = "decode"
	KindCanceled ErrorKind = "canceled"
	KindUnknown  ErrorKind = "unknown"
)

// TransportError is a failure below HTTP semantics: network, timeout or undecodable body.
type TransportError struct {
	Endpoint string
	Kind     ErrorKind
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("vkteams: %s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsServerError reports whether err wraps a *ServerError.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Status
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 0
}

// Classify maps low level errors to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindDial
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && urlErr.Err != err {
		if k := Classify(urlErr.Err); k != KindUnknown {
			return k
		}
	}

	var alert tls.AlertError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &alert) || errors.As(err, &certErr) {
		return KindTLS
	}
	return KindUnknown
}

// redact hides the token inside an error message or URL.
func redact(msg, token string) string {
	if token == "" || msg == "" {
		return msg
	}
	msg = strings.ReplaceAll(msg, token, "<redacted>")
	if escaped := url.QueryEscape(token); escaped != token {
		msg = strings.ReplaceAll(msg, escaped, "<redacted>")
	}
	return msg
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
