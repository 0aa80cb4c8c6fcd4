package cloud

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Sentinel errors for the cloud package.
// Use errors.Is() to check for these in calling code; the typed errors below
// match their sentinel through an Is method.
var (
	// ErrAuth is returned when the vendor rejects the credentials or the
	// session token. It is never fatal; the session re-authenticates on the
	// next cycle, subject to the attempt throttle.
	ErrAuth = errors.New("cloud: authentication failed")

	// ErrNetwork is returned for transport-level failures (DNS, refused or
	// reset connections, TLS verification, timeouts).
	ErrNetwork = errors.New("cloud: network failure")

	// ErrProtocol is returned for unexpected status codes or response bodies
	// the client cannot interpret.
	ErrProtocol = errors.New("cloud: protocol error")

	// ErrUnsupportedFamily is returned when a command is attempted against a
	// device family that has no command endpoint.
	ErrUnsupportedFamily = errors.New("cloud: device family has no command endpoint")
)

// NetworkReason classifies a transport failure for diagnostics.
type NetworkReason string

// Transport failure reasons.
const (
	ReasonDNS               NetworkReason = "dns"
	ReasonTimeout           NetworkReason = "timeout"
	ReasonConnectionRefused NetworkReason = "connection_refused"
	ReasonConnectionReset   NetworkReason = "connection_reset"
	ReasonTLS               NetworkReason = "tls"
	ReasonOther             NetworkReason = "other"
)

// NetworkError is a transport-level failure with a classified reason.
// It matches ErrNetwork under errors.Is().
type NetworkError struct {
	Reason NetworkReason
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cloud: network failure (%s): %v", e.Reason, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is reports whether target is ErrNetwork, so callers can use
// errors.Is(err, cloud.ErrNetwork) without knowing the concrete type.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ProtocolError is an unexpected response from the vendor API. The status
// and body are retained for diagnosis of the undocumented wire protocol.
// It matches ErrProtocol under errors.Is().
type ProtocolError struct {
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("cloud: protocol error: status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// Is reports whether target is ErrProtocol.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// classifyTransport converts an http.Client transport error into a
// NetworkError with a reason code.
func classifyTransport(err error) *NetworkError {
	switch {
	case isDNSError(err):
		return &NetworkError{Reason: ReasonDNS, Err: err}
	case isTLSError(err):
		return &NetworkError{Reason: ReasonTLS, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &NetworkError{Reason: ReasonConnectionRefused, Err: err}
	case errors.Is(err, syscall.ECONNRESET):
		return &NetworkError{Reason: ReasonConnectionReset, Err: err}
	case isTimeout(err):
		return &NetworkError{Reason: ReasonTimeout, Err: err}
	default:
		return &NetworkError{Reason: ReasonOther, Err: err}
	}
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var hostnameErr x509.HostnameError
	return errors.As(err, &hostnameErr)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// truncate shortens a body for log and error output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
