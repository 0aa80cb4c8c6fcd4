package cloud

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestNetworkErrorMatchesSentinel(t *testing.T) {
	err := &NetworkError{Reason: ReasonDNS, Err: errors.New("no such host")}

	if !errors.Is(err, ErrNetwork) {
		t.Error("NetworkError should match ErrNetwork")
	}
	if errors.Is(err, ErrAuth) {
		t.Error("NetworkError should not match ErrAuth")
	}
	if !strings.Contains(err.Error(), "dns") {
		t.Errorf("Error() = %q, want reason included", err.Error())
	}
}

func TestProtocolErrorMatchesSentinel(t *testing.T) {
	err := &ProtocolError{StatusCode: 502, Body: "<html>bad gateway</html>"}

	if !errors.Is(err, ErrProtocol) {
		t.Error("ProtocolError should match ErrProtocol")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("Error() = %q, want status included", err.Error())
	}
}

func TestProtocolErrorTruncatesBody(t *testing.T) {
	err := &ProtocolError{StatusCode: 500, Body: strings.Repeat("x", 1000)}
	if len(err.Error()) > 300 {
		t.Errorf("Error() length %d, want body truncated", len(err.Error()))
	}
}

func TestClassifyTransport(t *testing.T) {
	timeoutErr := &net.DNSError{Err: "lookup timed out", IsTimeout: true}
	_ = timeoutErr

	tests := []struct {
		name string
		err  error
		want NetworkReason
	}{
		{
			name: "dns failure",
			err:  &net.DNSError{Err: "no such host", Name: "devices.myq-cloud.com"},
			want: ReasonDNS,
		},
		{
			name: "connection refused",
			err:  fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED),
			want: ReasonConnectionRefused,
		},
		{
			name: "connection reset",
			err:  fmt.Errorf("read tcp: %w", syscall.ECONNRESET),
			want: ReasonConnectionReset,
		},
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("request: %w", context.DeadlineExceeded),
			want: ReasonTimeout,
		},
		{
			name: "unclassified",
			err:  errors.New("something odd"),
			want: ReasonOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyTransport(tt.err)
			if got.Reason != tt.want {
				t.Errorf("classifyTransport() reason = %q, want %q", got.Reason, tt.want)
			}
			if !errors.Is(got, ErrNetwork) {
				t.Error("classified error should match ErrNetwork")
			}
		})
	}
}

func TestEndpointsForRegion(t *testing.T) {
	east := EndpointsForRegion("")
	if !strings.Contains(east.Devices, "devices.myq-cloud.com") {
		t.Errorf("default region Devices = %q, want eastern host", east.Devices)
	}

	west := EndpointsForRegion("west")
	if !strings.Contains(west.Devices, "devices-west.myq-cloud.com") {
		t.Errorf("west region Devices = %q, want western host", west.Devices)
	}
	if west.Identity != east.Identity && west.Identity == "" {
		t.Error("west Identity host missing")
	}
}
