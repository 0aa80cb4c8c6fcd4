package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/liftgate-io/liftgate/internal/infrastructure/config"
	"github.com/liftgate-io/liftgate/internal/infrastructure/logging"
)

// requestSpacing is the minimum gap between consecutive API requests. The
// vendor rate-limits aggressively; spacing is enforced across all callers
// of one Client.
const requestSpacing = 250 * time.Millisecond

// Account is one vendor account visible to the authenticated user.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Device is the wire representation of one device as the vendor reports
// it. State carries the raw attribute map unmodified; interpretation
// happens downstream.
type Device struct {
	SerialNumber   string         `json:"serial_number"`
	Name           string         `json:"name"`
	DeviceFamily   string         `json:"device_family"`
	ParentDeviceID string         `json:"parent_device_id"`
	State          map[string]any `json:"state"`
}

// Device families with a command surface.
const (
	FamilyGarageDoor = "garagedoor"
	FamilyLamp       = "lamp"
)

// Client issues authenticated, rate-spaced requests against the vendor
// device API. All methods are safe for concurrent use.
type Client struct {
	session   *Session
	endpoints Endpoints
	http      *http.Client
	logger    *logging.Logger

	mu       sync.Mutex
	nextSlot time.Time
}

// NewClient creates a Client bound to the given session.
func NewClient(session *Session, cfg config.CloudConfig, logger *logging.Logger) *Client {
	return &Client{
		session:   session,
		endpoints: EndpointsForRegion(cfg.Region),
		logger:    logger.With("component", "cloud-client"),
		http:      &http.Client{Timeout: httpTimeout},
	}
}

// SetEndpoints overrides the vendor host set. Intended for staging hosts
// and tests. Wiring-time only: call before the first request is issued,
// request paths read the host set without holding a lock.
func (c *Client) SetEndpoints(e Endpoints) {
	c.endpoints = e
}

// AuthEpoch returns the session's login epoch. Consumers caching
// account-derived state invalidate it when the epoch changes.
func (c *Client) AuthEpoch() uint64 {
	return c.session.Epoch()
}

// Accounts lists the accounts visible to the authenticated user.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	body, err := c.do(ctx, http.MethodGet, c.endpoints.Accounts+"/api/v6.0/accounts", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Accounts []Account `json:"accounts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProtocolError{StatusCode: http.StatusOK, Body: truncate(string(body), 512)}
	}
	return payload.Accounts, nil
}

// Devices lists every device in one account.
func (c *Client) Devices(ctx context.Context, accountID string) ([]Device, error) {
	u := fmt.Sprintf("%s/api/v5.2/Accounts/%s/Devices", c.endpoints.Devices, accountID)
	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Items []Device `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProtocolError{StatusCode: http.StatusOK, Body: truncate(string(body), 512)}
	}
	return payload.Items, nil
}

// Execute sends a command to one device. The command host depends on the
// device family; families without a command surface return
// ErrUnsupportedFamily.
func (c *Client) Execute(ctx context.Context, accountID, family, serial, command string) error {
	var u string
	switch family {
	case FamilyGarageDoor:
		u = fmt.Sprintf("%s/api/v5.2/Accounts/%s/door_openers/%s/%s", c.endpoints.DoorCommands, accountID, serial, command)
	case FamilyLamp:
		u = fmt.Sprintf("%s/api/v5.2/Accounts/%s/lamps/%s/%s", c.endpoints.LampCommands, accountID, serial, command)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFamily, family)
	}

	c.logger.Debug("sending device command", "serial", serial, "command", command)
	_, err := c.do(ctx, http.MethodPut, u, bytes.NewReader([]byte("{}")))
	return err
}

// do issues one request: waits for the rate slot, attaches the bearer
// token, executes, and classifies the outcome. A 401 resets the session so
// the next call re-authenticates.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader) ([]byte, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	bearer, err := c.session.Bearer(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrProtocol, err)
	}
	req.Header.Set("User-Agent", transportUserAgent)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.session.Reset()
		return nil, fmt.Errorf("%w: API rejected bearer token", ErrAuth)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}
	return respBody, nil
}

// throttle blocks until this caller's request slot arrives, or the context
// ends. Slots are handed out in call order.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	if c.nextSlot.Before(now) {
		c.nextSlot = now
	}
	wait := c.nextSlot.Sub(now)
	c.nextSlot = c.nextSlot.Add(requestSpacing)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
