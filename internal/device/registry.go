package device

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/liftgate-io/liftgate/internal/cloud"
	"github.com/liftgate-io/liftgate/internal/infrastructure/config"
)

// Logger defines the logging interface used by the Registry and Resolver.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CloudAPI is the slice of the cloud client the registry consumes.
type CloudAPI interface {
	Accounts(ctx context.Context) ([]cloud.Account, error)
	Devices(ctx context.Context, accountID string) ([]cloud.Device, error)
	Execute(ctx context.Context, accountID, family, serial, command string) error
	AuthEpoch() uint64
}

// refreshSpacing is the minimum gap between refresh fetches. Calls inside
// the window are answered from the existing mirror.
const refreshSpacing = 2 * time.Second

// stalenessCutoff is how old the mirror may be before lookups refuse to
// answer; stale data must not drive commands.
const stalenessCutoff = 60 * time.Second

// EventType classifies a registry event.
type EventType string

// Registry events.
const (
	EventDiscovered   EventType = "discovered"
	EventRemoved      EventType = "removed"
	EventStateChanged EventType = "state_changed"
	EventObstruction  EventType = "obstruction"
)

// Event is a change observed during a refresh. Device is a deep copy;
// handlers may hold it.
type Event struct {
	Type     EventType
	Device   *Device
	Previous State
	Current  State
}

// EventHandler receives registry events. Called synchronously from the
// refresh path; handlers that block slow polling down.
type EventHandler func(Event)

// Registry maintains the local mirror of the vendor's device list and the
// per-device resolvers.
//
// All public methods are thread-safe. The mirror is replaced wholesale on
// each successful refresh; at most one fetch is in flight at a time.
type Registry struct {
	client CloudAPI
	cfg    *config.Config
	logger Logger

	// spacing and staleAfter default to the package constants; tests
	// shorten them.
	spacing    time.Duration
	staleAfter time.Duration

	// fetchMu serialises the network portion of a refresh without making
	// concurrent callers queue; they fall back to the existing mirror.
	fetchMu sync.Mutex

	mu            sync.RWMutex
	mirror        map[string]*Device
	resolvers     map[string]*Resolver
	accounts      []cloud.Account
	accountsEpoch uint64
	lastAttempt   time.Time
	lastSync      time.Time
	handler       EventHandler
	burst         func()
}

// NewRegistry creates a registry backed by the given cloud client.
func NewRegistry(client CloudAPI, cfg *config.Config) *Registry {
	return &Registry{
		client:     client,
		cfg:        cfg,
		logger:     noopLogger{},
		spacing:    refreshSpacing,
		staleAfter: stalenessCutoff,
		mirror:     nil,
		resolvers:  make(map[string]*Resolver),
	}
}

// SetLogger sets the logger for the registry and any resolvers created
// after the call. Wiring-time only: call before the first Refresh, the
// logger is read without holding the registry lock.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetEventHandler installs the handler for discovery, removal, and state
// change events. Installed once during wiring, before polling starts.
func (r *Registry) SetEventHandler(h EventHandler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// SetBurstFunc installs the poll scheduler hook handed to resolvers.
func (r *Registry) SetBurstFunc(f func()) {
	r.mu.Lock()
	r.burst = f
	r.mu.Unlock()
}

// Refresh reconciles the mirror against the vendor.
//
// Calls within the 2-second spacing window, and calls racing an in-flight
// fetch, issue no network traffic; they report whether a snapshot already
// exists. On any network or auth failure the prior mirror is left
// untouched and Refresh returns false.
func (r *Registry) Refresh(ctx context.Context) bool {
	r.mu.RLock()
	withinWindow := time.Since(r.lastAttempt) < r.spacing
	hasSnapshot := r.mirror != nil
	r.mu.RUnlock()
	if withinWindow {
		return hasSnapshot
	}

	if !r.fetchMu.TryLock() {
		// A fetch is already in flight; answer from what we have.
		return hasSnapshot
	}
	defer r.fetchMu.Unlock()

	// Re-check the window: a fetch may have completed while we raced for
	// the lock.
	r.mu.Lock()
	if time.Since(r.lastAttempt) < r.spacing {
		hasSnapshot = r.mirror != nil
		r.mu.Unlock()
		return hasSnapshot
	}
	r.lastAttempt = time.Now()
	r.mu.Unlock()

	accounts, err := r.accountsForEpoch(ctx)
	if err != nil {
		r.logger.Warn("device refresh failed listing accounts", "error", err)
		return false
	}

	now := time.Now()
	next := make(map[string]*Device)
	for _, acc := range accounts {
		wires, err := r.client.Devices(ctx, acc.ID)
		if err != nil {
			r.logger.Warn("device refresh failed fetching devices",
				"account_id", acc.ID, "error", err)
			return false
		}
		for _, w := range wires {
			if w.SerialNumber == "" {
				continue
			}
			next[w.SerialNumber] = fromWire(w, acc.ID, now)
		}
	}

	r.applySnapshot(next, now)
	return true
}

// accountsForEpoch returns the cached account list, refetching when a full
// re-login has occurred since the cache was taken.
func (r *Registry) accountsForEpoch(ctx context.Context) ([]cloud.Account, error) {
	r.mu.RLock()
	cached := r.accounts
	cachedEpoch := r.accountsEpoch
	r.mu.RUnlock()

	if cached != nil && cachedEpoch == r.client.AuthEpoch() {
		return cached, nil
	}

	accounts, err := r.client.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	// Record the epoch after the fetch: a login during the call bumps it.
	epoch := r.client.AuthEpoch()

	r.mu.Lock()
	r.accounts = accounts
	r.accountsEpoch = epoch
	r.mu.Unlock()

	r.logger.Info("account list cached", "count", len(accounts), "auth_epoch", epoch)
	return accounts, nil
}

// applySnapshot swaps the mirror and emits diff events. Resolver
// observation and event dispatch happen outside the registry lock so
// handlers and the burst hook cannot deadlock against lookups.
func (r *Registry) applySnapshot(next map[string]*Device, now time.Time) {
	r.mu.Lock()
	prev := r.mirror
	r.mirror = next
	r.lastSync = now
	handler := r.handler
	burst := r.burst
	logger := r.logger

	var discovered, removed []*Device
	for serial, dev := range next {
		if _, ok := prev[serial]; !ok {
			discovered = append(discovered, dev)
		}
		if _, ok := r.resolvers[serial]; !ok {
			r.resolvers[serial] = NewResolver(serial, dev.Family, r.cfg.Device(serial), r.execFunc(), burst, logger)
		}
	}
	for serial, dev := range prev {
		if _, ok := next[serial]; !ok {
			removed = append(removed, dev)
			if res, ok := r.resolvers[serial]; ok {
				res.Close()
				delete(r.resolvers, serial)
			}
		}
	}
	observe := make([]*Resolver, 0, len(next))
	snapshots := make([]*Device, 0, len(next))
	for serial, dev := range next {
		observe = append(observe, r.resolvers[serial])
		snapshots = append(snapshots, dev)
	}
	r.mu.Unlock()

	for _, dev := range discovered {
		r.logger.Info("device discovered",
			"serial", dev.SerialNumber, "name", dev.Name, "family", string(dev.Family))
		emit(handler, Event{Type: EventDiscovered, Device: dev.DeepCopy()})
	}
	for _, dev := range removed {
		r.logger.Info("device removed", "serial", dev.SerialNumber, "name", dev.Name)
		emit(handler, Event{Type: EventRemoved, Device: dev.DeepCopy()})
	}

	for i, res := range observe {
		dev := snapshots[i]
		prevState, currState := res.Observe(dev)
		if prevState != currState && prevState != StateUnknown {
			r.logger.Debug("device state changed",
				"serial", dev.SerialNumber, "from", string(prevState), "to", string(currState))
			emit(handler, Event{
				Type:     EventStateChanged,
				Device:   dev.DeepCopy(),
				Previous: prevState,
				Current:  currState,
			})
		}
		if dev.Family == FamilyGarageDoor && dev.RawDoorState() == rawObstructionMarker {
			r.logger.Warn("obstruction reported", "serial", dev.SerialNumber)
			emit(handler, Event{Type: EventObstruction, Device: dev.DeepCopy(), Current: currState})
		}
	}
}

func emit(h EventHandler, e Event) {
	if h != nil {
		h(e)
	}
}

// execFunc binds the cloud client's command endpoint for resolvers.
func (r *Registry) execFunc() ExecFunc {
	return func(ctx context.Context, dev *Device, command string) error {
		return r.client.Execute(ctx, dev.AccountID, string(dev.Family), dev.SerialNumber, command)
	}
}

// Get retrieves a device by serial number. The returned device is a deep
// copy. Returns ErrDeviceNotFound when the serial is unknown, or when the
// mirror is older than the staleness cutoff; stale data must not be
// mistaken for current server state.
func (r *Registry) Get(serial string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.mirror == nil || time.Since(r.lastSync) > r.staleAfter {
		return nil, ErrDeviceNotFound
	}
	dev, ok := r.mirror[serial]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return dev.DeepCopy(), nil
}

// Devices returns a copy of the current mirror, sorted by serial number.
// Unlike Get, it answers even from a stale mirror; listing is diagnostic,
// not a command precondition.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, 0, len(r.mirror))
	for _, dev := range r.mirror {
		out = append(out, dev.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SerialNumber < out[j].SerialNumber
	})
	return out
}

// Resolver returns the state resolver for a serial number, or
// ErrDeviceNotFound when no such device has been observed.
func (r *Registry) Resolver(serial string) (*Resolver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resolvers[serial]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return res, nil
}

// HardwareInfo decodes the hardware a serial number encodes. Returns nil
// for malformed or unrecognised serials.
func (r *Registry) HardwareInfo(serial string) *HwInfo {
	return DecodeHardware(serial)
}

// LastSync returns when the mirror last reconciled successfully, zero if
// never.
func (r *Registry) LastSync() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSync
}
