package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/liftgate-io/liftgate/internal/infrastructure/config"
)

// State is a canonical device state.
type State string

// Canonical states. Door devices move through the first seven; lamps use
// on/off. StateUnknown covers raw values the vendor has not been observed
// to send before.
const (
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateOpening    State = "opening"
	StateClosing    State = "closing"
	StateStopped    State = "stopped"
	StateObstructed State = "obstructed"
	StateOn         State = "on"
	StateOff        State = "off"
	StateUnknown    State = "unknown"
)

// rawObstructionMarker is the transient raw door state the vendor emits
// when the safety sensors reverse a closing door. It is present for only a
// few seconds, hence the debounce.
const rawObstructionMarker = "autoreverse"

// obstructionAlertDuration is how long the obstruction flag stays raised
// after the last marker observation.
const obstructionAlertDuration = 30 * time.Second

// canonicalDoor maps a raw door state onto the canonical machine. The
// second return is false for unrecognised values.
func canonicalDoor(raw string) (State, bool) {
	switch raw {
	case "open":
		return StateOpen, true
	case "closed":
		return StateClosed, true
	case "opening":
		return StateOpening, true
	case "closing":
		return StateClosing, true
	case "stopped":
		return StateStopped, true
	case rawObstructionMarker:
		return StateObstructed, true
	default:
		return StateUnknown, false
	}
}

// canonicalLamp maps a raw lamp state.
func canonicalLamp(raw string) (State, bool) {
	switch raw {
	case "on":
		return StateOn, true
	case "off":
		return StateOff, true
	default:
		return StateUnknown, false
	}
}

// CurrentStateBias picks a single working assumption for the current
// position when a caller must have one, e.g. at startup with only stale
// cached state. Total over State: anything not explicitly open-leaning or
// stopped is assumed closed.
func CurrentStateBias(s State) State {
	switch s {
	case StateOpen, StateOpening, StateObstructed:
		return StateOpen
	case StateStopped:
		return StateStopped
	default:
		return StateClosed
	}
}

// TargetStateBias picks the "desired" state a consumer should display for
// a canonical state. A stopped or obstructed door cannot be confidently
// assumed to be headed closed, so the safer assumption is open. Total over
// State.
func TargetStateBias(s State) State {
	switch s {
	case StateOpen, StateOpening, StateStopped, StateObstructed:
		return StateOpen
	default:
		return StateClosed
	}
}

// ExecFunc sends one command to the vendor on behalf of a resolver.
type ExecFunc func(ctx context.Context, dev *Device, command string) error

// Resolver owns the canonical state machine for one device: raw-state
// mapping, the debounced obstruction and occupancy signals, and the
// command validity guard.
//
// A Resolver outlives mirror replacements; it is keyed by serial number in
// the registry and fed each new snapshot through Observe.
type Resolver struct {
	serial string
	family Family
	cfg    config.DeviceConfig
	logger Logger

	// exec sends a command to the vendor; burst kicks the poll scheduler
	// into its fast cadence. Both are injected so the resolver holds no
	// back-pointers into the client or scheduler.
	exec  ExecFunc
	burst func()

	// alertDuration and occupancyDuration default from the constant and
	// the device config respectively; tests shorten them.
	alertDuration     time.Duration
	occupancyDuration time.Duration

	mu               sync.Mutex
	last             *Device
	current          State
	obstructed       bool
	obstructionGen   uint64
	obstructionTimer *time.Timer
	occupied         bool
	occupancyGen     uint64
	occupancyArmed   bool
	occupancyTimer   *time.Timer
	unknownLogged    map[string]struct{}
}

// NewResolver creates a resolver for one device.
func NewResolver(serial string, family Family, cfg config.DeviceConfig, exec ExecFunc, burst func(), logger Logger) *Resolver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Resolver{
		serial:            serial,
		family:            family,
		cfg:               cfg,
		logger:            logger,
		exec:              exec,
		burst:             burst,
		alertDuration:     obstructionAlertDuration,
		occupancyDuration: time.Duration(cfg.OccupancyDuration) * time.Second,
		current:           StateUnknown,
		unknownLogged:     map[string]struct{}{},
	}
}

// Observe feeds a fresh mirror snapshot through the state machine and
// returns the previous and new canonical states.
//
// Entering OPENING or CLOSING kicks the poll scheduler into burst mode, so
// an externally initiated transition gets the same fast confirmation
// polling as a locally issued command.
func (r *Resolver) Observe(dev *Device) (prev, curr State) {
	r.mu.Lock()
	r.last = dev

	var raw string
	var known bool
	switch r.family {
	case FamilyGarageDoor:
		raw = dev.RawDoorState()
		curr, known = canonicalDoor(raw)
	case FamilyLamp:
		raw = dev.RawLampState()
		curr, known = canonicalLamp(raw)
	default:
		curr, known = StateUnknown, true
	}

	if !known {
		if _, seen := r.unknownLogged[raw]; !seen {
			r.unknownLogged[raw] = struct{}{}
			r.logger.Warn("unrecognised raw device state",
				"serial", r.serial, "family", string(r.family), "raw_state", raw)
		}
	}

	if r.family == FamilyGarageDoor && raw == rawObstructionMarker {
		r.armObstructionLocked()
	}

	prev = r.current
	r.current = curr
	r.observeOccupancyLocked(curr)

	transitional := curr == StateOpening || curr == StateClosing
	kick := transitional && curr != prev && r.burst != nil
	r.mu.Unlock()

	if kick {
		r.burst()
	}
	return prev, curr
}

// CanonicalState returns the current canonical state.
func (r *Resolver) CanonicalState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// TargetState returns the biased desired state for consumers.
func (r *Resolver) TargetState() State {
	return TargetStateBias(r.CanonicalState())
}

// IsObstructed reports the debounced obstruction flag.
func (r *Resolver) IsObstructed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.obstructed
}

// IsOccupied reports the debounced occupancy flag. Always false unless the
// device is configured as an occupancy sensor.
func (r *Resolver) IsOccupied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupied
}

// Command validates and sends one action to the vendor.
//
// Guard order: read-only config, family support, action validity, device
// reachability, in-flight transition, then the already-satisfied no-op.
// A command that reaches the vendor kicks the poll scheduler into burst
// mode for fast confirmation.
//
// Returns:
//   - nil on success, including the no-op case where the target state
//     already holds
//   - ErrReadOnly, ErrUnsupported, ErrUnknownAction, ErrOffline,
//     ConflictError, or a cloud error from the send itself
func (r *Resolver) Command(ctx context.Context, action string) error {
	r.mu.Lock()
	dev := r.last
	curr := r.current
	r.mu.Unlock()

	if dev == nil {
		return fmt.Errorf("%w: %s has no snapshot yet", ErrDeviceNotFound, r.serial)
	}
	if r.cfg.ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, r.serial)
	}
	if !r.family.Actionable() {
		return fmt.Errorf("%w: %s is %s", ErrUnsupported, r.serial, r.family)
	}

	command, target, err := commandFor(r.family, action)
	if err != nil {
		return err
	}
	if !dev.Online() {
		return fmt.Errorf("%w: %s", ErrOffline, r.serial)
	}
	if curr == StateOpening || curr == StateClosing {
		return &ConflictError{SerialNumber: r.serial, InProgress: curr}
	}
	if curr == target {
		// Already satisfied; success without effect.
		return nil
	}

	if err := r.exec(ctx, dev, command); err != nil {
		return err
	}
	if r.burst != nil {
		r.burst()
	}
	return nil
}

// Close cancels any pending debounce timers.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obstructionGen++
	r.obstructed = false
	if r.obstructionTimer != nil {
		r.obstructionTimer.Stop()
		r.obstructionTimer = nil
	}
	r.occupancyGen++
	r.occupancyArmed = false
	r.occupied = false
	if r.occupancyTimer != nil {
		r.occupancyTimer.Stop()
		r.occupancyTimer = nil
	}
}

// commandFor maps an external action onto the vendor command string and
// the canonical state that satisfies it.
func commandFor(family Family, action string) (command string, target State, err error) {
	switch family {
	case FamilyGarageDoor:
		switch action {
		case "open":
			return "open", StateOpen, nil
		case "close":
			return "close", StateClosed, nil
		}
	case FamilyLamp:
		switch action {
		case "on":
			return "on", StateOn, nil
		case "off":
			return "off", StateOff, nil
		}
	}
	return "", StateUnknown, fmt.Errorf("%w: %q for family %s", ErrUnknownAction, action, family)
}

// armObstructionLocked raises the obstruction flag and re-arms the clear
// timer. Re-observation extends the alert window: the pending timer is
// stopped before a new one is armed, so at most one clear timer is live
// per device. The generation counter covers the race where a stopped
// timer's callback has already started. Callers hold r.mu.
func (r *Resolver) armObstructionLocked() {
	r.obstructed = true
	r.obstructionGen++
	gen := r.obstructionGen
	if r.obstructionTimer != nil {
		r.obstructionTimer.Stop()
	}
	r.obstructionTimer = time.AfterFunc(r.alertDuration, func() {
		r.mu.Lock()
		if gen == r.obstructionGen {
			r.obstructed = false
			r.obstructionTimer = nil
		}
		r.mu.Unlock()
	})
}

// observeOccupancyLocked drives the occupancy debounce: an open door arms
// a timer once; leaving open cancels it and clears the flag immediately.
// Callers hold r.mu.
func (r *Resolver) observeOccupancyLocked(curr State) {
	if !r.cfg.OccupancySensor || r.family != FamilyGarageDoor {
		return
	}

	if curr == StateOpen {
		if r.occupancyArmed || r.occupied {
			return
		}
		r.occupancyArmed = true
		r.occupancyGen++
		gen := r.occupancyGen
		if r.occupancyTimer != nil {
			r.occupancyTimer.Stop()
		}
		r.occupancyTimer = time.AfterFunc(r.occupancyDuration, func() {
			r.mu.Lock()
			if gen == r.occupancyGen {
				r.occupied = true
				r.occupancyArmed = false
				r.occupancyTimer = nil
			}
			r.mu.Unlock()
		})
		return
	}

	// Any state other than open cancels the pending timer and clears the
	// flag.
	r.occupancyGen++
	r.occupancyArmed = false
	r.occupied = false
	if r.occupancyTimer != nil {
		r.occupancyTimer.Stop()
		r.occupancyTimer = nil
	}
}
