package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/liftgate-io/liftgate/internal/cloud"
	"github.com/liftgate-io/liftgate/internal/device"
)

// deviceView is the API representation of one device with its resolved
// state attached.
type deviceView struct {
	SerialNumber   string         `json:"serial_number"`
	Name           string         `json:"name"`
	Family         string         `json:"family"`
	ParentDeviceID string         `json:"parent_device_id,omitempty"`
	State          string         `json:"state"`
	TargetState    string         `json:"target_state"`
	Online         bool           `json:"online"`
	Obstructed     bool           `json:"obstructed"`
	Occupied       bool           `json:"occupied"`
	BatteryLow     bool           `json:"battery_low"`
	Hardware       *device.HwInfo `json:"hardware,omitempty"`
	LastSeen       string         `json:"last_seen"`
}

// viewFor assembles the API view of a device from the mirror entry and its
// resolver.
func (s *Server) viewFor(dev *device.Device) deviceView {
	view := deviceView{
		SerialNumber:   dev.SerialNumber,
		Name:           dev.Name,
		Family:         string(dev.Family),
		ParentDeviceID: dev.ParentDeviceID,
		State:          string(device.StateUnknown),
		TargetState:    string(device.TargetStateBias(device.StateUnknown)),
		Online:         dev.Online(),
		BatteryLow:     dev.BatteryLow(),
		Hardware:       device.DecodeHardware(dev.SerialNumber),
		LastSeen:       dev.LastSeen.UTC().Format(time.RFC3339),
	}
	if res, err := s.registry.Resolver(dev.SerialNumber); err == nil {
		view.State = string(res.CanonicalState())
		view.TargetState = string(res.TargetState())
		view.Obstructed = res.IsObstructed()
		view.Occupied = res.IsOccupied()
	}
	return view
}

// handleListDevices returns every device in the mirror.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Devices()
	views := make([]deviceView, 0, len(devices))
	for _, dev := range devices {
		views = append(views, s.viewFor(dev))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns one device by serial number.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	dev, err := s.registry.Get(serial)
	if err != nil {
		writeNotFound(w, "device not found or mirror stale")
		return
	}
	writeJSON(w, http.StatusOK, s.viewFor(dev))
}

// handleGetDeviceState returns the canonical state surface for a device.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	res, err := s.registry.Resolver(serial)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	state := res.CanonicalState()
	writeJSON(w, http.StatusOK, map[string]any{
		"serial_number": serial,
		"state":         string(state),
		"target_state":  string(res.TargetState()),
		"assumed_state": string(device.CurrentStateBias(state)),
		"obstructed":    res.IsObstructed(),
		"occupied":      res.IsOccupied(),
	})
}

// handleGetHardwareInfo decodes the hardware a serial encodes.
func (s *Server) handleGetHardwareInfo(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	info := s.registry.HardwareInfo(serial)
	if info == nil {
		writeNotFound(w, "serial does not decode to known hardware")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// commandRequest is the body of PUT /devices/{serial}/command.
type commandRequest struct {
	Action string `json:"action"`
}

// handleCommand validates and forwards a device command.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}

	res, err := s.registry.Resolver(serial)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	if err := res.Command(r.Context(), req.Action); err != nil {
		s.writeCommandError(w, serial, req.Action, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"serial_number": serial,
		"action":        req.Action,
		"accepted":      true,
	})
}

// writeCommandError maps command failures onto HTTP statuses.
func (s *Server) writeCommandError(w http.ResponseWriter, serial, action string, err error) {
	switch {
	case errors.Is(err, device.ErrConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, device.ErrReadOnly):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "device is configured read-only")
	case errors.Is(err, device.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, ErrCodeOffline, "device is offline")
	case errors.Is(err, device.ErrUnknownAction), errors.Is(err, device.ErrUnsupported):
		writeBadRequest(w, err.Error())
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, cloud.ErrAuth), errors.Is(err, cloud.ErrNetwork), errors.Is(err, cloud.ErrProtocol):
		s.logger.Warn("command failed upstream", "serial", serial, "action", action, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "vendor API request failed")
	default:
		s.logger.Error("command failed", "serial", serial, "action", action, "error", err)
		writeInternalError(w, "command failed")
	}
}

// handleRefresh forces a mirror reconciliation.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ok := s.registry.Refresh(r.Context())
	if s.scheduler != nil {
		// Confirm the outcome quickly regardless of the current cadence.
		s.scheduler.ResetBurst()
	}
	if !ok {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "refresh failed and no snapshot exists")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refreshed": true,
		"count":     len(s.registry.Devices()),
	})
}
