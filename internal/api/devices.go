package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foyerlink/foyer-core/internal/device"
)

type createDeviceRequest struct {
	DeviceID string      `json:"device_id"`
	Name     string      `json:"name"`
	Type     device.Type `json:"type"`
	Location string      `json:"location,omitempty"`
	Config   string      `json:"config,omitempty"`
}

type updateDeviceRequest struct {
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
	Config   *string `json:"config,omitempty"`
}

// deviceCommandRequest is the request body for POST /devices/{id}/command.
type deviceCommandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// handleListDevices returns all provisioned devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deviceRepo.List(r.Context())
	if err != nil {
		s.logger.Error("list devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleCreateDevice provisions a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.DeviceID == "" || req.Name == "" {
		writeBadRequest(w, "device_id and name are required")
		return
	}
	if !device.IsValidType(req.Type) {
		writeBadRequest(w, "invalid device type")
		return
	}

	dev := &device.Device{
		DeviceID: req.DeviceID,
		Name:     req.Name,
		Type:     req.Type,
		Location: req.Location,
		IsActive: true,
		Config:   req.Config,
	}

	if err := s.deviceRepo.Create(r.Context(), dev); err != nil {
		s.writeDeviceError(w, err, "failed to create device")
		return
	}

	s.logger.Info("device provisioned", "device_id", dev.DeviceID, "type", dev.Type)
	writeJSON(w, http.StatusCreated, dev)
}

// handleGetDevice returns a single device by row id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceRowIDParam(w, r)
	if !ok {
		return
	}

	dev, err := s.deviceRepo.GetByID(r.Context(), id)
	if err != nil {
		s.writeDeviceError(w, err, "failed to load device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleUpdateDevice applies a partial update to a device row.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceRowIDParam(w, r)
	if !ok {
		return
	}

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.deviceRepo.GetByID(r.Context(), id)
	if err != nil {
		s.writeDeviceError(w, err, "failed to load device")
		return
	}

	if req.Name != nil {
		dev.Name = *req.Name
	}
	if req.Location != nil {
		dev.Location = *req.Location
	}
	if req.IsActive != nil {
		dev.IsActive = *req.IsActive
	}
	if req.Config != nil {
		dev.Config = *req.Config
	}

	if err := s.deviceRepo.Update(r.Context(), dev); err != nil {
		s.writeDeviceError(w, err, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device row.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceRowIDParam(w, r)
	if !ok {
		return
	}

	if err := s.deviceRepo.Delete(r.Context(), id); err != nil {
		s.writeDeviceError(w, err, "failed to delete device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleDeviceCommand dispatches a command to a device channel. The {id}
// route parameter is the channel name, not the row id; commands address
// hardware by the identity it announces on the bus.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req deviceCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	principal := principalFromContext(r.Context())

	if err := s.dispatcher.Dispatch(r.Context(), deviceID, req.Command, req.Params, principal); err != nil {
		s.writeDeviceError(w, err, "failed to dispatch command")
		return
	}

	s.logger.Info("command dispatched",
		"device_id", deviceID,
		"command", req.Command,
		"issued_by", principal.UserID,
	)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": deviceID,
		"command":   req.Command,
		"status":    "dispatched",
	})
}

// writeDeviceError maps device errors onto HTTP responses.
func (s *Server) writeDeviceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, device.ErrNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrInactive):
		writeConflict(w, err.Error())
	case errors.Is(err, device.ErrDeviceIDExists):
		writeConflict(w, "device_id already exists")
	default:
		s.logger.Error("device operation failed", "error", err)
		writeInternalError(w, fallback)
	}
}

// deviceRowIDParam parses the {id} route parameter as a row id.
func deviceRowIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
