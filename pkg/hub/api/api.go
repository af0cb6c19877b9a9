/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api provides the REST surface over the hub's device state: the
// summary/listing reader and the reboot trigger. These are pure collaborators
// of the hub core; everything here is a read of hub state or a call into the
// control channel.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/carverauto/fleethub/pkg/hub"
	"github.com/carverauto/fleethub/pkg/logger"
	"github.com/carverauto/fleethub/pkg/models"
)

// DeviceReader reads device summaries from the hub state store.
type DeviceReader interface {
	GetSummary(deviceID string) (models.DeviceSummary, bool)
	ListDevices() []models.DeviceSummary
}

// Controller delivers operator commands to connected devices.
type Controller interface {
	SendControl(deviceID string, payload map[string]interface{}) error
}

// APIServer serves the device listing and action endpoints.
type APIServer struct {
	reader     DeviceReader
	controller Controller
	log        logger.Logger
}

// NewAPIServer creates the REST surface over the given hub collaborators.
func NewAPIServer(reader DeviceReader, controller Controller, log logger.Logger) *APIServer {
	return &APIServer{
		reader:     reader,
		controller: controller,
		log:        log.WithComponent("api"),
	}
}

// RegisterRoutes mounts the API endpoints on the shared router.
func (s *APIServer) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/devices", s.listDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{id}/summary", s.getSummary).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{id}/reboot", s.postReboot).Methods(http.MethodPost)
}

func (s *APIServer) getHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *APIServer) listDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.reader.ListDevices())
}

func (s *APIServer) getSummary(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	summary, ok := s.reader.GetSummary(deviceID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

func (s *APIServer) postReboot(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	err := s.controller.SendControl(deviceID, map[string]interface{}{"action": "reboot"})
	if err != nil {
		if errors.Is(err, hub.ErrDeviceNotConnected) {
			s.writeError(w, http.StatusConflict, "device not connected")
			return
		}

		s.log.Error().Err(err).Str("device_id", deviceID).Msg("Reboot command failed")
		s.writeError(w, http.StatusInternalServerError, "internal server error")

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
