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

package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/carverauto/fleethub/pkg/bridge"
	"github.com/carverauto/fleethub/pkg/logger"
)

const (
	wsBufferSize = 1024

	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

// Server routes inbound connections to their role: ingest (device agent),
// live (log viewer), or terminal (shell bridge). Unrecognized paths 404
// before any websocket handshake starts.
type Server struct {
	hub      *Hub
	bridge   *bridge.Bridge
	router   *mux.Router
	upgrader websocket.Upgrader
	log      logger.Logger

	httpServer *http.Server
}

// NewServer wires the hub and terminal bridge onto a fresh router. Callers
// may register additional routes (the REST surface) on Router before Start.
func NewServer(h *Hub, b *bridge.Bridge, log logger.Logger) *Server {
	s := &Server{
		hub:    h,
		bridge: b,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsBufferSize,
			WriteBufferSize: wsBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.WithComponent("server"),
	}

	s.setupRoutes()

	return s
}

// Router exposes the underlying router so collaborators can mount their
// endpoints on the same listener.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/ingest", s.handleIngest)
	s.router.HandleFunc("/live", s.handleLive)
	s.router.HandleFunc("/terminal", s.bridge.HandleUpgrade)
}

// handleIngest accepts a device agent connection. A missing device_id falls
// back to the sentinel "unknown" rather than rejecting the agent.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = "unknown"
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Ingest upgrade failed")
		return
	}

	s.hub.HandleIngest(conn, deviceID)
}

// handleLive accepts a log viewer connection. Without a device_id the viewer
// subscribes globally.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Viewer upgrade failed")
		return
	}

	s.hub.HandleViewer(conn, deviceID)
}

// Start serves until the context is canceled, then shuts the listener down.
// Upgraded connections are hijacked from the http.Server and close with
// their handlers.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.log.Info().Str("addr", addr).Msg("Hub listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		return s.httpServer.Shutdown(shutdownCtx)
	}
}
