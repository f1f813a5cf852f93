// Package lan implements the Wi-Fi transport: an HTTP API plus a
// WebSocket channel, advertised over mDNS so mobile peers can find the
// desktop without manual addressing.
package lan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/notesync/notesync/internal/config"
	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
	syncsvc "github.com/notesync/notesync/internal/services/sync"
)

const (
	// Ports above basePort are probed when the base is taken, so two
	// workspaces on one machine can both serve.
	portProbeRange = 10

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server is the LAN transport. It binds an HTTP listener on the first
// free port in the probe range, serves the sync API, upgrades /ws to
// WebSocket, and advertises itself over mDNS.
type Server struct {
	svc      *syncsvc.Service
	cfg      config.Store
	logger   *events.Logger
	basePort int

	mu        sync.Mutex
	running   bool
	port      int
	listener  net.Listener
	httpSrv   *http.Server
	mdns      *advertiser
	sockets   map[*socket]struct{}
	busCancel func()
}

// NewServer creates the LAN transport. The listen port comes from the
// persisted sync config at Start time.
func NewServer(svc *syncsvc.Service, cfg config.Store, logger *events.Logger) *Server {
	return &Server{
		svc:     svc,
		cfg:     cfg,
		logger:  logger.WithField("transport", "lan"),
		sockets: make(map[*socket]struct{}),
	}
}

// Type implements transport.Transport.
func (s *Server) Type() models.TransportType {
	return models.TransportLAN
}

// IsRunning implements transport.Transport.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Port returns the bound port, or 0 when the server is not running.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Start binds the listener, starts serving, and advertises over mDNS.
// mDNS failure is logged but does not fail the transport; peers can
// still connect via the QR payload's host and port.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return models.ErrTransportRunning
	}

	basePort := s.cfg.Sync().LANPort
	if basePort == 0 {
		basePort = config.DefaultLANPort
	}

	listener, port, err := probeListen(basePort)
	if err != nil {
		return &models.TransportError{Transport: models.TransportLAN, Phase: "listen", Err: err}
	}

	s.listener = listener
	s.port = port
	s.httpSrv = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.running = true

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server stopped")
		}
	}()

	if adv, err := advertise(s.svc.DeviceID(), port, s.svc.DeviceInfo()); err != nil {
		s.logger.WithError(err).Warn("mDNS advertisement failed; discovery degraded to QR only")
	} else {
		s.mdns = adv
	}

	ch, cancel := s.svc.Events().Subscribe()
	s.busCancel = cancel
	go s.forwardEvents(ch)

	s.logger.WithField("port", port).Info("LAN transport listening")
	return nil
}

// Stop shuts the HTTP server down, closes every live WebSocket, and
// withdraws the mDNS advertisement.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.port = 0
	httpSrv := s.httpSrv
	mdns := s.mdns
	busCancel := s.busCancel
	sockets := make([]*socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.sockets = make(map[*socket]struct{})
	s.httpSrv = nil
	s.mdns = nil
	s.busCancel = nil
	s.mu.Unlock()

	if busCancel != nil {
		busCancel()
	}
	if mdns != nil {
		mdns.shutdown()
	}
	for _, sock := range sockets {
		sock.close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return &models.TransportError{Transport: models.TransportLAN, Phase: "shutdown", Err: err}
	}

	s.logger.Info("LAN transport stopped")
	return nil
}

// probeListen tries basePort, then the next ports in the probe range.
func probeListen(basePort int) (net.Listener, int, error) {
	for port := basePort; port <= basePort+portProbeRange; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return listener, port, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %d-%d", models.ErrPortUnavailable, basePort, basePort+portProbeRange)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sync/status", s.handleStatus)
	mux.HandleFunc("POST /api/sync/pair", s.handlePair)
	mux.HandleFunc("GET /api/sync/manifest", s.requireAuth(s.handleManifest))
	mux.HandleFunc("POST /api/sync/delta", s.requireAuth(s.handleDelta))
	mux.HandleFunc("POST /api/sync/complete", s.requireAuth(s.handleComplete))
	mux.HandleFunc("GET /api/notes/{path...}", s.requireAuth(s.handleNoteGet))
	mux.HandleFunc("PUT /api/notes/{path...}", s.requireAuth(s.handleNotePut))
	mux.HandleFunc("DELETE /api/notes/{path...}", s.requireAuth(s.handleNoteDelete))
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

// requireAuth wraps an authenticated handler. The bearer token must
// match a paired device.
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, *models.AuthToken)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token := s.svc.ValidateToken(strings.TrimPrefix(header, prefix))
		if token == nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r, token)
	}
}

type statusResponse struct {
	models.DeviceInfo
	Status models.SyncStatus `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		DeviceInfo: s.svc.DeviceInfo(),
		Status:     s.svc.Status(),
	})
}

type pairRequest struct {
	DeviceID   string `json:"deviceId"`
	PIN        string `json:"pin"`
	DeviceName string `json:"deviceName"`
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeviceID == "" || req.PIN == "" || req.DeviceName == "" {
		writeError(w, http.StatusBadRequest, "deviceId, deviceName and pin are required")
		return
	}

	token, err := s.svc.ValidatePairing(req.DeviceID, req.PIN, req.DeviceName)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoPairing),
			errors.Is(err, models.ErrPairingExpired),
			errors.Is(err, models.ErrPairingMismatch):
			// One message for every rejection; the response must not
			// reveal whether the PIN was wrong or the challenge stale.
			writeError(w, http.StatusUnauthorized, "pairing rejected")
		default:
			writeError(w, http.StatusInternalServerError, "pairing failed")
		}
		return
	}

	// The token secret is the only field the peer needs; everything
	// else stays server-side.
	writeJSON(w, http.StatusOK, map[string]string{"token": token.Token})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request, _ *models.AuthToken) {
	manifest, err := s.svc.BuildManifest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "manifest build failed")
		return
	}

	writeJSON(w, http.StatusOK, manifest)
}

type deltaRequest struct {
	RemoteManifest *models.NoteManifest `json:"remoteManifest"`
}

// handleDelta classifies divergence from the desktop's point of view:
// toSend is what the desktop sends, toReceive what the mobile sends.
func (s *Server) handleDelta(w http.ResponseWriter, r *http.Request, _ *models.AuthToken) {
	var req deltaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid manifest body")
		return
	}
	if req.RemoteManifest == nil {
		writeError(w, http.StatusBadRequest, "remoteManifest is required")
		return
	}

	local, err := s.svc.BuildManifest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "manifest build failed")
		return
	}

	writeJSON(w, http.StatusOK, s.svc.ComputeDelta(local, *req.RemoteManifest))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, token *models.AuthToken) {
	var result *models.SyncResult
	if r.ContentLength != 0 {
		var body models.SyncResult
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid result body")
			return
		}
		result = &body
	}

	ts := s.svc.CompleteSync(token, models.TransportLAN, result)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"timestamp": ts,
	})
}

func (s *Server) handleNoteGet(w http.ResponseWriter, r *http.Request, _ *models.AuthToken) {
	path := r.PathValue("path")
	content, err := s.svc.NoteContent(path)
	if err != nil {
		if errors.Is(err, models.ErrNoteNotFound) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"path":    path,
		"content": content,
	})
}

type notePutRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleNotePut(w http.ResponseWriter, r *http.Request, _ *models.AuthToken) {
	path := r.PathValue("path")

	var req notePutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid note body")
		return
	}

	if err := s.svc.ApplyRemoteNote(path, req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleNoteDelete(w http.ResponseWriter, r *http.Request, _ *models.AuthToken) {
	path := r.PathValue("path")

	if err := s.svc.DeleteNote(path); err != nil {
		if errors.Is(err, models.ErrNoteNotFound) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// LocalIP returns the machine's primary outbound IPv4 address, used in
// pairing QR payloads. Falls back to loopback when offline.
func LocalIP() string {
	conn, err := net.Dial("udp", "192.0.2.1:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
