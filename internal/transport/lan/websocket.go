package lan

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
)

// Peer-facing close codes. The mobile client distinguishes these to
// decide whether to re-pair or just reconnect.
const (
	closeAuthTimeout  = 4001
	closeAuthExpected = 4002
	closeInvalidToken = 4003
)

const (
	authWindow   = 10 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Peers are native apps on the local network, not browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is the framed JSON envelope spoken on /ws, both directions.
// Auth frames carry the token at the top level; a nested data.token is
// also accepted.
type wsMessage struct {
	Type  string          `json:"type"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type wsAuthPayload struct {
	Token string `json:"token"`
}

// socket is one live WebSocket connection. Writes are serialized; the
// read loop is the owning goroutine.
type socket struct {
	conn     *websocket.Conn
	deviceID string

	writeMu sync.Mutex
	closed  bool
}

func (c *socket) send(msgType string, data interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}

	msg := wsMessage{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = raw
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *socket) closeWith(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	c.conn.Close()
}

func (c *socket) close() {
	c.closeWith(websocket.CloseNormalClosure, "")
}

// handleWebSocket upgrades the connection and runs its read loop. The
// first frame must be an auth message carrying a paired token; anything
// else closes the socket with a typed code.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	sock := &socket{conn: conn}
	go s.readLoop(sock)
}

func (s *Server) readLoop(sock *socket) {
	defer s.dropSocket(sock)

	// Unauthenticated sockets get a bounded lifetime.
	_ = sock.conn.SetReadDeadline(time.Now().Add(authWindow))

	var token *models.AuthToken
	for {
		var msg wsMessage
		if err := sock.conn.ReadJSON(&msg); err != nil {
			if token == nil && isTimeout(err) {
				sock.closeWith(closeAuthTimeout, "authentication timeout")
			}
			return
		}

		if token == nil {
			if msg.Type != "auth" {
				sock.closeWith(closeAuthExpected, "authentication required")
				return
			}

			raw := msg.Token
			if raw == "" && len(msg.Data) > 0 {
				var auth wsAuthPayload
				if err := json.Unmarshal(msg.Data, &auth); err == nil {
					raw = auth.Token
				}
			}
			if raw == "" {
				sock.closeWith(closeInvalidToken, "invalid token")
				return
			}
			token = s.svc.ValidateToken(raw)
			if token == nil {
				sock.closeWith(closeInvalidToken, "invalid token")
				return
			}

			_ = sock.conn.SetReadDeadline(time.Time{})
			sock.deviceID = token.DeviceID
			s.addSocket(sock)
			s.svc.AddConnectedDevice(models.SyncDevice{
				ID:          token.DeviceID,
				Name:        token.DeviceName,
				Type:        models.DeviceMobile,
				Transport:   models.TransportLAN,
				LastSeen:    time.Now().UnixMilli(),
				IsPaired:    true,
				IsConnected: true,
			})

			_ = sock.send("auth-success", map[string]string{
				"deviceId": s.svc.DeviceID(),
			})
			continue
		}

		s.dispatch(sock, token, msg)
	}
}

func (s *Server) dispatch(sock *socket, token *models.AuthToken, msg wsMessage) {
	switch msg.Type {
	case "request-sync":
		s.svc.SetStatus(models.StatusSyncing)
		_ = sock.send("sync-started", nil)

	case "ping":
		_ = sock.send("pong", nil)

	default:
		s.logger.WithFields(map[string]interface{}{
			"type":      msg.Type,
			"device_id": token.DeviceID,
		}).Debug("Unhandled WebSocket message")
	}
}

func (s *Server) addSocket(sock *socket) {
	s.mu.Lock()
	s.sockets[sock] = struct{}{}
	s.mu.Unlock()
}

// dropSocket removes the socket from the registry and, when it was the
// device's last connection, reports the disconnect.
func (s *Server) dropSocket(sock *socket) {
	sock.close()

	s.mu.Lock()
	_, tracked := s.sockets[sock]
	delete(s.sockets, sock)
	remaining := false
	for other := range s.sockets {
		if other.deviceID == sock.deviceID {
			remaining = true
			break
		}
	}
	s.mu.Unlock()

	if tracked && sock.deviceID != "" && !remaining {
		s.svc.RemoveConnectedDevice(sock.deviceID)
	}
}

// forwardEvents pushes bus notifications to connected peers. A revoked
// or disconnected device's sockets get closed here so revocation takes
// effect immediately.
func (s *Server) forwardEvents(ch <-chan events.Event) {
	for ev := range ch {
		switch ev.Type {
		case events.EventFileChanged:
			s.broadcast("file-changed", ev.Change)

		case events.EventStatusChanged:
			s.broadcast("sync-status", map[string]models.SyncStatus{"status": ev.Status})

		case events.EventSyncProgress:
			s.broadcast("sync-progress", ev.Progress)

		case events.EventDeviceDisconnected:
			s.closeDevice(ev.DeviceID)
		}
	}
}

func (s *Server) broadcast(msgType string, data interface{}) {
	s.mu.Lock()
	sockets := make([]*socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.Unlock()

	for _, sock := range sockets {
		if err := sock.send(msgType, data); err != nil {
			s.logger.WithError(err).WithField("device_id", sock.deviceID).Debug("Broadcast write failed")
		}
	}
}

func (s *Server) closeDevice(deviceID string) {
	s.mu.Lock()
	var toClose []*socket
	for sock := range s.sockets {
		if sock.deviceID == deviceID {
			toClose = append(toClose, sock)
			delete(s.sockets, sock)
		}
	}
	s.mu.Unlock()

	for _, sock := range toClose {
		sock.close()
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
