package ble

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
	syncsvc "github.com/notesync/notesync/internal/services/sync"
)

const (
	// enableTimeout bounds adapter power-up; some stacks block forever
	// when Bluetooth is switched off.
	enableTimeout = 15 * time.Second

	authWindow = 10 * time.Second

	// defaultMTU is assumed until the radio reports a negotiated value.
	defaultMTU = 247

	controlQueueSize = 32
)

// controlMessage is the JSON envelope on the control characteristic,
// both directions.
type controlMessage struct {
	Type       string             `json:"type"`
	Token      string             `json:"token,omitempty"`
	Path       string             `json:"path,omitempty"`
	Chunks     int                `json:"chunks,omitempty"`
	Compressed bool               `json:"compressed,omitempty"`
	Size       int                `json:"size,omitempty"`
	Message    string             `json:"message,omitempty"`
	DeviceID   string             `json:"deviceId,omitempty"`
	Timestamp  int64              `json:"timestamp,omitempty"`
	Result     *models.SyncResult `json:"result,omitempty"`
}

// session is the state of the single connected central. BLE peripherals
// serve one sync peer at a time.
type session struct {
	gen   int
	addr  string
	token *models.AuthToken
	mtu   int

	// Incoming transfer state. The data-channel end packet only marks
	// assembly complete; application waits for the control-channel
	// send-file-end so its ack can report the real outcome.
	asm          assembler
	incomingPath string
	incomingData []byte
	incomingDone bool
	incomingErr  error
}

func (s *session) resetTransfer(path string) {
	s.asm.reset()
	s.incomingPath = path
	s.incomingData = nil
	s.incomingDone = false
	s.incomingErr = nil
}

// Transport is the BLE transport: a GATT peripheral speaking the sync
// protocol over two characteristics.
type Transport struct {
	svc    *syncsvc.Service
	radio  Peripheral
	logger *events.Logger

	mu      sync.Mutex
	running bool
	gen     int
	sess    *session
	queue   chan []byte
	done    chan struct{}
}

// NewTransport creates the BLE transport on the given radio.
func NewTransport(svc *syncsvc.Service, radio Peripheral, logger *events.Logger) *Transport {
	return &Transport{
		svc:    svc,
		radio:  radio,
		logger: logger.WithField("transport", "ble"),
	}
}

// Type implements transport.Transport.
func (t *Transport) Type() models.TransportType {
	return models.TransportBLE
}

// IsRunning implements transport.Transport.
func (t *Transport) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Start powers the adapter and begins advertising. An unusable adapter
// yields an error wrapping models.ErrBLEUnavailable; the caller keeps
// other transports running.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return models.ErrTransportRunning
	}

	enableCtx, cancel := context.WithTimeout(ctx, enableTimeout)
	defer cancel()
	if err := t.radio.Enable(enableCtx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBLEUnavailable, err)
	}

	info, err := json.Marshal(t.svc.DeviceInfo())
	if err != nil {
		return fmt.Errorf("marshal device info: %w", err)
	}

	cfg := ServiceConfig{
		LocalName:      t.svc.DeviceInfo().DeviceName,
		DeviceInfo:     info,
		OnConnect:      t.onConnect,
		OnControlWrite: t.enqueueControl,
		OnDataWrite:    t.handleData,
		OnMTU:          t.onMTU,
	}
	if err := t.radio.Advertise(cfg); err != nil {
		return fmt.Errorf("%w: advertise: %v", models.ErrBLEUnavailable, err)
	}

	t.running = true
	t.queue = make(chan []byte, controlQueueSize)
	t.done = make(chan struct{})
	go t.controlLoop(t.queue, t.done)

	t.logger.Info("BLE transport advertising")
	return nil
}

// Stop ends advertising and drops any live session.
func (t *Transport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	sess := t.sess
	t.sess = nil
	done := t.done
	t.queue = nil
	t.done = nil
	t.mu.Unlock()

	close(done)

	if sess != nil && sess.token != nil {
		t.svc.RemoveConnectedDevice(sess.token.DeviceID)
	}

	if err := t.radio.Stop(); err != nil {
		return &models.TransportError{Transport: models.TransportBLE, Phase: "stop", Err: err}
	}

	t.logger.Info("BLE transport stopped")
	return nil
}

func (t *Transport) onConnect(addr string, connected bool) {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}

	if connected {
		t.gen++
		gen := t.gen
		t.sess = &session{gen: gen, addr: addr, mtu: defaultMTU}
		t.mu.Unlock()

		t.logger.WithField("addr", addr).Info("Central connected")
		time.AfterFunc(authWindow, func() { t.expireAuth(gen) })
		return
	}

	sess := t.sess
	t.sess = nil
	t.mu.Unlock()

	if sess != nil {
		t.logger.WithField("addr", addr).Info("Central disconnected")
		if sess.token != nil {
			t.svc.RemoveConnectedDevice(sess.token.DeviceID)
		}
	}
}

// expireAuth drops a session that never authenticated. The peripheral
// role cannot force a link-layer disconnect on this stack, so the
// central stays connected but every further message is refused.
func (t *Transport) expireAuth(gen int) {
	t.mu.Lock()
	sess := t.sess
	if sess == nil || sess.gen != gen || sess.token != nil {
		t.mu.Unlock()
		return
	}
	t.sess = nil
	t.mu.Unlock()

	t.logger.WithField("addr", sess.addr).Warn("Authentication window expired")
	t.notifyControl(controlMessage{Type: "auth-fail", Message: "authentication timeout"})
}

func (t *Transport) onMTU(mtu int) {
	t.mu.Lock()
	if t.sess != nil && mtu > 0 {
		t.sess.mtu = mtu
	}
	t.mu.Unlock()
}

// enqueueControl hands a control write to the worker. Runs on the radio
// goroutine, so it never blocks; a full queue drops the message.
func (t *Transport) enqueueControl(data []byte) {
	t.mu.Lock()
	queue := t.queue
	t.mu.Unlock()
	if queue == nil {
		return
	}

	msg := append([]byte(nil), data...)
	select {
	case queue <- msg:
	default:
		t.logger.Warn("Control queue full; message dropped")
	}
}

// controlLoop processes control messages one at a time so every
// command's response (and any data transfer it triggers) completes
// before the next command runs.
func (t *Transport) controlLoop(queue chan []byte, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-queue:
			t.handleControl(msg)
		}
	}
}

func (t *Transport) handleControl(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.logger.WithError(err).Warn("Malformed control message")
		t.notifyControl(controlMessage{Type: "error", Message: "malformed message"})
		return
	}

	t.mu.Lock()
	sess := t.sess
	t.mu.Unlock()

	if sess == nil {
		// No live session: either nothing connected or the auth window
		// already expired. Either way the sender is not authenticated.
		t.notifyControl(controlMessage{Type: "auth-fail", Message: "not authenticated"})
		return
	}

	if sess.token == nil {
		if msg.Type != "auth" {
			t.notifyControl(controlMessage{Type: "error", Message: "authentication required"})
			return
		}
		t.handleAuth(sess, msg)
		return
	}

	switch msg.Type {
	case "request-manifest":
		t.handleRequestManifest()

	case "request-file":
		t.handleRequestFile(msg.Path)

	case "send-file-start":
		t.mu.Lock()
		if t.sess == sess {
			sess.resetTransfer(msg.Path)
		}
		t.mu.Unlock()
		t.svc.SetStatus(models.StatusSyncing)

	case "send-file-end":
		t.handleSendFileEnd(sess)

	case "delete-file":
		if err := t.svc.DeleteNote(msg.Path); err != nil {
			t.notifyControl(controlMessage{Type: "error", Path: msg.Path, Message: err.Error()})
			return
		}
		t.notifyControl(controlMessage{Type: "ack", Path: msg.Path})

	case "sync-complete":
		ts := t.svc.CompleteSync(sess.token, models.TransportBLE, msg.Result)
		t.notifyControl(controlMessage{Type: "complete-ack", Timestamp: ts})

	default:
		t.notifyControl(controlMessage{Type: "error", Message: "unknown message type: " + msg.Type})
	}
}

func (t *Transport) handleAuth(sess *session, msg controlMessage) {
	token := t.svc.ValidateToken(msg.Token)
	if token == nil {
		t.logger.WithField("addr", sess.addr).Warn("BLE authentication failed")
		t.notifyControl(controlMessage{Type: "auth-fail", Message: "invalid token"})
		return
	}

	t.mu.Lock()
	if t.sess != sess {
		t.mu.Unlock()
		return
	}
	sess.token = token
	t.mu.Unlock()

	t.svc.AddConnectedDevice(models.SyncDevice{
		ID:          token.DeviceID,
		Name:        token.DeviceName,
		Type:        models.DeviceMobile,
		Transport:   models.TransportBLE,
		LastSeen:    time.Now().UnixMilli(),
		IsPaired:    true,
		IsConnected: true,
	})
	t.notifyControl(controlMessage{Type: "auth-ok", DeviceID: t.svc.DeviceID()})
}

func (t *Transport) handleRequestManifest() {
	manifest, err := t.svc.BuildManifest()
	if err != nil {
		t.notifyControl(controlMessage{Type: "error", Message: "manifest build failed"})
		return
	}

	payload, err := json.Marshal(manifest)
	if err != nil {
		t.notifyControl(controlMessage{Type: "error", Message: "manifest encode failed"})
		return
	}

	data, compressed, chunks := t.prepareTransfer(payload)
	t.notifyControl(controlMessage{
		Type:       "manifest-ready",
		Chunks:     len(chunks),
		Compressed: compressed,
		Size:       len(payload),
	})
	if err := t.streamChunks(data, chunks); err != nil {
		t.logger.WithError(err).Warn("Manifest transfer failed")
	}
}

func (t *Transport) handleRequestFile(path string) {
	content, err := t.svc.NoteContent(path)
	if err != nil {
		t.notifyControl(controlMessage{Type: "error", Path: path, Message: err.Error()})
		return
	}

	data, compressed, chunks := t.prepareTransfer([]byte(content))
	t.notifyControl(controlMessage{
		Type:       "file-ready",
		Path:       path,
		Chunks:     len(chunks),
		Compressed: compressed,
		Size:       len(content),
	})
	if err := t.streamChunks(data, chunks); err != nil {
		t.logger.WithError(err).WithField("path", path).Warn("File transfer failed")
	}
}

// handleSendFileEnd applies the assembled incoming transfer. The ack or
// error reflects the actual outcome; a central whose transfer broke
// must not be told the file applied.
func (t *Transport) handleSendFileEnd(sess *session) {
	t.mu.Lock()
	path := sess.incomingPath
	payload := sess.incomingData
	transferErr := sess.incomingErr
	complete := sess.incomingDone
	sess.resetTransfer("")
	t.mu.Unlock()

	if path == "" {
		t.notifyControl(controlMessage{Type: "error", Message: "no transfer in progress"})
		return
	}
	if transferErr != nil {
		t.notifyControl(controlMessage{Type: "error", Path: path, Message: transferErr.Error()})
		return
	}
	if !complete {
		t.notifyControl(controlMessage{Type: "error", Path: path, Message: "transfer incomplete"})
		return
	}

	content := decompressOrRaw(payload)
	if err := t.svc.ApplyRemoteNote(path, string(content)); err != nil {
		t.notifyControl(controlMessage{Type: "error", Path: path, Message: err.Error()})
		return
	}
	t.notifyControl(controlMessage{Type: "ack", Path: path})
}

// prepareTransfer compresses and chunks an outgoing payload against the
// session's current MTU.
func (t *Transport) prepareTransfer(payload []byte) ([]byte, bool, [][]byte) {
	t.mu.Lock()
	mtu := defaultMTU
	if t.sess != nil {
		mtu = t.sess.mtu
	}
	t.mu.Unlock()

	data, compressed := maybeCompress(payload)
	return data, compressed, chunkPayload(data, mtu)
}

// streamChunks frames the payload over the data characteristic. Yields
// between chunks so notifications drain instead of flooding the stack.
func (t *Transport) streamChunks(data []byte, chunks [][]byte) error {
	if err := t.radio.NotifyData(startPacket(len(chunks))); err != nil {
		return fmt.Errorf("send start packet: %w", err)
	}
	for _, chunk := range chunks {
		if err := t.radio.NotifyData(dataPacket(chunk)); err != nil {
			return fmt.Errorf("send data packet: %w", err)
		}
		runtime.Gosched()
	}
	if err := t.radio.NotifyData(endPacket()); err != nil {
		return fmt.Errorf("send end packet: %w", err)
	}
	return nil
}

// handleData assembles incoming transfer packets. Runs inline on the
// radio goroutine to preserve packet order; the end packet only marks
// assembly complete, application waits for send-file-end.
func (t *Transport) handleData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess := t.sess
	if sess == nil || sess.token == nil {
		return
	}

	payload, done, err := sess.asm.feed(data)
	if err != nil {
		sess.incomingErr = err
		t.logger.WithError(err).Warn("Transfer packet rejected")
		return
	}
	if done {
		sess.incomingData = payload
		sess.incomingDone = true
	}
}

func (t *Transport) notifyControl(msg controlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		t.logger.WithError(err).Error("Control message encode failed")
		return
	}
	if err := t.radio.NotifyControl(data); err != nil {
		t.logger.WithError(err).Debug("Control notify failed")
	}
}
