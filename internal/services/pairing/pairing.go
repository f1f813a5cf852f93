// Package pairing implements PIN pairing challenges and bearer token
// minting/validation for the sync protocol.
package pairing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
)

const (
	pinDigits  = 6
	tokenBytes = 32

	// TTL is how long a pairing challenge stays valid.
	TTL = 5 * time.Minute
)

// Service owns the single outstanding pairing challenge for this
// desktop instance. Generating a new challenge invalidates the previous
// one; a successful validation consumes it.
type Service struct {
	deviceID string
	logger   *events.Logger
	now      func() time.Time

	mu      sync.Mutex
	current *models.PairingInfo
}

// NewService creates a pairing service.
func NewService(deviceID string, logger *events.Logger) *Service {
	return &Service{
		deviceID: deviceID,
		logger:   logger.WithField("service", "pairing"),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Used by tests to force expiry.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Generate mints a fresh pairing challenge, replacing any outstanding
// one. The QR payload embeds the connection descriptor for the mobile
// scanner.
func (s *Service) Generate(host string, port int, serviceName string) (models.PairingInfo, error) {
	pin, err := generatePIN()
	if err != nil {
		return models.PairingInfo{}, fmt.Errorf("generate pin: %w", err)
	}

	payload, err := json.Marshal(models.QRPayload{
		DeviceID:    s.deviceID,
		PIN:         pin,
		Host:        host,
		Port:        port,
		ServiceName: serviceName,
	})
	if err != nil {
		return models.PairingInfo{}, fmt.Errorf("marshal qr payload: %w", err)
	}

	info := models.PairingInfo{
		PIN:       pin,
		QRPayload: string(payload),
		ExpiresAt: s.now().Add(TTL).UnixMilli(),
	}

	s.mu.Lock()
	s.current = &info
	s.mu.Unlock()

	s.logger.WithField("expires_at", info.ExpiresAt).Info("Pairing challenge generated")
	return info, nil
}

// Validate checks a pairing attempt against the outstanding challenge.
// On success it consumes the challenge and returns a freshly minted
// token for the device; persistence is the caller's job. Failure does
// not reveal whether the PIN was wrong or the challenge expired.
func (s *Service) Validate(deviceID, pin, deviceName string) (*models.AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, models.ErrNoPairing
	}
	if s.current.Expired(s.now()) {
		s.current = nil
		return nil, models.ErrPairingExpired
	}
	if !constantTimeEqual(pin, s.current.PIN) {
		return nil, models.ErrPairingMismatch
	}

	// Single-use: consumed on success.
	s.current = nil

	secret, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now().UnixMilli()
	token := &models.AuthToken{
		Token:      secret,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		CreatedAt:  now,
		LastUsed:   now,
	}

	s.logger.WithFields(map[string]interface{}{
		"device_id":   deviceID,
		"device_name": deviceName,
	}).Info("Device paired")

	return token, nil
}

// Clear discards any outstanding challenge.
func (s *Service) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Current returns the outstanding challenge, if any.
func (s *Service) Current() *models.PairingInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	info := *s.current
	return &info
}

// ValidateToken scans the paired-device list for a matching secret.
// Every candidate is compared in constant time over its full length so
// timing never leaks which prefix matched. Returns the matching entry
// with LastUsed touched, or nil.
func ValidateToken(candidate string, paired []models.AuthToken, now time.Time) *models.AuthToken {
	for i := range paired {
		if constantTimeEqual(candidate, paired[i].Token) {
			paired[i].LastUsed = now.UnixMilli()
			return &paired[i]
		}
	}
	return nil
}

// constantTimeEqual compares two strings without short-circuiting on
// the first differing byte. Length is checked up front; equal-length
// inputs always take the full comparison loop.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func generatePIN() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < pinDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", pinDigits, n), nil
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
