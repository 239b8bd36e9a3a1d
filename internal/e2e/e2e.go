// Package e2e seals outgoing message bodies with per-room keys before they
// leave the device. Rooms without a configured key pass through unchanged.
package e2e

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"sync"

	"chatsend/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

var (
	userMentionPattern    = regexp.MustCompile(`(?:^|\s)@([\w.\-]+)`)
	channelMentionPattern = regexp.MustCompile(`(?:^|\s)#([\w.\-]+)`)
)

type roomKey struct {
	id  string
	key [models.E2EKeySize]byte
}

// Encryptor holds the keys of every end-to-end encrypted room.
type Encryptor struct {
	mu      sync.RWMutex
	enabled bool
	rooms   map[string]roomKey
	logger  *logrus.Logger
}

// NewEncryptor builds an encryptor from configuration. Keys are base64
// encoded 32 byte values; key ids are exactly 12 characters.
func NewEncryptor(cfg models.E2EConfig, logger *logrus.Logger) (*Encryptor, error) {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Encryptor{
		enabled: cfg.Enabled,
		rooms:   make(map[string]roomKey, len(cfg.Rooms)),
		logger:  logger,
	}
	for _, room := range cfg.Rooms {
		if err := e.SetRoomKey(room.RoomID, room.KeyID, room.Key); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetRoomKey installs or replaces the key of a room.
func (e *Encryptor) SetRoomKey(roomID, keyID, encodedKey string) error {
	if roomID == "" {
		return fmt.Errorf("e2e room id is required")
	}
	if len(keyID) != models.E2EKeyIDSize {
		return fmt.Errorf("e2e key id for room %s must be %d characters", roomID, models.E2EKeyIDSize)
	}
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return fmt.Errorf("e2e key for room %s is not valid base64: %w", roomID, err)
	}
	if len(raw) != models.E2EKeySize {
		return fmt.Errorf("e2e key for room %s must be %d bytes, got %d", roomID, models.E2EKeySize, len(raw))
	}

	rk := roomKey{id: keyID}
	copy(rk.key[:], raw)

	e.mu.Lock()
	e.rooms[roomID] = rk
	e.mu.Unlock()
	return nil
}

// Enabled reports whether end-to-end encryption is switched on at all.
func (e *Encryptor) Enabled() bool {
	return e.enabled
}

// HasRoom reports whether outgoing messages of the room will be sealed.
func (e *Encryptor) HasRoom(roomID string) bool {
	if !e.enabled {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.rooms[roomID]
	return ok
}

// EncryptMessage returns the payload to transmit. For encrypted rooms the
// body is replaced by keyID followed by base64(nonce || sealed) and the type
// is set to e2e. Other rooms get a copy with the plain type.
func (e *Encryptor) EncryptMessage(ctx context.Context, msg *models.OutgoingMessage) (*models.OutgoingMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := *msg
	out.Type = models.MessageTypePlain
	out.E2EMentions = nil

	if !e.enabled {
		return &out, nil
	}

	e.mu.RLock()
	rk, ok := e.rooms[msg.RoomID]
	e.mu.RUnlock()
	if !ok {
		return &out, nil
	}

	var nonce [models.E2ENonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(msg.Msg), &nonce, &rk.key)
	out.Msg = rk.id + base64.StdEncoding.EncodeToString(sealed)
	out.Type = models.MessageTypeE2E
	out.E2EMentions = extractMentions(msg.Msg)

	e.logger.WithFields(logrus.Fields{
		"room_id": msg.RoomID,
		"key_id":  rk.id,
	}).Debug("Sealed outgoing message")

	return &out, nil
}

// DecryptBody opens a body produced by EncryptMessage for the given room.
func (e *Encryptor) DecryptBody(roomID, body string) (string, error) {
	e.mu.RLock()
	rk, ok := e.rooms[roomID]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no e2e key for room %s", roomID)
	}

	if len(body) < models.E2EKeyIDSize || body[:models.E2EKeyIDSize] != rk.id {
		return "", fmt.Errorf("body was not sealed with the current key of room %s", roomID)
	}

	data, err := base64.StdEncoding.DecodeString(body[models.E2EKeyIDSize:])
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed body: %w", err)
	}
	if len(data) < models.E2ENonceSize+secretbox.Overhead {
		return "", fmt.Errorf("sealed body too short")
	}

	var nonce [models.E2ENonceSize]byte
	copy(nonce[:], data[:models.E2ENonceSize])
	plain, ok := secretbox.Open(nil, data[models.E2ENonceSize:], &nonce, &rk.key)
	if !ok {
		return "", fmt.Errorf("failed to open sealed body")
	}
	return string(plain), nil
}

func extractMentions(text string) *models.E2EMentions {
	var mentions models.E2EMentions
	for _, m := range userMentionPattern.FindAllStringSubmatch(text, -1) {
		mentions.Mentions = append(mentions.Mentions, "@"+m[1])
	}
	for _, m := range channelMentionPattern.FindAllStringSubmatch(text, -1) {
		mentions.Channels = append(mentions.Channels, "#"+m[1])
	}
	if len(mentions.Mentions) == 0 && len(mentions.Channels) == 0 {
		return nil
	}
	return &mentions
}
