package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"chatsend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestEncryptor_Disabled(t *testing.T) {
	enc, err := newEncryptor(false, "")
	require.NoError(t, err)

	out, err := enc.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	back, err := enc.Decrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", back)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := newEncryptor(true, testSecret)
	require.NoError(t, err)

	sealed, err := enc.Encrypt("secret body")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, bodyPrefix))
	assert.NotContains(t, sealed, "secret body")

	other, err := enc.Encrypt("secret body")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, other)

	plain, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret body", plain)
}

func TestEncryptor_LegacyPlaintextReadsBack(t *testing.T) {
	enc, err := newEncryptor(true, testSecret)
	require.NoError(t, err)

	plain, err := enc.Decrypt("written before encryption")
	require.NoError(t, err)
	assert.Equal(t, "written before encryption", plain)
}

func TestEncryptor_Errors(t *testing.T) {
	_, err := newEncryptor(true, "")
	assert.Error(t, err)

	_, err = newEncryptor(true, "short")
	assert.Error(t, err)

	enc, err := newEncryptor(true, testSecret)
	require.NoError(t, err)

	_, err = enc.Decrypt(bodyPrefix + "!!!")
	assert.Error(t, err)

	_, err = enc.Decrypt(bodyPrefix + "AAAA")
	assert.Error(t, err)

	disabled, err := newEncryptor(false, "")
	require.NoError(t, err)
	_, err = disabled.Decrypt(bodyPrefix + "AAAA")
	assert.Error(t, err)
}

func TestDatabase_EncryptsBodiesAtRest(t *testing.T) {
	cfg := models.DatabaseConfig{
		Path:          filepath.Join(t.TempDir(), "outbox.db"),
		EncryptAtRest: true,
		EncryptionKey: testSecret,
	}
	db, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.Batch(ctx, models.CreateMessage(sampleMessage("m1", models.StatusTemp, 1000))))

	var raw string
	require.NoError(t, db.db.QueryRow(`SELECT msg FROM messages WHERE id = 'm1'`).Scan(&raw))
	assert.True(t, strings.HasPrefix(raw, bodyPrefix))

	m, err := db.FindMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello m1", m.Msg)
}
