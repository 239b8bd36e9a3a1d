package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"chatsend/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidateRoomID(t *testing.T) {
	tests := []struct {
		name    string
		roomID  string
		wantErr bool
	}{
		{"simple", "GENERAL", false},
		{"direct room", "abc123def456-xyz", false},
		{"dotted", "team.ops_1", false},
		{"empty", "", true},
		{"slash", "room/1", true},
		{"space", "room 1", true},
		{"too long", strings.Repeat("r", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomID(tt.roomID)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateMessageID(t *testing.T) {
	assert.NoError(t, ValidateMessageID("aBcDeFgHiJkLmNoPq"))
	assert.Error(t, ValidateMessageID(""))
	assert.Error(t, ValidateMessageID("a\nb"))
	assert.Error(t, ValidateMessageID("a/b"))
	assert.Error(t, ValidateMessageID(strings.Repeat("x", 65)))
}

func TestValidateThreadID(t *testing.T) {
	assert.NoError(t, ValidateThreadID(""))
	assert.NoError(t, ValidateThreadID("parent1"))

	err := ValidateThreadID("bad\x00id")
	assert.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestValidateMessageBody(t *testing.T) {
	assert.NoError(t, ValidateMessageBody("hi", 0))
	assert.NoError(t, ValidateMessageBody("héllo", 5))

	assert.Error(t, ValidateMessageBody("", 0))
	assert.Error(t, ValidateMessageBody("   \n", 0))
	assert.Error(t, ValidateMessageBody("\xff\xfe", 0))
	assert.Error(t, ValidateMessageBody("toolong", 3))
}

func TestValidateHTTPRequestSize(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader("12345"))
	assert.NoError(t, ValidateHTTPRequestSize(req, 10))
	assert.Error(t, ValidateHTTPRequestSize(req, 4))

	req.ContentLength = -1
	assert.Error(t, ValidateHTTPRequestSize(req, 10))
}

func TestValidateStringLength(t *testing.T) {
	assert.NoError(t, ValidateStringLength("abc", "name", 1, 5))
	assert.Error(t, ValidateStringLength("", "name", 1, 5))
	assert.Error(t, ValidateStringLength("abcdef", "name", 1, 5))
}

func TestValidateTimeout(t *testing.T) {
	assert.NoError(t, ValidateTimeout(30, "remote.timeout_sec"))
	assert.Error(t, ValidateTimeout(0, "remote.timeout_sec"))
	assert.Error(t, ValidateTimeout(3601, "remote.timeout_sec"))
}
