package security

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative file", "outbox.db", false},
		{"absolute file", "/var/lib/chatsend/outbox.db", false},
		{"nested relative", "data/outbox.db", false},
		{"dotted name", "outbox..db", false},
		{"empty", "", true},
		{"nul byte", "out\x00box.db", true},
		{"parent traversal", "../outbox.db", true},
		{"inner traversal", "data/../../etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilePathWithBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "uploads")

	assert.NoError(t, ValidateFilePathWithBase("photo.png", base))
	assert.NoError(t, ValidateFilePathWithBase(filepath.Join(base, "a", "photo.png"), base))
	assert.NoError(t, ValidateFilePathWithBase("/anywhere/photo.png", ""))

	assert.Error(t, ValidateFilePathWithBase("/etc/passwd", base))
	assert.Error(t, ValidateFilePathWithBase(base+"-other/photo.png", base))
	assert.Error(t, ValidateFilePathWithBase("../photo.png", base))
}
