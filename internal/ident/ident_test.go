package ident

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageID(t *testing.T) {
	id := NewMessageID()
	require.Len(t, id, 17)
	for _, r := range id {
		assert.True(t, strings.ContainsRune(alphabet, r), "unexpected character %q", r)
	}
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewMessageID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestRandom_Length(t *testing.T) {
	assert.Len(t, Random(0), 0)
	assert.Len(t, Random(5), 5)
	assert.Len(t, Random(40), 40)
}

func TestFallback_Length(t *testing.T) {
	assert.Len(t, fallback(17), 17)
}

func TestSystemClock_TruncatesToMillis(t *testing.T) {
	now := SystemClock().Now()
	assert.Equal(t, now, now.Truncate(time.Millisecond))
}

func TestFixedClock(t *testing.T) {
	c := &FixedClock{T: time.Unix(10, 0)}
	assert.Equal(t, time.Unix(10, 0), c.Now())
	c.Advance(time.Second)
	assert.Equal(t, time.Unix(11, 0), c.Now())
}
