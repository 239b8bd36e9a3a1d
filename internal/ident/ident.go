package ident

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"chatsend/internal/constants"
)

// Unmistakable characters: no 0/O, 1/I/l.
const alphabet = "23456789ABCDEFGHJKLMNPQRSTWXYZabcdefghijkmnopqrstuvwxyz"

// NewMessageID returns a random identifier in the format the chat server uses
// for its own ids. Ids are assigned once, by the sender.
func NewMessageID() string {
	return Random(constants.MessageIDLength)
}

// Random returns n characters drawn uniformly from the unmistakable alphabet.
func Random(n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS source is unavailable
			return fallback(n)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf)
}

func fallback(n int) string {
	s := fmt.Sprintf("%x", time.Now().UnixNano())
	for len(s) < n {
		s += s
	}
	return s[:n]
}

// Clock supplies capture timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock, truncated to milliseconds like the
// timestamps the store persists.
func SystemClock() Clock {
	return millisClock{inner: systemClock{}}
}

type millisClock struct {
	inner Clock
}

func (c millisClock) Now() time.Time {
	return c.inner.Now().Truncate(time.Millisecond)
}

// FixedClock returns the same instant on every call. Useful for tests and
// replays.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// Advance moves the clock forward.
func (c *FixedClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}
