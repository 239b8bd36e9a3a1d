package models

import "fmt"

// MessageStatus is the delivery state of an outgoing record. The integer values
// match what the chat client persists, so existing databases stay readable.
type MessageStatus int

const (
	StatusSent  MessageStatus = 0
	StatusTemp  MessageStatus = 1
	StatusError MessageStatus = 2
)

func (s MessageStatus) String() string {
	switch s {
	case StatusTemp:
		return "TEMP"
	case StatusSent:
		return "SENT"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// IsTerminal reports whether a send attempt has resolved.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusError
}

// NeedsDelivery reports whether the recovery sweep should pick the record up.
func (s MessageStatus) NeedsDelivery() bool {
	return s == StatusTemp || s == StatusError
}

// CanTransition reports whether moving a record from one status to another is
// part of the delivery lifecycle:
//
//	TEMP  -> SENT   remote acknowledged
//	TEMP  -> ERROR  send failed or was never confirmed
//	ERROR -> TEMP   queued again for replay
//	TEMP  -> TEMP   re-marked by a sweep
//
// SENT only leaves its state through an explicit resend (SENT -> TEMP).
func CanTransition(from, to MessageStatus) bool {
	switch to {
	case StatusTemp:
		return from == StatusTemp || from == StatusError || from == StatusSent
	case StatusSent, StatusError:
		return from == StatusTemp
	default:
		return false
	}
}
