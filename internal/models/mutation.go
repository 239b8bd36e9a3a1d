package models

import "time"

// MutationKind names a single record change inside a store batch.
type MutationKind int

const (
	CreateMessageKind MutationKind = iota
	CreateThreadMessageKind
	CreateThreadKind
	CreateUploadKind
	SaveSubscriptionKind
	BumpThreadKind
	SetMessageStatusKind
	SetThreadMessageStatusKind
	SetUploadErrorKind
	DeleteUploadKind
	ClearDraftKind
)

func (k MutationKind) String() string {
	switch k {
	case CreateMessageKind:
		return "create_message"
	case CreateThreadMessageKind:
		return "create_thread_message"
	case CreateThreadKind:
		return "create_thread"
	case CreateUploadKind:
		return "create_upload"
	case SaveSubscriptionKind:
		return "save_subscription"
	case BumpThreadKind:
		return "bump_thread"
	case SetMessageStatusKind:
		return "set_message_status"
	case SetThreadMessageStatusKind:
		return "set_thread_message_status"
	case SetUploadErrorKind:
		return "set_upload_error"
	case DeleteUploadKind:
		return "delete_upload"
	case ClearDraftKind:
		return "clear_draft"
	default:
		return "unknown"
	}
}

// Mutation is one prepared change. A batch of mutations is applied by the
// store atomically or not at all.
type Mutation struct {
	Kind MutationKind
	ID   string

	Message       *Message
	ThreadMessage *ThreadMessage
	Thread        *Thread
	Upload        *Upload
	Subscription  *Subscription

	Status MessageStatus
	// Echo, when set on a status mutation, carries the server-computed
	// mentions and channels to copy onto the record.
	Echo  *Message
	At    time.Time
	Error bool
}

func CreateMessage(m *Message) Mutation {
	return Mutation{Kind: CreateMessageKind, ID: m.ID, Message: m}
}

func CreateThreadMessage(tm *ThreadMessage) Mutation {
	return Mutation{Kind: CreateThreadMessageKind, ID: tm.ID, ThreadMessage: tm}
}

func CreateThread(t *Thread) Mutation {
	return Mutation{Kind: CreateThreadKind, ID: t.ID, Thread: t}
}

func CreateUpload(u *Upload) Mutation {
	return Mutation{Kind: CreateUploadKind, ID: u.ID, Upload: u}
}

func SaveSubscription(s *Subscription) Mutation {
	return Mutation{Kind: SaveSubscriptionKind, ID: s.ID, Subscription: s}
}

// BumpThread increments the reply counter of the thread's originating message
// and of its header, if one exists, and moves their last activity to at.
func BumpThread(threadID string, at time.Time) Mutation {
	return Mutation{Kind: BumpThreadKind, ID: threadID, At: at}
}

func SetMessageStatus(id string, status MessageStatus, echo *Message) Mutation {
	return Mutation{Kind: SetMessageStatusKind, ID: id, Status: status, Echo: echo}
}

func SetThreadMessageStatus(id string, status MessageStatus, echo *Message) Mutation {
	return Mutation{Kind: SetThreadMessageStatusKind, ID: id, Status: status, Echo: echo}
}

func SetUploadError(id string, failed bool) Mutation {
	return Mutation{Kind: SetUploadErrorKind, ID: id, Error: failed}
}

func DeleteUpload(id string) Mutation {
	return Mutation{Kind: DeleteUploadKind, ID: id}
}

func ClearDraft(roomID string) Mutation {
	return Mutation{Kind: ClearDraftKind, ID: roomID}
}
