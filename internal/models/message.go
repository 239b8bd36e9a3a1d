package models

import "time"

// Message types the encryption adapter can tag an outgoing payload with.
const (
	MessageTypePlain = ""
	MessageTypeE2E   = "e2e"
)

// E2EStatus records whether an end-to-end payload was decrypted locally.
type E2EStatus string

const (
	E2EStatusPending E2EStatus = "pending"
	E2EStatusDone    E2EStatus = "done"
)

// UserRef identifies the author of a message.
type UserRef struct {
	ID       string `json:"_id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// ChannelRef is a channel mentioned in a message body (#channel).
type ChannelRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

// Attachment is the cached attachment metadata of a message.
type Attachment struct {
	Title       string `json:"title,omitempty"`
	TitleLink   string `json:"title_link,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Type        string `json:"type,omitempty"`
}

// Message is a room message as persisted in the messages collection.
type Message struct {
	ID                string        `json:"_id"`
	RoomID            string        `json:"rid"`
	Msg               string        `json:"msg"`
	User              UserRef       `json:"u"`
	TS                time.Time     `json:"ts"`
	UpdatedAt         time.Time     `json:"_updatedAt"`
	Status            MessageStatus `json:"status"`
	ThreadID          string        `json:"tmid,omitempty"`
	ThreadMsg         string        `json:"tmsg,omitempty"`
	ThreadShow        bool          `json:"tshow,omitempty"`
	ThreadCount       int           `json:"tcount,omitempty"`
	ThreadLastMessage *time.Time    `json:"tlm,omitempty"`
	Mentions          []UserRef     `json:"mentions,omitempty"`
	Channels          []ChannelRef  `json:"channels,omitempty"`
	Type              string        `json:"t,omitempty"`
	E2E               E2EStatus     `json:"e2e,omitempty"`
	Attachments       []Attachment  `json:"attachments,omitempty"`
}

// IsReply reports whether the message belongs to a thread.
func (m *Message) IsReply() bool {
	return m.ThreadID != ""
}

// ThreadMessage is a thread reply duplicated into the thread-scoped collection.
// ThreadID always points back at the message that originated the thread.
type ThreadMessage struct {
	ID        string        `json:"_id"`
	RoomID    string        `json:"subscription"`
	ThreadID  string        `json:"rid"`
	Msg       string        `json:"msg"`
	User      UserRef       `json:"u"`
	TS        time.Time     `json:"ts"`
	UpdatedAt time.Time     `json:"_updatedAt"`
	Status    MessageStatus `json:"status"`
	Mentions  []UserRef     `json:"mentions,omitempty"`
	Channels  []ChannelRef  `json:"channels,omitempty"`
	Type      string        `json:"t,omitempty"`
	E2E       E2EStatus     `json:"e2e,omitempty"`
}

// Thread is the header of a thread, keyed by the id of its originating message.
type Thread struct {
	ID                string        `json:"_id"`
	RoomID            string        `json:"rid"`
	ThreadID          string        `json:"tmid"`
	Msg               string        `json:"msg"`
	TS                time.Time     `json:"ts"`
	UpdatedAt         time.Time     `json:"_updatedAt"`
	Status            MessageStatus `json:"status"`
	User              UserRef       `json:"u"`
	Type              string        `json:"t,omitempty"`
	E2E               E2EStatus     `json:"e2e,omitempty"`
	Attachments       []Attachment  `json:"attachments,omitempty"`
	ReplyCount        int           `json:"tcount"`
	ThreadLastMessage *time.Time    `json:"tlm,omitempty"`
}

// Upload is a file attachment waiting to be transmitted. Error is the only
// resend signal an upload carries.
type Upload struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"rid"`
	ThreadID    string    `json:"tmid,omitempty"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type,omitempty"`
	Size        int64     `json:"size"`
	Progress    int       `json:"progress"`
	Error       bool      `json:"error"`
	TS          time.Time `json:"ts"`
}

// UploadEpoch is the creation timestamp given to uploads that predate the ts
// column. Such uploads carry no reliable ordering.
var UploadEpoch = time.Unix(0, 0)

// HasReliableTimestamp reports whether the upload was created after the ts
// column was introduced.
func (u *Upload) HasReliableTimestamp() bool {
	return !u.TS.Equal(UploadEpoch)
}

// Subscription is the local view of a room the user belongs to.
type Subscription struct {
	ID           string  `json:"rid"`
	Name         string  `json:"name"`
	DraftMessage *string `json:"draftMessage,omitempty"`
	Encrypted    bool    `json:"encrypted"`
	E2EKeyID     string  `json:"e2eKeyId,omitempty"`
}

// HasDraft reports whether the room holds an unsent draft.
func (s *Subscription) HasDraft() bool {
	return s.DraftMessage != nil && *s.DraftMessage != ""
}
