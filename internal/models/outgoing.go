package models

// OutgoingMessage is the payload handed to the encryption adapter and then to
// the remote chat service.
type OutgoingMessage struct {
	ID          string       `json:"_id"`
	RoomID      string       `json:"rid"`
	Msg         string       `json:"msg"`
	ThreadID    string       `json:"tmid,omitempty"`
	ThreadShow  bool         `json:"tshow,omitempty"`
	Type        string       `json:"t,omitempty"`
	E2EMentions *E2EMentions `json:"e2eMentions,omitempty"`
}

// E2EMentions carries plaintext mention handles alongside an encrypted body so
// the server can still notify mentioned users.
type E2EMentions struct {
	Mentions []string `json:"e2eUserMentions,omitempty"`
	Channels []string `json:"e2eChannelMentions,omitempty"`
}

// IsEncrypted reports whether the encryption adapter produced an e2e payload.
func (m *OutgoingMessage) IsEncrypted() bool {
	return m.Type == MessageTypeE2E
}

// SendResult is the remote service's answer to a send request.
type SendResult struct {
	Success bool     `json:"success"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Session carries the connection and identity the sender acts under. It is
// passed explicitly to every send operation.
type Session struct {
	Server    string  `json:"server"`
	UserID    string  `json:"userId"`
	AuthToken string  `json:"-"`
	User      UserRef `json:"user"`
}
