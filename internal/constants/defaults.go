package constants

// Default retry configuration values
const (
	DefaultRetryBackoffMs         = 200
	DefaultMaxBackoffMs           = 5000
	DefaultMaxAttempts            = 5
	DefaultDatabaseRetryAttempts  = 3
	DefaultDatabaseBusyTimeoutMs  = 5000
	DefaultDatabaseMaxOpenConns   = 1
	DefaultDatabaseWriteRetries   = 3
	DefaultStatusSubscriberBuffer = 64
)

// Default remote and server values
const (
	DefaultRemoteTimeoutSec      = 30
	DefaultListenAddr            = "127.0.0.1:8085"
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultConfigPollIntervalSec = 5
	ServerErrorChannelSize       = 1
)

// Default outbox values
const (
	// MessageIDLength matches the length of ids the chat server assigns itself.
	MessageIDLength = 17
	// FallbackUserID is used when the session user has no id yet.
	FallbackUserID              = "1"
	DefaultSweepMonitorSec      = 60
	DefaultStaleThresholdSec    = 300
	DefaultMaxMessageLength     = 5000
	DefaultMaxRoomIDLength      = 128
	DefaultWebsocketWriteTimeMs = 5000
	MaxMessageIDLength          = 64
	MaxHTTPRequestBytes         = 1 << 20
	MaxTimeoutSec               = 3600
)

// Encryption salts for at-rest encryption of message bodies
const (
	EncryptionSalt            = "chatsend-outbox-body-v1"
	MinEncryptionSecretLength = 32
)

// Privacy settings
const (
	DefaultMessageIDLength = 8
)
