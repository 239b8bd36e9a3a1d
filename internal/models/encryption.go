package models

const (
	KeySize    = 32     // AES-256
	NonceSize  = 12     // GCM standard nonce size
	Iterations = 100000 // PBKDF2 iterations

	// E2E payloads are sealed with NaCl secretbox.
	E2EKeySize   = 32
	E2ENonceSize = 24
	E2EKeyIDSize = 12
)
