package privacy

import (
	"net/url"
	"path/filepath"
	"strings"
)

// MaskUserID masks a user identifier
// Example: "user123456" -> "******3456"
func MaskUserID(userID string) string {
	if userID == "" {
		return ""
	}
	return maskString(userID, 4)
}

// MaskToken hides an auth token entirely apart from its length class
// Example: "abcdef0123456789" -> "[token:16]"
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	return "[token:" + lengthClass(len(token)) + "]"
}

// MaskRoomID masks direct-message room ids, which are built from the two
// participants' user ids. Channel ids such as "GENERAL" are left readable.
// Example: "aaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbb" -> "****...bbbb"
func MaskRoomID(roomID string) string {
	if roomID == "" {
		return ""
	}
	if len(roomID) < 2*17 {
		return roomID
	}
	return "****..." + roomID[len(roomID)-4:]
}

// MaskServerURL drops credentials, query and fragment from a URL so that
// tokens passed as parameters never reach the log.
// Example: "https://bob:pw@chat.example.com/api/v1/x?token=1" -> "https://chat.example.com/api/v1/x"
func MaskServerURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[invalid-url]"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// MaskFilePath keeps only the file name of a local path
// Example: "/home/alice/photos/cat.png" -> ".../cat.png"
func MaskFilePath(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	if base == path {
		return base
	}
	return ".../" + base
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

func lengthClass(n int) string {
	switch {
	case n < 16:
		return "short"
	case n < 32:
		return "16+"
	case n < 64:
		return "32+"
	default:
		return "64+"
	}
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "user_id", "userId", "username":
			masked[k] = MaskUserID(s)
		case "auth_token", "token":
			masked[k] = MaskToken(s)
		case "room_id", "rid":
			masked[k] = MaskRoomID(s)
		case "server", "server_url", "endpoint":
			masked[k] = MaskServerURL(s)
		case "path", "file_path":
			masked[k] = MaskFilePath(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
