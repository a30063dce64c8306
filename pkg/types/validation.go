package types

import "regexp"

var (
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	roomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9:_-]{1,128}$`)
)

// MaxContentBytes caps chat content size.
const MaxContentBytes = 65536

// IsValidUserID reports whether a caller-supplied user id is well formed.
func IsValidUserID(userID string) bool {
	return userIDRegex.MatchString(userID)
}

// IsValidRoomID reports whether a caller-supplied room id is well formed.
// Room identifiers are opaque strings; the core imposes no format beyond
// uniqueness within their namespace and a sane character set for topics.
func IsValidRoomID(roomID string) bool {
	return roomIDRegex.MatchString(roomID)
}

// ValidateChatContent checks content against emptiness and size limits.
func ValidateChatContent(content string) error {
	if content == "" {
		return ErrEmptyMessage
	}
	if len(content) > MaxContentBytes {
		return ErrContentTooLarge
	}
	return nil
}
