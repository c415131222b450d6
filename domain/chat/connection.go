package chat

import "strings"

// Connection is one live client session.
type Connection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Room string `json:"room,omitempty"`
}

// Joined reports whether the connection is a member of a room.
func (c Connection) Joined() bool {
	return c.Room != ""
}

// NormalizeName returns the case-insensitive lookup key for a display name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameName reports whether two display names refer to the same user.
func SameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
