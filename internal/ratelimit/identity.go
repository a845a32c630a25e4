package ratelimit

import "strings"

// Fallback literals substituted for identity fields the caller could not
// provide.
const (
	Unknown   = "unknown"
	Anonymous = "anonymous"
)

// Identity carries the caller fields policies derive keys from. The HTTP layer
// fills it in; policies never see the request itself.
type Identity struct {
	IP         string
	UserID     string
	Email      string
	StudentID  string
	ElectionID string
}

// WithFallbacks returns a copy of id where every empty field holds its
// fallback literal.
func (id Identity) WithFallbacks() Identity {
	return Identity{
		IP:         orDefault(id.IP, Unknown),
		UserID:     orDefault(id.UserID, Anonymous),
		Email:      orDefault(id.Email, Unknown),
		StudentID:  orDefault(id.StudentID, Unknown),
		ElectionID: orDefault(id.ElectionID, Unknown),
	}
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}

// KeyFunc derives the part of a key that follows the policy prefix. It always
// receives an Identity with fallbacks applied.
type KeyFunc func(id Identity) string

// Key functions of the five guarded route classes.
var (
	LoginKey   KeyFunc = func(id Identity) string { return id.IP + ":" + id.Email }
	APIKey     KeyFunc = func(id Identity) string { return id.IP + ":" + id.UserID }
	VoteKey    KeyFunc = func(id Identity) string { return id.UserID + ":" + id.StudentID }
	BallotKey  KeyFunc = func(id Identity) string { return id.UserID + ":" + id.ElectionID }
	ResultsKey KeyFunc = func(id Identity) string { return id.IP }
)
