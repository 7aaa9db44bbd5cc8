package models

import "time"

// TokenSet is the opaque session material attached to outbound feed
// requests, plus the moment it was last refreshed. The zero value is a
// valid "no tokens" set.
type TokenSet struct {
	Cookies     map[string]string `json:"cookies"`
	LastUpdated int64             `json:"timestamp"`
}

// Age returns how old the token set is relative to now.
func (t TokenSet) Age(now time.Time) time.Duration {
	if t.LastUpdated == 0 {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(time.Unix(t.LastUpdated, 0))
}

// Empty reports whether the set carries no cookies at all.
func (t TokenSet) Empty() bool {
	return len(t.Cookies) == 0
}
