// Package domain contains core concepts of the feed.
// This file defines the authenticated identity stamped on outgoing messages.
package domain

type Identity struct {
	UserID string
	Email  string
}

// Name is the sender string carried by messages.
func (i Identity) Name() string {
	if i.Email != "" {
		return i.Email
	}
	return i.UserID
}
