// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxLoginLen       = 39 // GitHub's own login limit
	MaxDisplayNameLen = 36
)

var (
	ErrLoginEmpty         = errors.New("login empty")
	ErrLoginTooLong       = errors.New("login too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

// Login is the external identity a connection authenticates as
// (the GitHub account login).
type Login string

type User struct {
	Login       Login  `json:"login"`
	DisplayName string `json:"display_name"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(login, displayName string) (*User, error) {
	if login == "" {
		return nil, ErrLoginEmpty
	}
	if len(login) > MaxLoginLen {
		return nil, ErrLoginTooLong
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	if displayName == "" {
		displayName = login
	}
	return &User{Login: Login(login), DisplayName: displayName}, nil
}
