// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// User is a participant: one display-name-bound endpoint, valid for the
// lifetime of a single transport connection.
type User struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

// NewUser validates the display name and assigns a fresh id.
func NewUser(name string) (*User, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	id := UserID(uuid.NewString())
	return &User{ID: id, Name: name}, nil
}

func (u *User) SetName(name string) error {
	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	u.Name = name
	return nil
}

// ValidateName trims surrounding whitespace and checks length bounds.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return name, nil
}
