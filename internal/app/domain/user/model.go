// Package user holds the account model.
package user

import "time"

// User is a registered account. The password hash never leaves the server.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string `json:"-"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
