// Package models defines the server-side persistence models.
package models

import "time"

// User is a registered account. PasswordHash is a bcrypt hash.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}
