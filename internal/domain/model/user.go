package model

import "github.com/google/uuid"

// User is an account record. Password holds the encoded argon2id hash, never
// the plain text. The hash survives storage round-trips; call Public before
// putting a user on the wire.
type User struct {
	ID               uuid.UUID `json:"_id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Password         string    `json:"password,omitempty"`
	AvatarImage      string    `json:"avatarImage"`
	IsAvatarImageSet bool      `json:"isAvatarImageSet"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        int64     `json:"created_at"`
}

// Public returns a copy safe for API responses.
func (u *User) Public() *User {
	pub := *u
	pub.Password = ""
	return &pub
}
