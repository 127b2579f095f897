package models

import "time"

// User is an account owning companies. Email is stored lower-cased.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
