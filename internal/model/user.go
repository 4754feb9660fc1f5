// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an account known to the auth layer.
//
// A user signs up with email + password, or through GitHub. GitHubID is a
// pointer because most accounts never link GitHub; the UNIQUE constraint on
// github_id would reject two empty values otherwise.
//
// PasswordHash never leaves the server: the json:"-" tag keeps it out of
// every response, even if a handler serialises the whole struct by mistake.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Name         string    `json:"name"      db:"name"`
	Username     string    `json:"username"  db:"username"`
	GitHubID     *int64    `json:"githubId"  db:"github_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Profile is the public-facing shadow of a User, used for search and for
// showing who sent a request or wrote a comment. There is at most one
// profile per user id; it is upserted, never inserted blindly.
type Profile struct {
	ID        string    `json:"id"        db:"id"`
	Username  string    `json:"username"  db:"username"`
	Name      string    `json:"name"      db:"name"`
	Email     string    `json:"email"     db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// DisplayName is what the UI shows for a profile: username, then name, then email.
func (p Profile) DisplayName() string {
	switch {
	case p.Username != "":
		return p.Username
	case p.Name != "":
		return p.Name
	default:
		return p.Email
	}
}
