// Package identity tracks the simulated user accounts the agent has
// created (its local address book) and their authentication state.
package identity

import "time"

// Identity is one locally known account. Immutable once created except
// for Password, which rotates through the change-password flow.
type Identity struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Public is the password-free view handed to the model.
type Public struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Public returns the identity without credentials.
func (i Identity) Public() Public {
	return Public{ID: i.ID, Username: i.Username, Email: i.Email}
}
