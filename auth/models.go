package auth

import "time"

type Role string

const (
	// RoleAdmin is the contract administrator: emergency resolutions,
	// escrow releases, and engine parameter changes.
	RoleAdmin Role = "admin"
	// RoleArbitrator marks principals eligible to register in the
	// arbitrator pool.
	RoleArbitrator Role = "arbitrator"
	// RoleParty is the default role for plaintiffs, defendants, and other
	// involved parties.
	RoleParty Role = "party"
)

// User is the domain representation of an authenticated principal.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
