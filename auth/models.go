package auth

import "time"

// Role classifies a principal's capability level. Admin is required for the
// privileged engine operations (blacklist, pause, tie-receipt release).
type Role string

const (
	RoleParticipant Role = "participant"
	RoleArbiter     Role = "arbiter"
	RoleAdmin       Role = "admin"
)

// User is the domain representation of a ledger-verified principal. The id
// string is the opaque principal identity the dispute engine sees.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
