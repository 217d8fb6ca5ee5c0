package model

import "time"

// Roles a user can hold. MEMBER runs coffee chats, ADMIN records interview
// evaluations and may do everything a member can.
const (
	RoleCandidate = "CANDIDATE"
	RoleMember    = "MEMBER"
	RoleAdmin     = "ADMIN"
)

// User represents a row of the `users` table.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email (stored lower-cased)
	PasswordHash string    // users.password_hash (bcrypt)
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table. The plain
// token is never stored, only its SHA-256 hex digest.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
