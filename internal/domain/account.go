package domain

import (
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// AccountRole
// ──────────────────────────────────────────────────────────────────────────────

// AccountRole controls access levels in the back-office.
type AccountRole string

const (
	RoleHolder   AccountRole = "holder"   // standard position holder
	RoleAdmin    AccountRole = "admin"    // full back-office access
	RoleRisk     AccountRole = "risk"     // risk dashboards, liquidation queue
	RoleOps      AccountRole = "ops"      // operations: feed management
	RoleReadOnly AccountRole = "readonly" // read-only back-office access
)

// CanAccessBackoffice returns true for all non-standard roles.
func (r AccountRole) CanAccessBackoffice() bool {
	return r != RoleHolder
}

// IsAdmin returns true only for the full admin role.
func (r AccountRole) IsAdmin() bool {
	return r == RoleAdmin
}

// ──────────────────────────────────────────────────────────────────────────────
// Account
// ──────────────────────────────────────────────────────────────────────────────

// Account is the domain entity for registered position holders.
type Account struct {
	ID           uuid.UUID   `json:"id"         db:"id"`
	Email        string      `json:"email"      db:"email"`
	Username     string      `json:"username"   db:"username"`
	PasswordHash string      `json:"-"          db:"password_hash"` // never serialised
	Role         AccountRole `json:"role"       db:"role"`
	IsActive     bool        `json:"is_active"  db:"is_active"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// PublicProfile returns an account view safe to expose via API (no password hash).
type PublicProfile struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	Username  string      `json:"username"`
	Role      AccountRole `json:"role"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
}

// ToPublicProfile converts an Account to its public-safe representation.
func (a *Account) ToPublicProfile() PublicProfile {
	return PublicProfile{
		ID:        a.ID,
		Email:     a.Email,
		Username:  a.Username,
		Role:      a.Role,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
	}
}
