package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evrimko/synthd/internal/domain"
)

// AccountRepository is the PostgreSQL AccountStore.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (id, email, username, password_hash, role, is_active, created_at, updated_at)
		VALUES (:id, :email, :username, :password_hash, :role, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		// Detect unique constraint violations and surface as domain errors
		if isPgUniqueViolation(err, "accounts_email_key") {
			return domain.ErrEmailTaken
		}
		if isPgUniqueViolation(err, "accounts_username_key") {
			return domain.ErrUsernameTaken
		}
		return fmt.Errorf("account_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches an account by primary key.
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var a domain.Account
	err := r.db.GetContext(ctx, &a, `SELECT * FROM accounts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("account_repo.GetByID: %w", err)
	}
	return &a, nil
}

// GetByEmail fetches an account by email address (used for login).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var a domain.Account
	err := r.db.GetContext(ctx, &a, `SELECT * FROM accounts WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("account_repo.GetByEmail: %w", err)
	}
	return &a, nil
}

// GetByUsername fetches an account by username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var a domain.Account
	err := r.db.GetContext(ctx, &a, `SELECT * FROM accounts WHERE username = $1`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("account_repo.GetByUsername: %w", err)
	}
	return &a, nil
}

// List returns a paginated list of all accounts.
// Returns (accounts, totalCount, error).
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, int, error) {
	var accounts []*domain.Account
	var total int

	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM accounts`); err != nil {
		return nil, 0, fmt.Errorf("account_repo.List count: %w", err)
	}
	if err := r.db.SelectContext(ctx, &accounts,
		`SELECT * FROM accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("account_repo.List select: %w", err)
	}
	return accounts, total, nil
}

// UpdateRole changes an account's role (back-office operation).
func (r *AccountRepository) UpdateRole(ctx context.Context, id uuid.UUID, role domain.AccountRole) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET role = $1, updated_at = now() WHERE id = $2`,
		string(role), id)
	if err != nil {
		return fmt.Errorf("account_repo.UpdateRole: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// SetActive activates or deactivates an account.
func (r *AccountRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET is_active = $1, updated_at = now() WHERE id = $2`,
		active, id)
	if err != nil {
		return fmt.Errorf("account_repo.SetActive: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// isPgUniqueViolation checks whether err is a PostgreSQL unique constraint
// violation for the given constraint name.
func isPgUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unique constraint") && strings.Contains(msg, constraintName)
}
