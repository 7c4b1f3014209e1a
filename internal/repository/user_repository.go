package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// UserRepo reads the local projection of identity-service accounts.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// ErrEmailExists is returned by Upsert when another account owns the email.
var ErrEmailExists = errors.New("email already exists")

const userColumns = `id, email, name, role, paypal_email, stripe_account_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var paypal, stripe sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &paypal, &stripe, &u.CreatedAt, &u.UpdatedAt)
	u.PayPalEmail = paypal.String
	u.StripeAccountID = stripe.String
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(q(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Upsert inserts or refreshes a user projection.  Used by partyctl and by
// tests to seed accounts synced from the identity service.
func (r *UserRepo) Upsert(ctx context.Context, u model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	_, err := q(ctx, r.db).ExecContext(ctx, `
INSERT INTO users (id, email, name, role, paypal_email, stripe_account_id)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE name=VALUES(name), role=VALUES(role),
	paypal_email=VALUES(paypal_email), stripe_account_id=VALUES(stripe_account_id)`,
		u.ID, u.Email, u.Name, u.Role, nullString(u.PayPalEmail), nullString(u.StripeAccountID))
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
