package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// PaymentRepo records capture attempts.  Rows are unique per provider
// transaction id and per idempotency key, which is what makes a replayed
// confirmation detectable.
type PaymentRepo struct{ db *sql.DB }

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, user_id, party_id, provider, provider_txn_id, amount, tickets, status,
	idempotency_key, failure_reason, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (model.Payment, error) {
	var p model.Payment
	var reason sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &p.PartyID, &p.Provider, &p.ProviderTxnID, &p.Amount, &p.Tickets,
		&p.Status, &p.IdempotencyKey, &reason, &p.CreatedAt, &p.UpdatedAt)
	p.FailureReason = reason.String
	return p, err
}

// Create inserts p.  A duplicate provider txn id or idempotency key is
// Aborted(ErrPaymentReplayed).
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) (model.TxResult, error) {
	_, err := q(ctx, r.db).ExecContext(ctx, `
INSERT INTO payments (id, user_id, party_id, provider, provider_txn_id, amount, tickets, status,
	idempotency_key, failure_reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.PartyID, p.Provider, p.ProviderTxnID, p.Amount, p.Tickets, p.Status,
		p.IdempotencyKey, nullString(p.FailureReason))
	if err != nil {
		if isDuplicate(err) {
			return model.Aborted(model.ErrPaymentReplayed), nil
		}
		if isConstraint(err) {
			return model.Aborted(model.ErrPartyNotFound), nil
		}
		return model.TxResult{}, fmt.Errorf("create payment: %w", err)
	}
	return model.Committed(), nil
}

// GetByID fetches a payment.  ok is false when it does not exist.
func (r *PaymentRepo) GetByID(ctx context.Context, id string) (model.Payment, bool, error) {
	return r.getOne(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id=?", id)
}

// GetByIdempotencyKey finds the payment produced by a confirmation.
func (r *PaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (model.Payment, bool, error) {
	return r.getOne(ctx, "SELECT "+paymentColumns+" FROM payments WHERE idempotency_key=?", key)
}

func (r *PaymentRepo) getOne(ctx context.Context, query string, args ...any) (model.Payment, bool, error) {
	p, err := scanPayment(q(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Payment{}, false, nil
	}
	if err != nil {
		return model.Payment{}, false, fmt.Errorf("get payment: %w", err)
	}
	return p, true, nil
}
