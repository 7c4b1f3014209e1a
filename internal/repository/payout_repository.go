package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// PayoutRepo keeps the audit trail of host settlements and buyer refunds.
type PayoutRepo struct{ db *sql.DB }

func NewPayoutRepo(db *sql.DB) *PayoutRepo { return &PayoutRepo{db: db} }

const hostPayoutColumns = `id, party_id, host_id, provider, destination, amount, status, provider_ref,
	idempotency_key, note, failure_reason, created_at, updated_at`

func scanHostPayout(row interface{ Scan(...any) error }) (model.HostPayout, error) {
	var p model.HostPayout
	var ref, reason sql.NullString
	err := row.Scan(&p.ID, &p.PartyID, &p.HostID, &p.Provider, &p.Destination, &p.Amount, &p.Status, &ref,
		&p.IdempotencyKey, &p.Note, &reason, &p.CreatedAt, &p.UpdatedAt)
	p.ProviderRef = ref.String
	p.FailureReason = reason.String
	return p, err
}

// CreateHostPayout inserts a payout row, normally in PENDING state before
// the provider is called.
func (r *PayoutRepo) CreateHostPayout(ctx context.Context, p *model.HostPayout) error {
	_, err := q(ctx, r.db).ExecContext(ctx, `
INSERT INTO host_payouts (id, party_id, host_id, provider, destination, amount, status, provider_ref,
	idempotency_key, note)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PartyID, p.HostID, p.Provider, p.Destination, p.Amount, p.Status, nullString(p.ProviderRef),
		p.IdempotencyKey, p.Note)
	if err != nil {
		return fmt.Errorf("create host payout: %w", err)
	}
	return nil
}

// CompleteHostPayout moves a PENDING payout to COMPLETED.
func (r *PayoutRepo) CompleteHostPayout(ctx context.Context, id, providerRef string) (model.TxResult, error) {
	return r.finishHostPayout(ctx, id, model.PayoutCompleted, providerRef, "")
}

// FailHostPayout moves a PENDING payout to FAILED.
func (r *PayoutRepo) FailHostPayout(ctx context.Context, id, reason string) (model.TxResult, error) {
	return r.finishHostPayout(ctx, id, model.PayoutFailed, "", reason)
}

func (r *PayoutRepo) finishHostPayout(ctx context.Context, id string, status model.PayoutStatus, ref, reason string) (model.TxResult, error) {
	if len(reason) > 512 {
		reason = reason[:512]
	}
	res, err := q(ctx, r.db).ExecContext(ctx, `
UPDATE host_payouts SET status=?, provider_ref=?, failure_reason=?
WHERE id=? AND status='PENDING'`, status, nullString(ref), nullString(reason), id)
	if err != nil {
		return model.TxResult{}, fmt.Errorf("finish host payout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.TxResult{}, fmt.Errorf("finish host payout: %w", err)
	}
	if n == 0 {
		return model.Aborted(model.ErrConflict), nil
	}
	return model.Committed(), nil
}

// ListPendingHostPayouts returns PENDING payouts created before olderThan.
// Those are calls whose outcome was never recorded.
func (r *PayoutRepo) ListPendingHostPayouts(ctx context.Context, olderThan time.Time) ([]model.HostPayout, error) {
	return r.listHost(ctx, "SELECT "+hostPayoutColumns+` FROM host_payouts
WHERE status='PENDING' AND created_at < ? ORDER BY created_at`, olderThan.UTC())
}

// ListHostPayouts returns every payout of a party, newest first.
func (r *PayoutRepo) ListHostPayouts(ctx context.Context, partyID string) ([]model.HostPayout, error) {
	return r.listHost(ctx, "SELECT "+hostPayoutColumns+` FROM host_payouts
WHERE party_id=? ORDER BY created_at DESC`, partyID)
}

func (r *PayoutRepo) listHost(ctx context.Context, query string, args ...any) ([]model.HostPayout, error) {
	rows, err := q(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list host payouts: %w", err)
	}
	defer rows.Close()
	var out []model.HostPayout
	for rows.Next() {
		p, err := scanHostPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan host payout: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateUserPayout records a refund that the provider has already paid.
// The idempotency key is unique, so recording the same refund twice is
// Aborted(ErrConflict).
func (r *PayoutRepo) CreateUserPayout(ctx context.Context, p *model.UserPayout) (model.TxResult, error) {
	_, err := q(ctx, r.db).ExecContext(ctx, `
INSERT INTO user_payouts (id, party_id, user_id, payment_id, provider, destination, amount, status,
	provider_ref, idempotency_key, note)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PartyID, p.UserID, p.PaymentID, p.Provider, p.Destination, p.Amount, p.Status,
		nullString(p.ProviderRef), p.IdempotencyKey, p.Note)
	if err != nil {
		if isDuplicate(err) {
			return model.Aborted(model.ErrConflict), nil
		}
		return model.TxResult{}, fmt.Errorf("create user payout: %w", err)
	}
	return model.Committed(), nil
}

// ListUserPayouts returns refunds paid for a party, newest first.
func (r *PayoutRepo) ListUserPayouts(ctx context.Context, partyID string) ([]model.UserPayout, error) {
	rows, err := q(ctx, r.db).QueryContext(ctx, `
SELECT id, party_id, user_id, payment_id, provider, destination, amount, status, provider_ref,
	idempotency_key, note, created_at
FROM user_payouts WHERE party_id=? ORDER BY created_at DESC`, partyID)
	if err != nil {
		return nil, fmt.Errorf("list user payouts: %w", err)
	}
	defer rows.Close()
	var out []model.UserPayout
	for rows.Next() {
		var p model.UserPayout
		var ref sql.NullString
		if err := rows.Scan(&p.ID, &p.PartyID, &p.UserID, &p.PaymentID, &p.Provider, &p.Destination, &p.Amount,
			&p.Status, &ref, &p.IdempotencyKey, &p.Note, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user payout: %w", err)
		}
		p.ProviderRef = ref.String
		out = append(out, p)
	}
	return out, rows.Err()
}
