package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// ParticipantRepo stores who is admitted to a party and the host share
// credited for them.
type ParticipantRepo struct{ db *sql.DB }

func NewParticipantRepo(db *sql.DB) *ParticipantRepo { return &ParticipantRepo{db: db} }

const participantColumns = `party_id, user_id, tickets, amount, host_share, payment_id, refund_state, refund_key,
	joined_at, updated_at`

func scanParticipant(row interface{ Scan(...any) error }) (model.Participant, error) {
	var p model.Participant
	var key sql.NullString
	err := row.Scan(&p.PartyID, &p.UserID, &p.Tickets, &p.Amount, &p.HostShare, &p.PaymentID,
		&p.RefundState, &key, &p.JoinedAt, &p.UpdatedAt)
	p.RefundKey = key.String
	return p, err
}

// Get returns ErrNotAParticipant when userID has not joined partyID.
func (r *ParticipantRepo) Get(ctx context.Context, partyID, userID string) (model.Participant, error) {
	p, err := scanParticipant(q(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+participantColumns+" FROM party_participants WHERE party_id=? AND user_id=?", partyID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Participant{}, model.ErrNotAParticipant
	}
	if err != nil {
		return model.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// ListByParty returns participants in join order.
func (r *ParticipantRepo) ListByParty(ctx context.Context, partyID string) ([]model.Participant, error) {
	rows, err := q(ctx, r.db).QueryContext(ctx,
		"SELECT "+participantColumns+" FROM party_participants WHERE party_id=? ORDER BY joined_at, user_id", partyID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	var out []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Add admits a buyer.  The primary key turns a second join into
// Aborted(ErrAlreadyJoined).
func (r *ParticipantRepo) Add(ctx context.Context, p model.Participant) (model.TxResult, error) {
	if p.RefundState == "" {
		p.RefundState = model.RefundNone
	}
	_, err := q(ctx, r.db).ExecContext(ctx, `
INSERT INTO party_participants (party_id, user_id, tickets, amount, host_share, payment_id, refund_state)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PartyID, p.UserID, p.Tickets, p.Amount, p.HostShare, p.PaymentID, p.RefundState)
	if err != nil {
		if isDuplicate(err) {
			return model.Aborted(model.ErrAlreadyJoined), nil
		}
		return model.TxResult{}, fmt.Errorf("add participant: %w", err)
	}
	return model.Committed(), nil
}

// MarkRefundPending flags the participant's refund as in flight under key.
// A participant whose refund is already pending is Aborted(ErrRefundInProgress).
func (r *ParticipantRepo) MarkRefundPending(ctx context.Context, partyID, userID, key string) (model.TxResult, error) {
	res, err := q(ctx, r.db).ExecContext(ctx, `
UPDATE party_participants SET refund_state = 'PENDING', refund_key = ?
WHERE party_id = ? AND user_id = ? AND refund_state = 'NONE'`, key, partyID, userID)
	if err != nil {
		return model.TxResult{}, fmt.Errorf("mark refund pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.TxResult{}, fmt.Errorf("mark refund pending: %w", err)
	}
	if n == 0 {
		return model.Aborted(model.ErrRefundInProgress), nil
	}
	return model.Committed(), nil
}

// ClearRefundPending undoes MarkRefundPending after a failed payout.
func (r *ParticipantRepo) ClearRefundPending(ctx context.Context, partyID, userID, key string) error {
	_, err := q(ctx, r.db).ExecContext(ctx, `
UPDATE party_participants SET refund_state = 'NONE', refund_key = NULL
WHERE party_id = ? AND user_id = ? AND refund_key = ?`, partyID, userID, key)
	if err != nil {
		return fmt.Errorf("clear refund pending: %w", err)
	}
	return nil
}

// Remove deletes the participant whose refund key is key.
func (r *ParticipantRepo) Remove(ctx context.Context, partyID, userID, key string) (model.TxResult, error) {
	res, err := q(ctx, r.db).ExecContext(ctx,
		`DELETE FROM party_participants WHERE party_id = ? AND user_id = ? AND refund_key = ?`, partyID, userID, key)
	if err != nil {
		return model.TxResult{}, fmt.Errorf("remove participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.TxResult{}, fmt.Errorf("remove participant: %w", err)
	}
	if n == 0 {
		return model.Aborted(model.ErrLedgerInconsistency), nil
	}
	return model.Committed(), nil
}
