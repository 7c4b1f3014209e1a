package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// PartyRepo owns the parties table: seat counters, accrued income and the
// settlement state.  Every counter change is a single conditional UPDATE so
// concurrent joins cannot oversell.
type PartyRepo struct{ db *sql.DB }

func NewPartyRepo(db *sql.DB) *PartyRepo { return &PartyRepo{db: db} }

func (r *PartyRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

const partyColumns = `id, host_id, name, address, event_date, ends_at, fee, total, total_sits, sold_ticket,
	income, payout_option, paypal_account, stripe_account_id, settlement_state, created_at, updated_at`

func scanParty(row interface{ Scan(...any) error }) (model.Party, error) {
	var p model.Party
	var paypal, stripe sql.NullString
	err := row.Scan(&p.ID, &p.HostID, &p.Name, &p.Address, &p.EventDate, &p.EndsAt, &p.Fee, &p.Total,
		&p.TotalSits, &p.SoldTicket, &p.Income, &p.PayoutOption, &paypal, &stripe, &p.Settlement,
		&p.CreatedAt, &p.UpdatedAt)
	p.PayPalAccount = paypal.String
	p.StripeAccountID = stripe.String
	return p, err
}

// Create inserts a new party.  CreatedAt/UpdatedAt default in the DB.
func (r *PartyRepo) Create(ctx context.Context, p *model.Party) error {
	_, err := q(ctx, r.db).ExecContext(ctx, `
INSERT INTO parties (id, host_id, name, address, event_date, ends_at, fee, total, total_sits, sold_ticket,
	income, payout_option, paypal_account, stripe_account_id, settlement_state)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.HostID, p.Name, p.Address, p.EventDate.UTC(), p.EndsAt.UTC(), p.Fee, p.Total, p.TotalSits,
		p.SoldTicket, p.Income, p.PayoutOption, nullString(p.PayPalAccount), nullString(p.StripeAccountID),
		p.Settlement)
	if err != nil {
		if isConstraint(err) {
			return model.ErrUserNotFound
		}
		return fmt.Errorf("create party: %w", err)
	}
	return nil
}

// GetByID fetches a party without locking.
func (r *PartyRepo) GetByID(ctx context.Context, id string) (model.Party, error) {
	return r.get(ctx, "SELECT "+partyColumns+" FROM parties WHERE id=?", id)
}

// GetForUpdate fetches a party and locks its row until the surrounding
// transaction ends.  Outside a transaction it behaves like GetByID.
func (r *PartyRepo) GetForUpdate(ctx context.Context, id string) (model.Party, error) {
	return r.get(ctx, "SELECT "+partyColumns+" FROM parties WHERE id=? FOR UPDATE", id)
}

func (r *PartyRepo) get(ctx context.Context, query, id string) (model.Party, error) {
	p, err := scanParty(q(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Party{}, model.ErrPartyNotFound
	}
	if err != nil {
		return model.Party{}, fmt.Errorf("get party: %w", err)
	}
	return p, nil
}

// ReserveSeats takes tickets seats and credits hostShare to income in one
// statement, provided enough seats remain.
func (r *PartyRepo) ReserveSeats(ctx context.Context, partyID string, tickets int, hostShare decimal.Decimal) (model.TxResult, error) {
	res, err := q(ctx, r.db).ExecContext(ctx, `
UPDATE parties
SET total_sits = total_sits - ?, sold_ticket = sold_ticket + ?, income = income + ?,
	settlement_state = 'ACCRUING'
WHERE id = ? AND total_sits >= ?`,
		tickets, tickets, hostShare, partyID, tickets)
	if err != nil {
		return model.TxResult{}, fmt.Errorf("reserve seats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.TxResult{}, fmt.Errorf("reserve seats: %w", err)
	}
	if n == 0 {
		return model.Aborted(model.ErrInsufficientCapacity), nil
	}
	return model.Committed(), nil
}

// ReleaseSeats returns tickets seats and debits hostShare from income.  It
// aborts when fewer than tickets seats are recorded as sold.
func (r *PartyRepo) ReleaseSeats(ctx context.Context, partyID string, tickets int, hostShare decimal.Decimal) (model.TxResult, error) {
	res, err := q(ctx, r.db).ExecContext(ctx, `
UPDATE parties
SET total_sits = total_sits + ?, sold_ticket = sold_ticket - ?, income = income - ?,
	settlement_state = 'ACCRUING'
WHERE id = ? AND sold_ticket >= ?`,
		tickets, tickets, hostShare, partyID, tickets)
	if err != nil {
		return model.TxResult{}, fmt.Errorf("release seats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.TxResult{}, fmt.Errorf("release seats: %w", err)
	}
	if n == 0 {
		return model.Aborted(model.ErrLedgerInconsistency), nil
	}
	return model.Committed(), nil
}

// ListSettlementCandidates returns parties starting within [from, to] with
// positive income and a payout destination for their payout option.
func (r *PartyRepo) ListSettlementCandidates(ctx context.Context, from, to time.Time) ([]model.Party, error) {
	rows, err := q(ctx, r.db).QueryContext(ctx, `
SELECT `+partyColumns+`
FROM parties
WHERE event_date >= ? AND event_date <= ? AND income > 0
	AND ((payout_option = 'PAYPAL' AND paypal_account IS NOT NULL AND paypal_account <> '')
	  OR (payout_option = 'STRIPE' AND stripe_account_id IS NOT NULL AND stripe_account_id <> ''))
ORDER BY event_date, id`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list settlement candidates: %w", err)
	}
	defer rows.Close()
	var out []model.Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkDue moves a party with unpaid income into the DUE state.
func (r *PartyRepo) MarkDue(ctx context.Context, partyID string) error {
	_, err := q(ctx, r.db).ExecContext(ctx,
		`UPDATE parties SET settlement_state = 'DUE' WHERE id = ? AND income > 0`, partyID)
	if err != nil {
		return fmt.Errorf("mark due: %w", err)
	}
	return nil
}

// ClaimIncome zeroes the party's income and returns the amount that was
// claimed.  It aborts with ErrNothingToSettle when income is not positive.
// The read and the write share a row lock.
func (r *PartyRepo) ClaimIncome(ctx context.Context, partyID string) (decimal.Decimal, model.TxResult, error) {
	var claimed decimal.Decimal
	var result model.TxResult
	err := withTx(ctx, r.db, func(ctx context.Context) error {
		var income decimal.Decimal
		err := q(ctx, r.db).QueryRowContext(ctx,
			`SELECT income FROM parties WHERE id = ? FOR UPDATE`, partyID).Scan(&income)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrPartyNotFound
		}
		if err != nil {
			return fmt.Errorf("read income: %w", err)
		}
		if !income.IsPositive() {
			result = model.Aborted(model.ErrNothingToSettle)
			return nil
		}
		if _, err := q(ctx, r.db).ExecContext(ctx,
			`UPDATE parties SET income = 0 WHERE id = ?`, partyID); err != nil {
			return fmt.Errorf("claim income: %w", err)
		}
		claimed = income
		result = model.Committed()
		return nil
	})
	if err != nil {
		return decimal.Zero, model.TxResult{}, err
	}
	return claimed, result, nil
}

// RestoreIncome puts a claimed amount back after a failed payout and leaves
// the party DUE for the next sweep.
func (r *PartyRepo) RestoreIncome(ctx context.Context, partyID string, amount decimal.Decimal) error {
	_, err := q(ctx, r.db).ExecContext(ctx,
		`UPDATE parties SET income = income + ?, settlement_state = 'DUE' WHERE id = ?`, amount, partyID)
	if err != nil {
		return fmt.Errorf("restore income: %w", err)
	}
	return nil
}

// MarkPaid records a completed settlement.  Income accrued by joins that
// landed after the claim keeps the party ACCRUING.
func (r *PartyRepo) MarkPaid(ctx context.Context, partyID string) error {
	_, err := q(ctx, r.db).ExecContext(ctx,
		`UPDATE parties SET settlement_state = 'PAID' WHERE id = ? AND income = 0`, partyID)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	return nil
}
