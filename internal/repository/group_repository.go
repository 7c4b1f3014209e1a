package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// GroupRepo stores the per-party roster across chat_groups,
// chat_group_members and chat_group_guests.
type GroupRepo struct{ db *sql.DB }

func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{db: db} }

// GetByParty loads the group of partyID with its members and guests.
func (r *GroupRepo) GetByParty(ctx context.Context, partyID string) (model.MembershipGroup, error) {
	return r.load(ctx, "party_id", partyID)
}

// GetByID loads a group by its own id.
func (r *GroupRepo) GetByID(ctx context.Context, id string) (model.MembershipGroup, error) {
	return r.load(ctx, "id", id)
}

func (r *GroupRepo) load(ctx context.Context, column, value string) (model.MembershipGroup, error) {
	db := q(ctx, r.db)
	var g model.MembershipGroup
	err := db.QueryRowContext(ctx,
		"SELECT id, party_id, name, is_active, created_at, updated_at FROM chat_groups WHERE "+column+"=?", value).
		Scan(&g.ID, &g.PartyID, &g.Name, &g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MembershipGroup{}, model.ErrGroupNotFound
	}
	if err != nil {
		return model.MembershipGroup{}, fmt.Errorf("get group: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT user_id, ticket, guest_limit FROM chat_group_members WHERE group_id=? ORDER BY joined_at, user_id`, g.ID)
	if err != nil {
		return model.MembershipGroup{}, fmt.Errorf("list members: %w", err)
	}
	index := map[string]int{}
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.UserID, &m.Ticket, &m.Limit); err != nil {
			rows.Close()
			return model.MembershipGroup{}, fmt.Errorf("scan member: %w", err)
		}
		index[m.UserID] = len(g.Members)
		g.Members = append(g.Members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.MembershipGroup{}, fmt.Errorf("list members: %w", err)
	}

	guests, err := db.QueryContext(ctx,
		`SELECT member_id, guest_id FROM chat_group_guests WHERE group_id=? ORDER BY invited_at, guest_id`, g.ID)
	if err != nil {
		return model.MembershipGroup{}, fmt.Errorf("list guests: %w", err)
	}
	defer guests.Close()
	for guests.Next() {
		var memberID, guestID string
		if err := guests.Scan(&memberID, &guestID); err != nil {
			return model.MembershipGroup{}, fmt.Errorf("scan guest: %w", err)
		}
		if i, ok := index[memberID]; ok {
			g.Members[i].Guests = append(g.Members[i].Guests, guestID)
		}
	}
	return g, guests.Err()
}

// Create inserts an empty group.  A concurrent creator for the same party
// hits the unique key; the caller then reloads.
func (r *GroupRepo) Create(ctx context.Context, g *model.MembershipGroup) (model.TxResult, error) {
	_, err := q(ctx, r.db).ExecContext(ctx,
		`INSERT INTO chat_groups (id, party_id, name, is_active) VALUES (?, ?, ?, ?)`,
		g.ID, g.PartyID, g.Name, g.IsActive)
	if err != nil {
		if isDuplicate(err) {
			return model.Aborted(model.ErrConflict), nil
		}
		return model.TxResult{}, fmt.Errorf("create group: %w", err)
	}
	return model.Committed(), nil
}

// SetActive flips the activation flag.
func (r *GroupRepo) SetActive(ctx context.Context, groupID string, active bool) error {
	if _, err := q(ctx, r.db).ExecContext(ctx,
		`UPDATE chat_groups SET is_active=? WHERE id=?`, active, groupID); err != nil {
		return fmt.Errorf("set group active: %w", err)
	}
	return nil
}

// SyncActivation activates groups whose party starts within window of now,
// both ends included, and deactivates the rest.  It returns the number of
// groups changed.
func (r *GroupRepo) SyncActivation(ctx context.Context, now time.Time, window time.Duration) (int64, error) {
	from, to := now.Add(-window).UTC(), now.Add(window).UTC()
	res, err := q(ctx, r.db).ExecContext(ctx, `
UPDATE chat_groups g JOIN parties p ON p.id = g.party_id
SET g.is_active = (p.event_date >= ? AND p.event_date <= ?)
WHERE g.is_active <> (p.event_date >= ? AND p.event_date <= ?)`, from, to, from, to)
	if err != nil {
		return 0, fmt.Errorf("sync group activation: %w", err)
	}
	return res.RowsAffected()
}

// UpsertMember adds m or overwrites its ticket and guest limit.
func (r *GroupRepo) UpsertMember(ctx context.Context, groupID string, m model.Member) error {
	_, err := q(ctx, r.db).ExecContext(ctx, `
INSERT INTO chat_group_members (group_id, user_id, ticket, guest_limit) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE ticket=VALUES(ticket), guest_limit=VALUES(guest_limit)`,
		groupID, m.UserID, m.Ticket, m.Limit)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// RemoveMember deletes a member and, by cascade, the guests they invited.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID string) (model.TxResult, error) {
	res, err := q(ctx, r.db).ExecContext(ctx,
		`DELETE FROM chat_group_members WHERE group_id=? AND user_id=?`, groupID, userID)
	if err != nil {
		return model.TxResult{}, fmt.Errorf("remove member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.TxResult{}, fmt.Errorf("remove member: %w", err)
	}
	if n == 0 {
		return model.Aborted(model.ErrGroupInconsistency), nil
	}
	return model.Committed(), nil
}

// AddGuest spends one of memberID's guest slots on guestID.  A member keeps
// one slot for themselves, so the invite needs guest_limit > 1.  The guest
// row goes in first so a duplicate invite leaves the slot count alone.
func (r *GroupRepo) AddGuest(ctx context.Context, groupID, memberID, guestID string) (model.TxResult, error) {
	var result model.TxResult
	err := withTx(ctx, r.db, func(ctx context.Context) error {
		db := q(ctx, r.db)
		if _, err := db.ExecContext(ctx,
			`INSERT INTO chat_group_guests (group_id, member_id, guest_id) VALUES (?, ?, ?)`,
			groupID, memberID, guestID); err != nil {
			switch {
			case isDuplicate(err):
				result = model.Aborted(model.ErrAlreadyMember)
				return nil
			case isConstraint(err):
				result = model.Aborted(model.ErrNotAParticipant)
				return nil
			}
			return fmt.Errorf("add guest: %w", err)
		}
		res, err := db.ExecContext(ctx, `
UPDATE chat_group_members SET guest_limit = guest_limit - 1
WHERE group_id=? AND user_id=? AND guest_limit > 1`, groupID, memberID)
		if err != nil {
			return fmt.Errorf("spend guest slot: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("spend guest slot: %w", err)
		}
		if n == 0 {
			if _, err := db.ExecContext(ctx,
				`DELETE FROM chat_group_guests WHERE group_id=? AND guest_id=?`, groupID, guestID); err != nil {
				return fmt.Errorf("undo guest: %w", err)
			}
			result = model.Aborted(model.ErrGuestLimitReached)
			return nil
		}
		result = model.Committed()
		return nil
	})
	if err != nil {
		return model.TxResult{}, err
	}
	return result, nil
}
