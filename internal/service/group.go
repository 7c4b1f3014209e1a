package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/queue"
)

type AddGuestRequest struct {
	GroupID  string
	MemberID string
	GuestID  string
}

// AddGuest lets a group member invite a guest into the roster, spending
// one of the member's guest slots.
func (s *LedgerService) AddGuest(ctx context.Context, req AddGuestRequest) (model.MembershipGroup, error) {
	if strings.TrimSpace(req.GroupID) == "" || strings.TrimSpace(req.MemberID) == "" || strings.TrimSpace(req.GuestID) == "" {
		return model.MembershipGroup{}, fmt.Errorf("%w: group, member and guest are required", model.ErrValidation)
	}
	if req.GuestID == req.MemberID {
		return model.MembershipGroup{}, fmt.Errorf("%w: cannot invite yourself", model.ErrValidation)
	}
	g, err := s.Groups.GetByID(ctx, req.GroupID)
	if err != nil {
		return model.MembershipGroup{}, err
	}
	if _, ok := g.Member(req.MemberID); !ok {
		return model.MembershipGroup{}, fmt.Errorf("%w: %s is not in group %s", model.ErrNotAParticipant, req.MemberID, g.ID)
	}
	if _, err := s.Users.GetByID(ctx, req.GuestID); err != nil {
		return model.MembershipGroup{}, err
	}
	if g.HasUser(req.GuestID) {
		return model.MembershipGroup{}, model.ErrAlreadyMember
	}
	res, err := s.Groups.AddGuest(ctx, g.ID, req.MemberID, req.GuestID)
	if err != nil {
		return model.MembershipGroup{}, err
	}
	if !res.Ok() {
		return model.MembershipGroup{}, res.Err()
	}

	s.notify(ctx, queue.Notification{
		Type:      queue.TypeGuestInvited,
		Recipient: req.GuestID,
		PartyID:   g.PartyID,
		Data:      map[string]string{"group": g.Name, "invited_by": req.MemberID},
	})
	return s.Groups.GetByID(ctx, g.ID)
}

// Group returns the roster of a party.
func (s *LedgerService) Group(ctx context.Context, partyID string) (model.MembershipGroup, error) {
	return s.Groups.GetByParty(ctx, partyID)
}

// Roster returns a party's group to its members, its host or an admin.
func (s *LedgerService) Roster(ctx context.Context, caller Identity, partyID string) (model.MembershipGroup, error) {
	g, err := s.Groups.GetByParty(ctx, partyID)
	if err != nil {
		return model.MembershipGroup{}, err
	}
	if !caller.IsAdmin() && !g.HasUser(caller.UserID) {
		return model.MembershipGroup{}, fmt.Errorf("%w: not a member of this group", model.ErrForbidden)
	}
	return g, nil
}
