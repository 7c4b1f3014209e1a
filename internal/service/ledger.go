// Package service holds the party ledger: joins, leaves, group rosters and
// settlement.  Every multi-row change runs in one transaction through
// Stores.Tx; provider calls always happen outside a transaction.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/clock"
	"github.com/AbdulSatterism/party-management/internal/config"
	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/queue"
)

// LedgerService implements the request-driven ledger operations.
type LedgerService struct {
	Stores
	gateways Gateways
	notifier Notifier
	dedup    EventDeduper
	clock    clock.Clock
	rules    config.LedgerConfig
	urls     CheckoutURLs
	log      *log.Logger
}

func NewLedgerService(d Deps) *LedgerService {
	d = d.withDefaults("ledger")
	return &LedgerService{
		Stores:   d.Stores,
		gateways: d.Gateways,
		notifier: d.Notifier,
		dedup:    d.Dedup,
		clock:    d.Clock,
		rules:    d.Rules,
		urls:     d.URLs,
		log:      d.Log,
	}
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }

type CreatePartyInput struct {
	Name            string
	Address         string
	EventDate       time.Time
	EndsAt          time.Time
	Fee             decimal.Decimal
	Seats           int
	PayoutOption    model.Provider
	PayPalAccount   string
	StripeAccountID string
}

func (in CreatePartyInput) validate(now time.Time) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", model.ErrValidation)
	case in.Seats < 1:
		return fmt.Errorf("%w: seats must be at least 1", model.ErrValidation)
	case !in.Fee.IsPositive():
		return fmt.Errorf("%w: fee must be positive", model.ErrValidation)
	case !in.Fee.Equal(in.Fee.Round(2)):
		return fmt.Errorf("%w: fee has more than two decimals", model.ErrValidation)
	case in.EventDate.IsZero() || !in.EventDate.After(now):
		return fmt.Errorf("%w: event date must be in the future", model.ErrValidation)
	case !in.EndsAt.IsZero() && in.EndsAt.Before(in.EventDate):
		return fmt.Errorf("%w: end must not precede start", model.ErrValidation)
	}
	dest, ok := model.Party{
		PayoutOption:    in.PayoutOption,
		PayPalAccount:   in.PayPalAccount,
		StripeAccountID: in.StripeAccountID,
	}.PayoutDestination()
	if !ok || strings.TrimSpace(dest) == "" {
		return fmt.Errorf("%w: payout destination for %q is required", model.ErrValidation, in.PayoutOption)
	}
	return nil
}

// CreateParty opens a party with all seats available and no income.
func (s *LedgerService) CreateParty(ctx context.Context, hostID string, in CreatePartyInput) (model.Party, error) {
	now := s.clock.Now()
	if err := in.validate(now); err != nil {
		return model.Party{}, err
	}
	if _, err := s.Users.GetByID(ctx, hostID); err != nil {
		return model.Party{}, err
	}
	endsAt := in.EndsAt
	if endsAt.IsZero() {
		endsAt = in.EventDate
	}
	p := model.Party{
		ID:              uuid.NewString(),
		HostID:          hostID,
		Name:            strings.TrimSpace(in.Name),
		Address:         strings.TrimSpace(in.Address),
		EventDate:       in.EventDate.UTC(),
		EndsAt:          endsAt.UTC(),
		Fee:             in.Fee,
		Total:           in.Seats,
		TotalSits:       in.Seats,
		Income:          decimal.Zero,
		PayoutOption:    in.PayoutOption,
		PayPalAccount:   in.PayPalAccount,
		StripeAccountID: in.StripeAccountID,
		Settlement:      model.SettlementAccruing,
	}
	if err := s.Parties.Create(ctx, &p); err != nil {
		return model.Party{}, err
	}
	s.log.Infof("party %s created by %s: %d seats at %s", p.ID, hostID, p.Total, p.Fee.StringFixed(2))
	return p, nil
}

// Availability is the public seat view of a party.
type Availability struct {
	PartyID    string          `json:"party_id"`
	Name       string          `json:"name"`
	EventDate  time.Time       `json:"event_date"`
	Fee        decimal.Decimal `json:"fee"`
	Total      int             `json:"total"`
	TotalSits  int             `json:"total_sits"`
	SoldTicket int             `json:"sold_ticket"`
}

func (s *LedgerService) Availability(ctx context.Context, partyID string) (Availability, error) {
	p, err := s.Parties.GetByID(ctx, partyID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		PartyID:    p.ID,
		Name:       p.Name,
		EventDate:  p.EventDate,
		Fee:        p.Fee,
		Total:      p.Total,
		TotalSits:  p.TotalSits,
		SoldTicket: p.SoldTicket,
	}, nil
}

// LedgerView is everything recorded against one party.
type LedgerView struct {
	Party         model.Party
	Participants  []model.Participant
	HostPayouts   []model.HostPayout
	UserPayouts   []model.UserPayout
	SeatsBalanced bool
}

// PartyLedger returns the ledger of a party to its host or an admin.
func (s *LedgerService) PartyLedger(ctx context.Context, caller Identity, partyID string) (LedgerView, error) {
	p, err := s.Parties.GetByID(ctx, partyID)
	if err != nil {
		return LedgerView{}, err
	}
	if p.HostID != caller.UserID && !caller.IsAdmin() {
		return LedgerView{}, fmt.Errorf("%w: only the host can view the ledger", model.ErrForbidden)
	}
	view := LedgerView{Party: p, SeatsBalanced: p.SeatsBalanced()}
	if view.Participants, err = s.Participants.ListByParty(ctx, partyID); err != nil {
		return LedgerView{}, err
	}
	if view.HostPayouts, err = s.Payouts.ListHostPayouts(ctx, partyID); err != nil {
		return LedgerView{}, err
	}
	if view.UserPayouts, err = s.Payouts.ListUserPayouts(ctx, partyID); err != nil {
		return LedgerView{}, err
	}
	return view, nil
}

// notify publishes n and logs delivery failures.  The ledger change it
// reports has already committed.
func (s *LedgerService) notify(ctx context.Context, n queue.Notification) {
	sendNotification(ctx, s.notifier, s.log, s.clock, n)
}

func sendNotification(ctx context.Context, nt Notifier, logger *log.Logger, c clock.Clock, n queue.Notification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = c.Now()
	}
	if err := nt.Notify(context.WithoutCancel(ctx), n); err != nil {
		logger.Warnf("notify %s to %s: %v", n.Type, n.Recipient, err)
	}
}

func withinWindow(event, now time.Time, window time.Duration) bool {
	d := event.Sub(now)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// contextWithTimeout bounds a provider call; a zero timeout only inherits
// the caller's deadline.
func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
