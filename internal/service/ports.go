package service

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/clock"
	"github.com/AbdulSatterism/party-management/internal/config"
	"github.com/AbdulSatterism/party-management/internal/gateway"
	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/queue"
)

// Transactor runs fn in one database transaction carried on ctx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (model.User, error)
}

type PartyStore interface {
	Create(ctx context.Context, p *model.Party) error
	GetByID(ctx context.Context, id string) (model.Party, error)
	GetForUpdate(ctx context.Context, id string) (model.Party, error)
	ReserveSeats(ctx context.Context, partyID string, tickets int, hostShare decimal.Decimal) (model.TxResult, error)
	ReleaseSeats(ctx context.Context, partyID string, tickets int, hostShare decimal.Decimal) (model.TxResult, error)
	ListSettlementCandidates(ctx context.Context, from, to time.Time) ([]model.Party, error)
	MarkDue(ctx context.Context, partyID string) error
	ClaimIncome(ctx context.Context, partyID string) (decimal.Decimal, model.TxResult, error)
	RestoreIncome(ctx context.Context, partyID string, amount decimal.Decimal) error
	MarkPaid(ctx context.Context, partyID string) error
}

type ParticipantStore interface {
	Get(ctx context.Context, partyID, userID string) (model.Participant, error)
	ListByParty(ctx context.Context, partyID string) ([]model.Participant, error)
	Add(ctx context.Context, p model.Participant) (model.TxResult, error)
	MarkRefundPending(ctx context.Context, partyID, userID, key string) (model.TxResult, error)
	ClearRefundPending(ctx context.Context, partyID, userID, key string) error
	Remove(ctx context.Context, partyID, userID, key string) (model.TxResult, error)
}

type PaymentStore interface {
	Create(ctx context.Context, p *model.Payment) (model.TxResult, error)
	GetByID(ctx context.Context, id string) (model.Payment, bool, error)
	GetByIdempotencyKey(ctx context.Context, key string) (model.Payment, bool, error)
}

type GroupStore interface {
	GetByParty(ctx context.Context, partyID string) (model.MembershipGroup, error)
	GetByID(ctx context.Context, id string) (model.MembershipGroup, error)
	Create(ctx context.Context, g *model.MembershipGroup) (model.TxResult, error)
	SetActive(ctx context.Context, groupID string, active bool) error
	SyncActivation(ctx context.Context, now time.Time, window time.Duration) (int64, error)
	UpsertMember(ctx context.Context, groupID string, m model.Member) error
	RemoveMember(ctx context.Context, groupID, userID string) (model.TxResult, error)
	AddGuest(ctx context.Context, groupID, memberID, guestID string) (model.TxResult, error)
}

type PayoutStore interface {
	CreateHostPayout(ctx context.Context, p *model.HostPayout) error
	CompleteHostPayout(ctx context.Context, id, providerRef string) (model.TxResult, error)
	FailHostPayout(ctx context.Context, id, reason string) (model.TxResult, error)
	ListPendingHostPayouts(ctx context.Context, olderThan time.Time) ([]model.HostPayout, error)
	ListHostPayouts(ctx context.Context, partyID string) ([]model.HostPayout, error)
	CreateUserPayout(ctx context.Context, p *model.UserPayout) (model.TxResult, error)
	ListUserPayouts(ctx context.Context, partyID string) ([]model.UserPayout, error)
}

// Gateways resolves the adapter for a provider.
type Gateways interface {
	Get(p model.Provider) (gateway.Gateway, error)
}

// Notifier delivers notifications.  Failures are logged, never returned to
// the caller of a ledger operation.
type Notifier interface {
	Notify(ctx context.Context, n queue.Notification) error
}

// Locker serializes work per key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// EventDeduper remembers processed webhook event ids.
type EventDeduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string, ttl time.Duration) error
}

// Stores groups the repositories a service works against.
type Stores struct {
	Tx           Transactor
	Users        UserStore
	Parties      PartyStore
	Participants ParticipantStore
	Payments     PaymentStore
	Groups       GroupStore
	Payouts      PayoutStore
}

// CheckoutURLs are the redirect targets handed to hosted checkouts.
type CheckoutURLs struct {
	Success string
	Cancel  string
}

// Deps is everything the ledger and settlement services need.  Notifier,
// Locker, Dedup, Clock and Log may be nil.
type Deps struct {
	Stores
	Gateways Gateways
	Notifier Notifier
	Locker   Locker
	Dedup    EventDeduper
	Clock    clock.Clock
	Rules    config.LedgerConfig
	URLs     CheckoutURLs
	Log      *log.Logger
}

func (d Deps) withDefaults(prefix string) Deps {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Log == nil {
		d.Log = log.New(prefix)
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Locker == nil {
		d.Locker = nopLocker{}
	}
	if d.Dedup == nil {
		d.Dedup = nopDeduper{}
	}
	return d
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, queue.Notification) error { return nil }

type nopLocker struct{}

func (nopLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

type nopDeduper struct{}

func (nopDeduper) Seen(context.Context, string) (bool, error)            { return false, nil }
func (nopDeduper) Remember(context.Context, string, time.Duration) error { return nil }
