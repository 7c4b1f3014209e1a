package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/config"
	"github.com/AbdulSatterism/party-management/internal/gateway"
	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/queue"
)

// memStore is an in-memory ledger.  Transactions are serialized and roll
// back by restoring a snapshot, which is enough to model the conditional
// writes the MySQL repositories perform.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users        map[string]model.User
	parties      map[string]model.Party
	participants map[string]model.Participant
	payments     map[string]model.Payment
	groups       map[string]model.MembershipGroup
	hostPayouts  []model.HostPayout
	userPayouts  []model.UserPayout

	failCreateUserPayout error
	failReserve          error // returned once by ReserveSeats
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[string]model.User{},
		parties:      map[string]model.Party{},
		participants: map[string]model.Participant{},
		payments:     map[string]model.Payment{},
		groups:       map[string]model.MembershipGroup{},
	}
}

func (m *memStore) stores() Stores {
	return Stores{
		Tx:           memTx{m},
		Users:        memUsers{m},
		Parties:      memParties{m},
		Participants: memParticipants{m},
		Payments:     memPayments{m},
		Groups:       memGroups{m},
		Payouts:      memPayouts{m},
	}
}

type snapshot struct {
	users        map[string]model.User
	parties      map[string]model.Party
	participants map[string]model.Participant
	payments     map[string]model.Payment
	groups       map[string]model.MembershipGroup
	hostPayouts  []model.HostPayout
	userPayouts  []model.UserPayout
}

func (m *memStore) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := snapshot{
		users:        copyMap(m.users),
		parties:      copyMap(m.parties),
		participants: copyMap(m.participants),
		payments:     copyMap(m.payments),
		groups:       map[string]model.MembershipGroup{},
		hostPayouts:  append([]model.HostPayout(nil), m.hostPayouts...),
		userPayouts:  append([]model.UserPayout(nil), m.userPayouts...),
	}
	for id, g := range m.groups {
		s.groups[id] = copyGroup(g)
	}
	return s
}

func (m *memStore) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users, m.parties, m.participants, m.payments = s.users, s.parties, s.participants, s.payments
	m.groups, m.hostPayouts, m.userPayouts = s.groups, s.hostPayouts, s.userPayouts
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyGroup(g model.MembershipGroup) model.MembershipGroup {
	members := make([]model.Member, len(g.Members))
	for i, mem := range g.Members {
		mem.Guests = append([]string(nil), mem.Guests...)
		members[i] = mem
	}
	g.Members = members
	return g
}

type txMarker struct{}

type memTx struct{ *memStore }

func (m memTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memUsers struct{ *memStore }

func (m memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

type memParties struct{ *memStore }

func (m memParties) Create(_ context.Context, p *model.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[p.HostID]; !ok {
		return model.ErrUserNotFound
	}
	m.parties[p.ID] = *p
	return nil
}

func (m memParties) GetByID(_ context.Context, id string) (model.Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parties[id]
	if !ok {
		return model.Party{}, model.ErrPartyNotFound
	}
	return p, nil
}

func (m memParties) GetForUpdate(ctx context.Context, id string) (model.Party, error) {
	return m.GetByID(ctx, id)
}

func (m memParties) ReserveSeats(_ context.Context, id string, tickets int, share decimal.Decimal) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failReserve; err != nil {
		m.failReserve = nil
		return model.TxResult{}, err
	}
	p, ok := m.parties[id]
	if !ok || p.TotalSits < tickets {
		return model.Aborted(model.ErrInsufficientCapacity), nil
	}
	p.TotalSits -= tickets
	p.SoldTicket += tickets
	p.Income = p.Income.Add(share)
	p.Settlement = model.SettlementAccruing
	m.parties[id] = p
	return model.Committed(), nil
}

func (m memParties) ReleaseSeats(_ context.Context, id string, tickets int, share decimal.Decimal) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parties[id]
	if !ok || p.SoldTicket < tickets {
		return model.Aborted(model.ErrLedgerInconsistency), nil
	}
	p.TotalSits += tickets
	p.SoldTicket -= tickets
	p.Income = p.Income.Sub(share)
	p.Settlement = model.SettlementAccruing
	m.parties[id] = p
	return model.Committed(), nil
}

func (m memParties) ListSettlementCandidates(_ context.Context, from, to time.Time) ([]model.Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Party
	for _, p := range m.parties {
		if _, ok := p.PayoutDestination(); !ok {
			continue
		}
		if p.Income.IsPositive() && !p.EventDate.Before(from) && !p.EventDate.After(to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.Before(out[j].EventDate) })
	return out, nil
}

func (m memParties) MarkDue(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.parties[id]
	if p.Settlement != model.SettlementDue && p.Income.IsPositive() {
		p.Settlement = model.SettlementDue
		m.parties[id] = p
	}
	return nil
}

func (m memParties) ClaimIncome(_ context.Context, id string) (decimal.Decimal, model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parties[id]
	if !ok || !p.Income.IsPositive() {
		return decimal.Zero, model.Aborted(model.ErrNothingToSettle), nil
	}
	amount := p.Income
	p.Income = decimal.Zero
	m.parties[id] = p
	return amount, model.Committed(), nil
}

func (m memParties) RestoreIncome(_ context.Context, id string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.parties[id]
	p.Income = p.Income.Add(amount)
	p.Settlement = model.SettlementDue
	m.parties[id] = p
	return nil
}

func (m memParties) MarkPaid(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.parties[id]
	if p.Income.IsZero() {
		p.Settlement = model.SettlementPaid
		m.parties[id] = p
	}
	return nil
}

type memParticipants struct{ *memStore }

func participantKey(partyID, userID string) string { return partyID + "|" + userID }

func (m memParticipants) Get(_ context.Context, partyID, userID string) (model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[participantKey(partyID, userID)]
	if !ok {
		return model.Participant{}, model.ErrNotAParticipant
	}
	return p, nil
}

func (m memParticipants) ListByParty(_ context.Context, partyID string) ([]model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Participant
	for _, p := range m.participants {
		if p.PartyID == partyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m memParticipants) Add(_ context.Context, p model.Participant) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := participantKey(p.PartyID, p.UserID)
	if _, ok := m.participants[key]; ok {
		return model.Aborted(model.ErrAlreadyJoined), nil
	}
	m.participants[key] = p
	return model.Committed(), nil
}

func (m memParticipants) MarkRefundPending(_ context.Context, partyID, userID, refundKey string) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := participantKey(partyID, userID)
	p, ok := m.participants[key]
	if !ok || p.RefundState == model.RefundPending {
		return model.Aborted(model.ErrRefundInProgress), nil
	}
	p.RefundState, p.RefundKey = model.RefundPending, refundKey
	m.participants[key] = p
	return model.Committed(), nil
}

func (m memParticipants) ClearRefundPending(_ context.Context, partyID, userID, refundKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := participantKey(partyID, userID)
	if p, ok := m.participants[key]; ok && p.RefundKey == refundKey {
		p.RefundState, p.RefundKey = model.RefundNone, ""
		m.participants[key] = p
	}
	return nil
}

func (m memParticipants) Remove(_ context.Context, partyID, userID, refundKey string) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := participantKey(partyID, userID)
	p, ok := m.participants[key]
	if !ok || p.RefundState != model.RefundPending || p.RefundKey != refundKey {
		return model.Aborted(model.ErrLedgerInconsistency), nil
	}
	delete(m.participants, key)
	return model.Committed(), nil
}

type memPayments struct{ *memStore }

func (m memPayments) Create(_ context.Context, p *model.Payment) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.IdempotencyKey == p.IdempotencyKey ||
			(existing.Provider == p.Provider && existing.ProviderTxnID == p.ProviderTxnID) {
			return model.Aborted(model.ErrPaymentReplayed), nil
		}
	}
	if _, ok := m.parties[p.PartyID]; !ok {
		return model.Aborted(model.ErrPartyNotFound), nil
	}
	m.payments[p.ID] = *p
	return model.Committed(), nil
}

func (m memPayments) GetByID(_ context.Context, id string) (model.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	return p, ok, nil
}

func (m memPayments) GetByIdempotencyKey(_ context.Context, key string) (model.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.IdempotencyKey == key {
			return p, true, nil
		}
	}
	return model.Payment{}, false, nil
}

type memGroups struct{ *memStore }

func (m memGroups) GetByParty(_ context.Context, partyID string) (model.MembershipGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.PartyID == partyID {
			return copyGroup(g), nil
		}
	}
	return model.MembershipGroup{}, model.ErrGroupNotFound
}

func (m memGroups) GetByID(_ context.Context, id string) (model.MembershipGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return model.MembershipGroup{}, model.ErrGroupNotFound
	}
	return copyGroup(g), nil
}

func (m memGroups) Create(_ context.Context, g *model.MembershipGroup) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.groups {
		if existing.PartyID == g.PartyID {
			return model.Aborted(model.ErrConflict), nil
		}
	}
	m.groups[g.ID] = copyGroup(*g)
	return model.Committed(), nil
}

func (m memGroups) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.groups[id]
	g.IsActive = active
	m.groups[id] = g
	return nil
}

func (m memGroups) SyncActivation(_ context.Context, now time.Time, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, g := range m.groups {
		want := withinWindow(m.parties[g.PartyID].EventDate, now, window)
		if g.IsActive != want {
			g.IsActive = want
			m.groups[id] = g
			n++
		}
	}
	return n, nil
}

func (m memGroups) UpsertMember(_ context.Context, groupID string, mem model.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return model.ErrGroupNotFound
	}
	for i, existing := range g.Members {
		if existing.UserID == mem.UserID {
			g.Members[i].Ticket, g.Members[i].Limit = mem.Ticket, mem.Limit
			m.groups[groupID] = g
			return nil
		}
	}
	mem.Guests = nil
	g.Members = append(g.Members, mem)
	m.groups[groupID] = g
	return nil
}

func (m memGroups) RemoveMember(_ context.Context, groupID, userID string) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.groups[groupID]
	for i, existing := range g.Members {
		if existing.UserID == userID {
			g.Members = append(g.Members[:i:i], g.Members[i+1:]...)
			m.groups[groupID] = g
			return model.Committed(), nil
		}
	}
	return model.Aborted(model.ErrGroupInconsistency), nil
}

func (m memGroups) AddGuest(_ context.Context, groupID, memberID, guestID string) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.groups[groupID]
	if g.HasUser(guestID) {
		return model.Aborted(model.ErrAlreadyMember), nil
	}
	for i, mem := range g.Members {
		if mem.UserID != memberID {
			continue
		}
		if mem.Limit <= 1 {
			return model.Aborted(model.ErrGuestLimitReached), nil
		}
		g.Members[i].Limit--
		g.Members[i].Guests = append(g.Members[i].Guests, guestID)
		m.groups[groupID] = g
		return model.Committed(), nil
	}
	return model.Aborted(model.ErrNotAParticipant), nil
}

type memPayouts struct{ *memStore }

func (m memPayouts) CreateHostPayout(_ context.Context, p *model.HostPayout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hostPayouts = append(m.hostPayouts, *p)
	return nil
}

func (m memPayouts) setHostStatus(id string, status model.PayoutStatus, apply func(*model.HostPayout)) model.TxResult {
	for i := range m.hostPayouts {
		if m.hostPayouts[i].ID == id && m.hostPayouts[i].Status == model.PayoutPending {
			m.hostPayouts[i].Status = status
			apply(&m.hostPayouts[i])
			return model.Committed()
		}
	}
	return model.Aborted(model.ErrConflict)
}

func (m memPayouts) CompleteHostPayout(_ context.Context, id, ref string) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setHostStatus(id, model.PayoutCompleted, func(p *model.HostPayout) { p.ProviderRef = ref }), nil
}

func (m memPayouts) FailHostPayout(_ context.Context, id, reason string) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setHostStatus(id, model.PayoutFailed, func(p *model.HostPayout) { p.FailureReason = reason }), nil
}

func (m memPayouts) ListPendingHostPayouts(_ context.Context, olderThan time.Time) ([]model.HostPayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.HostPayout
	for _, p := range m.hostPayouts {
		if p.Status == model.PayoutPending && !p.CreatedAt.After(olderThan) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m memPayouts) ListHostPayouts(_ context.Context, partyID string) ([]model.HostPayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.HostPayout
	for _, p := range m.hostPayouts {
		if p.PartyID == partyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m memPayouts) CreateUserPayout(_ context.Context, p *model.UserPayout) (model.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateUserPayout != nil {
		return model.TxResult{}, m.failCreateUserPayout
	}
	for _, existing := range m.userPayouts {
		if existing.IdempotencyKey == p.IdempotencyKey {
			return model.Aborted(model.ErrConflict), nil
		}
	}
	m.userPayouts = append(m.userPayouts, *p)
	return model.Committed(), nil
}

func (m memPayouts) ListUserPayouts(_ context.Context, partyID string) ([]model.UserPayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.UserPayout
	for _, p := range m.userPayouts {
		if p.PartyID == partyID {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeGateway scripts provider behaviour per reference.
type fakeGateway struct {
	mu        sync.Mutex
	provider  model.Provider
	captures  map[string]gateway.Capture
	onCapture func()
	payoutErr error
	checkErr  error

	captureCalls   int
	payoutAttempts int
	payouts        []gateway.PayoutRequest
	checkouts      []gateway.CheckoutRequest
}

func newFakeGateway(p model.Provider) *fakeGateway {
	return &fakeGateway{provider: p, captures: map[string]gateway.Capture{}}
}

func (g *fakeGateway) Provider() model.Provider { return g.provider }

func (g *fakeGateway) Capture(_ context.Context, ref string) (gateway.Capture, error) {
	g.mu.Lock()
	g.captureCalls++
	c, ok := g.captures[ref]
	hook := g.onCapture
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if !ok {
		return gateway.Capture{}, fmt.Errorf("%w: order %s", gateway.ErrPaymentNotCompleted, ref)
	}
	return c, nil
}

func (g *fakeGateway) Payout(_ context.Context, req gateway.PayoutRequest) (gateway.PayoutResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payoutAttempts++
	if g.payoutErr != nil {
		return gateway.PayoutResult{}, fmt.Errorf("%w: %w", gateway.ErrPayoutFailed, g.payoutErr)
	}
	g.payouts = append(g.payouts, req)
	return gateway.PayoutResult{Reference: fmt.Sprintf("PO-%d", len(g.payouts))}, nil
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (gateway.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkErr != nil {
		return gateway.Checkout{}, g.checkErr
	}
	g.checkouts = append(g.checkouts, req)
	ref := fmt.Sprintf("CO-%d", len(g.checkouts))
	return gateway.Checkout{Reference: ref, RedirectURL: "https://pay.test/" + ref}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []queue.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg queue.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) ofType(typ string) []queue.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []queue.Notification
	for _, msg := range n.sent {
		if msg.Type == typ {
			out = append(out, msg)
		}
	}
	return out
}

type memLocker struct {
	mu        sync.Mutex
	held      map[string]bool
	onAcquire func()
}

func (l *memLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	if l.onAcquire != nil {
		l.onAcquire()
	}
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDeduper) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[key], nil
}

func (d *memDeduper) Remember(_ context.Context, key string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	d.seen[key] = true
	return nil
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// harness wires both services against one in-memory ledger.
type harness struct {
	store    *memStore
	paypal   *fakeGateway
	stripe   *fakeGateway
	notifier *recordingNotifier
	locker   *memLocker
	dedup    *memDeduper
	clock    *stepClock
	ledger   *LedgerService
	settle   *SettlementService
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness() *harness {
	h := &harness{
		store:    newMemStore(),
		paypal:   newFakeGateway(model.ProviderPayPal),
		stripe:   newFakeGateway(model.ProviderStripe),
		notifier: &recordingNotifier{},
		locker:   &memLocker{},
		dedup:    &memDeduper{},
		clock:    &stepClock{now: testNow},
	}
	deps := Deps{
		Stores:   h.store.stores(),
		Gateways: gateway.NewRegistry(h.paypal, h.stripe),
		Notifier: h.notifier,
		Locker:   h.locker,
		Dedup:    h.dedup,
		Clock:    h.clock,
		Rules:    config.DefaultLedger(),
		URLs:     CheckoutURLs{Success: "https://app.test/ok", Cancel: "https://app.test/cancel"},
	}
	h.ledger = NewLedgerService(deps)
	h.settle = NewSettlementService(deps)
	return h
}

func (h *harness) addUser(id, role, paypal string) model.User {
	u := model.User{ID: id, Email: id + "@example.com", Name: id, Role: role, PayPalEmail: paypal}
	h.store.mu.Lock()
	h.store.users[id] = u
	h.store.mu.Unlock()
	return u
}

// addParty stores a PayPal-settled party hosted by "host" with the given
// seats and fee, eventIn from the harness clock.
func (h *harness) addParty(id string, seats int, fee string, eventIn time.Duration) model.Party {
	if _, err := (memUsers{h.store}).GetByID(context.Background(), "host"); errors.Is(err, model.ErrUserNotFound) {
		h.addUser("host", model.RoleHost, "host@paypal.test")
	}
	event := h.clock.Now().Add(eventIn)
	p := model.Party{
		ID:            id,
		HostID:        "host",
		Name:          "Party " + id,
		EventDate:     event,
		EndsAt:        event.Add(4 * time.Hour),
		Fee:           decimal.RequireFromString(fee),
		Total:         seats,
		TotalSits:     seats,
		Income:        decimal.Zero,
		PayoutOption:  model.ProviderPayPal,
		PayPalAccount: "host@paypal.test",
		Settlement:    model.SettlementAccruing,
	}
	h.store.mu.Lock()
	h.store.parties[id] = p
	h.store.mu.Unlock()
	return p
}

func (h *harness) party(id string) model.Party {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.parties[id]
}

// capture scripts a completed PayPal capture for order.
func (h *harness) capture(order, amount string) {
	h.paypal.mu.Lock()
	h.paypal.captures[order] = gateway.Capture{
		TxnID:     "TXN-" + order,
		Amount:    decimal.RequireFromString(amount),
		Completed: true,
	}
	h.paypal.mu.Unlock()
}
