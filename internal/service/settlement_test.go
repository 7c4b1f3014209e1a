package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/queue"
)

func (h *harness) setIncome(id, income string) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	p := h.store.parties[id]
	p.Income = dec(income)
	h.store.parties[id] = p
}

func TestSweepPaysHost(t *testing.T) {
	h := newHarness()
	h.addParty("p1", 10, "25", 24*time.Hour)
	h.setIncome("p1", "120")

	report, err := h.settle.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Candidates != 1 || len(report.Paid) != 1 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v", report)
	}
	p := h.party("p1")
	if !p.Income.IsZero() || p.Settlement != model.SettlementPaid {
		t.Fatalf("party = income %s state %s", p.Income, p.Settlement)
	}
	payouts := h.store.hostPayouts
	if len(payouts) != 1 {
		t.Fatalf("host payouts = %d", len(payouts))
	}
	hp := payouts[0]
	if hp.Status != model.PayoutCompleted || !hp.Amount.Equal(dec("120")) || hp.Destination != "host@paypal.test" || hp.ProviderRef != "PO-1" {
		t.Fatalf("host payout = %+v", hp)
	}
	if hp.Note != "Payout for party host: Party p1" {
		t.Fatalf("note = %q", hp.Note)
	}
	sent := h.paypal.payouts[0]
	if sent.IdempotencyKey != hp.IdempotencyKey || !sent.Amount.Equal(dec("120")) {
		t.Fatalf("payout request = %+v", sent)
	}
	if n := len(h.notifier.ofType(queue.TypePayoutCompleted)); n != 1 {
		t.Fatalf("payout.completed = %d", n)
	}
}

func TestSweepTwicePaysOnce(t *testing.T) {
	h := newHarness()
	h.addParty("p1", 10, "25", 24*time.Hour)
	h.setIncome("p1", "120")
	ctx := context.Background()

	if _, err := h.settle.Sweep(ctx); err != nil {
		t.Fatal(err)
	}
	report, err := h.settle.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Paid) != 0 {
		t.Fatalf("second sweep paid %d", len(report.Paid))
	}
	if len(h.paypal.payouts) != 1 || len(h.store.hostPayouts) != 1 {
		t.Fatalf("provider payouts %d, rows %d", len(h.paypal.payouts), len(h.store.hostPayouts))
	}
}

func TestSweepSkipsLockedParty(t *testing.T) {
	h := newHarness()
	h.addParty("p1", 10, "25", 24*time.Hour)
	h.setIncome("p1", "120")
	release, ok, _ := h.locker.Acquire(context.Background(), "settlement:party:p1", time.Minute)
	if !ok {
		t.Fatal("could not pre-acquire lock")
	}
	defer release()

	report, err := h.settle.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Skipped) != 1 || len(report.Paid) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if !h.party("p1").Income.Equal(dec("120")) {
		t.Fatal("income claimed while another sweep held the lock")
	}
}

func TestSweepPayoutFailureRestoresIncome(t *testing.T) {
	h := newHarness()
	h.addParty("p1", 10, "25", 24*time.Hour)
	h.setIncome("p1", "120")
	h.paypal.payoutErr = errors.New("receiver unregistered")

	report, err := h.settle.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 1 || report.Failed[0].PartyID != "p1" {
		t.Fatalf("report = %+v", report)
	}
	p := h.party("p1")
	if !p.Income.Equal(dec("120")) || p.Settlement != model.SettlementDue {
		t.Fatalf("party = income %s state %s", p.Income, p.Settlement)
	}
	if hp := h.store.hostPayouts; len(hp) != 1 || hp[0].Status != model.PayoutFailed || hp[0].FailureReason == "" {
		t.Fatalf("host payouts = %+v", hp)
	}
	if got := h.notifier.ofType(queue.TypePayoutFailed); len(got) != 1 || got[0].Recipient != queue.RecipientOps {
		t.Fatalf("payout.failed = %+v", got)
	}

	// The next sweep retries.
	h.paypal.payoutErr = nil
	report, _ = h.settle.Sweep(context.Background())
	if len(report.Paid) != 1 || !h.party("p1").Income.IsZero() {
		t.Fatalf("retry report = %+v", report)
	}
}

func TestSweepPayoutTimeoutIsNotRetried(t *testing.T) {
	h := newHarness()
	h.addParty("p1", 10, "25", 24*time.Hour)
	h.setIncome("p1", "120")
	h.paypal.payoutErr = context.DeadlineExceeded
	ctx := context.Background()

	report, err := h.settle.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Unconfirmed) != 1 || len(report.Failed) != 0 || len(report.Paid) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if hp := h.store.hostPayouts; len(hp) != 1 || hp[0].Status != model.PayoutPending {
		t.Fatalf("host payouts = %+v", hp)
	}
	if p := h.party("p1"); !p.Income.IsZero() {
		t.Fatalf("income restored to %s after an unknown outcome", p.Income)
	}
	if got := h.notifier.ofType(queue.TypePayoutUnconfirmed); len(got) != 1 || got[0].Recipient != queue.RecipientOps {
		t.Fatalf("payout.unconfirmed = %+v", got)
	}
	if n := len(h.notifier.ofType(queue.TypePayoutFailed)); n != 0 {
		t.Fatalf("payout.failed = %d", n)
	}

	// The provider may have paid; a second sweep must not send again.
	h.paypal.payoutErr = nil
	report, err = h.settle.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Candidates != 0 || h.paypal.payoutAttempts != 1 {
		t.Fatalf("second sweep: report %+v, attempts %d", report, h.paypal.payoutAttempts)
	}
	pending, err := h.settle.PendingPayouts(ctx)
	if err != nil || len(pending) != 1 || !pending[0].Amount.Equal(dec("120")) {
		t.Fatalf("pending payouts = %+v, %v", pending, err)
	}
}

func TestSweepDestinationRemovedLeavesPartyAccruing(t *testing.T) {
	h := newHarness()
	h.addParty("p1", 10, "25", 24*time.Hour)
	h.setIncome("p1", "120")
	// The host clears their PayPal account after the candidate query.
	h.locker.onAcquire = func() {
		h.store.mu.Lock()
		p := h.store.parties["p1"]
		p.PayPalAccount = ""
		h.store.parties["p1"] = p
		h.store.mu.Unlock()
	}

	report, err := h.settle.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Skipped) != 1 || len(h.store.hostPayouts) != 0 {
		t.Fatalf("report = %+v, rows %d", report, len(h.store.hostPayouts))
	}
	if p := h.party("p1"); p.Settlement != model.SettlementAccruing || !p.Income.Equal(dec("120")) {
		t.Fatalf("party = income %s state %s", p.Income, p.Settlement)
	}
}

func TestSweepResolvesGatewayFromLockedRow(t *testing.T) {
	h := newHarness()
	h.addParty("p1", 10, "25", 24*time.Hour)
	h.setIncome("p1", "120")
	// The host switches to Stripe after the candidate query.
	h.locker.onAcquire = func() {
		h.store.mu.Lock()
		p := h.store.parties["p1"]
		p.PayoutOption = model.ProviderStripe
		p.StripeAccountID = "acct_1"
		h.store.parties["p1"] = p
		h.store.mu.Unlock()
	}

	report, err := h.settle.Sweep(context.Background())
	if err != nil || len(report.Paid) != 1 {
		t.Fatalf("report = %+v, %v", report, err)
	}
	if len(h.stripe.payouts) != 1 || h.paypal.payoutAttempts != 0 {
		t.Fatalf("stripe payouts %d, paypal attempts %d", len(h.stripe.payouts), h.paypal.payoutAttempts)
	}
	if dst := h.stripe.payouts[0].Destination; dst != "acct_1" {
		t.Fatalf("destination = %q", dst)
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	h := newHarness()
	h.addParty("paypal", 10, "25", 24*time.Hour)
	h.setIncome("paypal", "50")
	h.addParty("stripe", 10, "25", 48*time.Hour)
	h.setIncome("stripe", "80")
	h.store.mu.Lock()
	p := h.store.parties["stripe"]
	p.PayoutOption, p.StripeAccountID = model.ProviderStripe, "acct_host"
	h.store.parties["stripe"] = p
	h.store.mu.Unlock()
	h.stripe.payoutErr = errors.New("account restricted")

	report, err := h.settle.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Paid) != 1 || report.Paid[0].PartyID != "paypal" {
		t.Fatalf("paid = %+v", report.Paid)
	}
	if len(report.Failed) != 1 || report.Failed[0].PartyID != "stripe" {
		t.Fatalf("failed = %+v", report.Failed)
	}
}

func TestSweepWindow(t *testing.T) {
	h := newHarness()
	h.addParty("soon", 10, "25", 71*time.Hour)
	h.setIncome("soon", "10")
	h.addParty("later", 10, "25", 73*time.Hour)
	h.setIncome("later", "10")
	h.addParty("past", 10, "25", -time.Hour)
	h.setIncome("past", "10")
	h.addParty("empty", 10, "25", time.Hour)

	report, err := h.settle.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Paid) != 1 || report.Paid[0].PartyID != "soon" {
		t.Fatalf("paid = %+v", report.Paid)
	}
	if !h.party("later").Income.Equal(dec("10")) || !h.party("past").Income.Equal(dec("10")) {
		t.Fatal("party outside the window was settled")
	}
}

func TestSweepReportsStalePayouts(t *testing.T) {
	h := newHarness()
	h.store.hostPayouts = append(h.store.hostPayouts, model.HostPayout{
		ID:        "hp-old",
		PartyID:   "gone",
		Status:    model.PayoutPending,
		Amount:    dec("30"),
		CreatedAt: testNow.Add(-2 * time.Hour),
	})

	report, err := h.settle.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Stale) != 1 || report.Stale[0].ID != "hp-old" {
		t.Fatalf("stale = %+v", report.Stale)
	}
	if n := len(h.notifier.ofType(queue.TypePayoutsStale)); n != 1 {
		t.Fatalf("payout.stale = %d", n)
	}
	pending, err := h.settle.PendingPayouts(context.Background())
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %+v, %v", pending, err)
	}
}

func TestJoinAfterSettlementAccruesAgain(t *testing.T) {
	h := newHarness()
	h.addParty("p1", 10, "25", 24*time.Hour)
	h.addUser("buyer", model.RoleUser, "")
	h.capture("O-1", "25")
	h.setIncome("p1", "120")
	ctx := context.Background()
	if _, err := h.settle.Sweep(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ledger.Join(ctx, joinReq("buyer", "p1", "O-1", 1)); err != nil {
		t.Fatal(err)
	}
	p := h.party("p1")
	if !p.Income.Equal(dec("21.25")) || p.Settlement != model.SettlementAccruing {
		t.Fatalf("party = income %s state %s", p.Income, p.Settlement)
	}
}

func TestRefreshGroups(t *testing.T) {
	h := newHarness()
	h.addParty("p1", 10, "25", 10*24*time.Hour)
	h.addUser("buyer", model.RoleUser, "")
	h.capture("O-1", "25")
	ctx := context.Background()
	if _, err := h.ledger.Join(ctx, joinReq("buyer", "p1", "O-1", 1)); err != nil {
		t.Fatal(err)
	}
	if g, _ := h.ledger.Group(ctx, "p1"); g.IsActive {
		t.Fatal("group active ten days out")
	}

	h.clock.Set(testNow.Add(4 * 24 * time.Hour))
	n, err := h.settle.RefreshGroups(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RefreshGroups = %d, %v", n, err)
	}
	if g, _ := h.ledger.Group(ctx, "p1"); !g.IsActive {
		t.Fatal("group not activated inside the window")
	}

	// An event exactly one window away counts as inside it.
	h.clock.Set(testNow.Add(10*24*time.Hour - h.settle.rules.GroupActivationWindow))
	if _, err := h.settle.RefreshGroups(ctx); err != nil {
		t.Fatal(err)
	}
	if g, _ := h.ledger.Group(ctx, "p1"); !g.IsActive {
		t.Fatal("group deactivated on the window boundary")
	}
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC), time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		if got := nextRun(tc.now, 10, 0); !got.Equal(tc.want) {
			t.Errorf("nextRun(%s) = %s, want %s", tc.now, got, tc.want)
		}
	}
}

func TestRunDailyStopsOnCancel(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.settle.RunDaily(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
