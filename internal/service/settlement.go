package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/AbdulSatterism/party-management/internal/clock"
	"github.com/AbdulSatterism/party-management/internal/config"
	"github.com/AbdulSatterism/party-management/internal/gateway"
	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/queue"
)

// SettlementService pays accrued host income out for parties whose event
// is close.
type SettlementService struct {
	Stores
	gateways Gateways
	notifier Notifier
	locker   Locker
	clock    clock.Clock
	rules    config.LedgerConfig
	log      *log.Logger
}

func NewSettlementService(d Deps) *SettlementService {
	d = d.withDefaults("settlement")
	return &SettlementService{
		Stores:   d.Stores,
		gateways: d.Gateways,
		notifier: d.Notifier,
		locker:   d.Locker,
		clock:    d.Clock,
		rules:    d.Rules,
		log:      d.Log,
	}
}

// SettlementFailure is one party a sweep could not pay.
type SettlementFailure struct {
	PartyID string `json:"party_id"`
	Reason  string `json:"reason"`
}

// SweepReport summarises one settlement sweep.  Unconfirmed payouts were
// sent but got no answer; they stay PENDING with the income claimed.
type SweepReport struct {
	StartedAt   time.Time           `json:"started_at"`
	Candidates  int                 `json:"candidates"`
	Paid        []model.HostPayout  `json:"paid"`
	Failed      []SettlementFailure `json:"failed"`
	Unconfirmed []model.HostPayout  `json:"unconfirmed"`
	Skipped     []string            `json:"skipped"`
	Stale       []model.HostPayout  `json:"stale"`
}

// Sweep settles every party with income whose event falls within the
// lookahead window.  A failure on one party never stops the others.
func (s *SettlementService) Sweep(ctx context.Context) (SweepReport, error) {
	now := s.clock.Now()
	report := SweepReport{StartedAt: now}
	parties, err := s.Parties.ListSettlementCandidates(ctx, now, now.Add(s.rules.SettlementLookahead))
	if err != nil {
		return report, err
	}
	report.Candidates = len(parties)

	for _, p := range parties {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		payout, err := s.settle(ctx, p)
		switch {
		case err == nil:
			report.Paid = append(report.Paid, payout)
		case errors.Is(err, model.ErrPayoutUnconfirmed):
			report.Unconfirmed = append(report.Unconfirmed, payout)
		case errors.Is(err, model.ErrNothingToSettle), errors.Is(err, model.ErrSettlementLocked):
			s.log.Debugf("settlement of party %s skipped: %v", p.ID, err)
			report.Skipped = append(report.Skipped, p.ID)
		default:
			report.Failed = append(report.Failed, SettlementFailure{PartyID: p.ID, Reason: err.Error()})
		}
	}

	stale, err := s.Payouts.ListPendingHostPayouts(ctx, now.Add(-s.rules.StalePayoutAfter))
	if err != nil {
		s.log.Errorf("list stale payouts: %v", err)
	}
	report.Stale = stale
	if len(stale) > 0 {
		s.log.Warnf("%d host payouts pending for more than %s", len(stale), s.rules.StalePayoutAfter)
		s.notify(ctx, queue.Notification{
			Type:      queue.TypePayoutsStale,
			Recipient: queue.RecipientOps,
			Data:      map[string]string{"count": fmt.Sprint(len(stale)), "oldest": stale[0].ID},
		})
	}

	s.log.Infof("settlement sweep: %d candidates, %d paid, %d failed, %d unconfirmed, %d skipped",
		report.Candidates, len(report.Paid), len(report.Failed), len(report.Unconfirmed), len(report.Skipped))
	return report, nil
}

// settle pays one party's income out.  Income is claimed and a PENDING
// payout written in one transaction before the provider is called, so a
// concurrent sweep finds nothing left to claim.
func (s *SettlementService) settle(ctx context.Context, p model.Party) (model.HostPayout, error) {
	release, ok, err := s.locker.Acquire(ctx, "settlement:party:"+p.ID, s.rules.SweepLockTTL)
	if err != nil {
		return model.HostPayout{}, fmt.Errorf("settlement lock: %w", err)
	}
	if !ok {
		return model.HostPayout{}, model.ErrSettlementLocked
	}
	defer release()

	var (
		payout model.HostPayout
		gw     gateway.Gateway
	)
	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.Parties.GetForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		dest, ok := locked.PayoutDestination()
		if !ok {
			return fmt.Errorf("%w: host has no %s destination", model.ErrNothingToSettle, locked.PayoutOption)
		}
		if gw, err = s.gateways.Get(locked.PayoutOption); err != nil {
			return err
		}
		if err := s.Parties.MarkDue(ctx, locked.ID); err != nil {
			return err
		}
		amount, res, err := s.Parties.ClaimIncome(ctx, p.ID)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return res.Err()
		}
		id := uuid.NewString()
		payout = model.HostPayout{
			ID:             id,
			PartyID:        locked.ID,
			HostID:         locked.HostID,
			Provider:       locked.PayoutOption,
			Destination:    dest,
			Amount:         amount,
			Status:         model.PayoutPending,
			IdempotencyKey: "host:" + id,
			Note:           fmt.Sprintf("Payout for party host: %s", locked.Name),
		}
		return s.Payouts.CreateHostPayout(ctx, &payout)
	})
	if err != nil {
		if errors.Is(err, gateway.ErrProviderUnavailable) {
			s.log.Errorf("settlement of party %s: %v", p.ID, err)
		}
		return model.HostPayout{}, err
	}

	// The claim is committed; finish bookkeeping regardless of the caller.
	ctx = context.WithoutCancel(ctx)
	cctx, cancel := contextWithTimeout(ctx, s.rules.ProviderTimeout)
	out, err := gw.Payout(cctx, gateway.PayoutRequest{
		Destination:    payout.Destination,
		Amount:         payout.Amount,
		Currency:       s.rules.Currency,
		Subject:        "Party payout",
		Note:           payout.Note,
		IdempotencyKey: payout.IdempotencyKey,
	})
	cancel()
	if gateway.OutcomeUnknown(err) {
		return payout, s.holdPayout(ctx, payout, err)
	}
	if err != nil {
		return model.HostPayout{}, s.failPayout(ctx, payout, err)
	}

	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.Payouts.CompleteHostPayout(ctx, payout.ID, out.Reference)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return res.Err()
		}
		return s.Parties.MarkPaid(ctx, payout.PartyID)
	})
	if err != nil {
		// Money left; the PENDING row surfaces in the stale report.
		s.log.Errorf("host payout %s sent (ref %s) but not recorded: %v", payout.ID, out.Reference, err)
		return model.HostPayout{}, fmt.Errorf("%w: %v", model.ErrLedgerInconsistency, err)
	}
	payout.Status = model.PayoutCompleted
	payout.ProviderRef = out.Reference

	s.log.Infof("paid %s to host %s for party %s", payout.Amount.StringFixed(2), payout.HostID, payout.PartyID)
	s.notify(ctx, queue.Notification{
		Type:      queue.TypePayoutCompleted,
		Recipient: payout.HostID,
		PartyID:   payout.PartyID,
		Data:      map[string]string{"amount": payout.Amount.StringFixed(2), "reference": out.Reference},
	})
	return payout, nil
}

// failPayout marks the payout FAILED and puts the income back.
func (s *SettlementService) failPayout(ctx context.Context, payout model.HostPayout, cause error) error {
	s.log.Errorf("host payout %s for party %s failed: %v", payout.ID, payout.PartyID, cause)
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.Payouts.FailHostPayout(ctx, payout.ID, cause.Error())
		if err != nil {
			return err
		}
		if !res.Ok() {
			return res.Err()
		}
		return s.Parties.RestoreIncome(ctx, payout.PartyID, payout.Amount)
	})
	if err != nil {
		s.log.Errorf("restore income for party %s: %v", payout.PartyID, err)
	}
	s.notify(ctx, queue.Notification{
		Type:      queue.TypePayoutFailed,
		Recipient: queue.RecipientOps,
		PartyID:   payout.PartyID,
		Data: map[string]string{
			"payout_id": payout.ID,
			"host_id":   payout.HostID,
			"amount":    payout.Amount.StringFixed(2),
			"reason":    cause.Error(),
		},
	})
	if errors.Is(cause, model.ErrPayoutFailed) {
		return cause
	}
	return fmt.Errorf("%w: %v", model.ErrPayoutFailed, cause)
}

// holdPayout leaves a payout whose result is unknown PENDING with the
// income still claimed.  Restoring the income would let the next sweep pay
// the host again under a new key; the row is resolved by reconciling with
// the provider instead.
func (s *SettlementService) holdPayout(ctx context.Context, payout model.HostPayout, cause error) error {
	s.log.Errorf("host payout %s for party %s has no confirmed outcome, left PENDING: %v", payout.ID, payout.PartyID, cause)
	s.notify(ctx, queue.Notification{
		Type:      queue.TypePayoutUnconfirmed,
		Recipient: queue.RecipientOps,
		PartyID:   payout.PartyID,
		Data: map[string]string{
			"payout_id":       payout.ID,
			"host_id":         payout.HostID,
			"amount":          payout.Amount.StringFixed(2),
			"idempotency_key": payout.IdempotencyKey,
			"reason":          cause.Error(),
		},
	})
	if errors.Is(cause, model.ErrPayoutUnconfirmed) {
		return cause
	}
	return fmt.Errorf("%w: %w: %v", model.ErrPayoutFailed, model.ErrPayoutUnconfirmed, cause)
}

// PendingPayouts lists host payouts still waiting on a provider result.
func (s *SettlementService) PendingPayouts(ctx context.Context) ([]model.HostPayout, error) {
	return s.Payouts.ListPendingHostPayouts(ctx, s.clock.Now())
}

// RefreshGroups activates the groups of parties within the activation
// window and deactivates the rest.
func (s *SettlementService) RefreshGroups(ctx context.Context) (int64, error) {
	n, err := s.Groups.SyncActivation(ctx, s.clock.Now(), s.rules.GroupActivationWindow)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Infof("group activation refreshed: %d groups changed", n)
	}
	return n, nil
}

// RunDaily sweeps once a day at the configured UTC time until ctx ends.
func (s *SettlementService) RunDaily(ctx context.Context) error {
	hour, minute, err := s.rules.SweepClock()
	if err != nil {
		return err
	}
	for {
		now := s.clock.Now()
		next := nextRun(now, hour, minute)
		s.log.Infof("next settlement sweep at %s", next.Format(time.RFC3339))
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Errorf("settlement sweep: %v", err)
		}
		if _, err := s.RefreshGroups(ctx); err != nil {
			s.log.Errorf("group activation refresh: %v", err)
		}
	}
}

// nextRun is the first hour:minute UTC strictly after now.
func nextRun(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *SettlementService) notify(ctx context.Context, n queue.Notification) {
	sendNotification(ctx, s.notifier, s.log, s.clock, n)
}
