package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/gateway"
	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/queue"
)

// JoinRequest confirms a client-side checkout.  Reference is the PayPal
// order id or the Stripe checkout session id.
type JoinRequest struct {
	UserID    string
	PartyID   string
	Provider  model.Provider
	Reference string
	Tickets   int
}

func (r JoinRequest) validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("%w: user is required", model.ErrValidation)
	case strings.TrimSpace(r.PartyID) == "":
		return fmt.Errorf("%w: party is required", model.ErrValidation)
	case strings.TrimSpace(r.Reference) == "":
		return fmt.Errorf("%w: payment reference is required", model.ErrValidation)
	case r.Tickets < 1:
		return fmt.Errorf("%w: tickets must be at least 1", model.ErrValidation)
	}
	if _, ok := model.ParseProvider(string(r.Provider)); !ok {
		return fmt.Errorf("%w: unknown provider %q", model.ErrValidation, r.Provider)
	}
	return nil
}

// JoinResult is the ledger state after a join.  Replayed is true when the
// confirmation had already been applied and nothing changed.
type JoinResult struct {
	Payment  model.Payment
	Party    model.Party
	Replayed bool
}

// confirmation is a captured payment waiting to be admitted.
type confirmation struct {
	userID   string
	partyID  string
	provider model.Provider
	key      string
	txnID    string
	amount   decimal.Decimal
	tickets  int
}

func idempotencyKey(p model.Provider, reference string) string {
	if p == model.ProviderStripe {
		return "stripe:session:" + reference
	}
	return "paypal:order:" + reference
}

// Join captures the buyer's payment and admits them to the party.
func (s *LedgerService) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	if err := req.validate(); err != nil {
		return JoinResult{}, err
	}
	req.Provider, _ = model.ParseProvider(string(req.Provider))
	key := idempotencyKey(req.Provider, req.Reference)
	if res, done, err := s.replayed(ctx, key, req.UserID, req.PartyID); done {
		return res, err
	}

	if _, err := s.Users.GetByID(ctx, req.UserID); err != nil {
		return JoinResult{}, err
	}
	party, err := s.Parties.GetByID(ctx, req.PartyID)
	if err != nil {
		return JoinResult{}, err
	}
	if err := s.checkJoinable(ctx, party, req.UserID, req.Tickets); err != nil {
		return JoinResult{}, err
	}

	gw, err := s.gateways.Get(req.Provider)
	if err != nil {
		return JoinResult{}, err
	}
	cctx, cancel := contextWithTimeout(ctx, s.rules.ProviderTimeout)
	capture, err := gw.Capture(cctx, req.Reference)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrPaymentIncomplete) {
			return JoinResult{}, err
		}
		return JoinResult{}, fmt.Errorf("%w: %v", model.ErrPaymentIncomplete, err)
	}
	if !capture.Completed {
		return JoinResult{}, fmt.Errorf("%w: capture %s not completed", model.ErrPaymentIncomplete, capture.TxnID)
	}
	if m := capture.Metadata; m != nil {
		if m.BuyerID != req.UserID || m.PartyID != req.PartyID {
			return JoinResult{}, fmt.Errorf("%w: checkout belongs to another join", model.ErrForbidden)
		}
	}

	return s.admit(ctx, confirmation{
		userID:   req.UserID,
		partyID:  req.PartyID,
		provider: req.Provider,
		key:      key,
		txnID:    capture.TxnID,
		amount:   capture.Amount,
		tickets:  req.Tickets,
	})
}

// JoinConfirmed applies a verified checkout.session.completed delivery.
// Redelivery of the same event or session is a no-op.
func (s *LedgerService) JoinConfirmed(ctx context.Context, ev gateway.CheckoutCompleted) (JoinResult, error) {
	eventKey := "webhook:" + ev.ID
	if seen, err := s.dedup.Seen(ctx, eventKey); err != nil {
		s.log.Warnf("webhook dedup lookup %s: %v", ev.ID, err)
	} else if seen {
		s.log.Debugf("webhook %s already processed", ev.ID)
		return JoinResult{Replayed: true}, nil
	}

	res, err := s.joinConfirmed(ctx, ev)
	if err == nil || KindOf(err) != KindFatal {
		if rerr := s.dedup.Remember(ctx, eventKey, s.rules.WebhookDedupTTL); rerr != nil {
			s.log.Warnf("webhook dedup remember %s: %v", ev.ID, rerr)
		}
	}
	return res, err
}

func (s *LedgerService) joinConfirmed(ctx context.Context, ev gateway.CheckoutCompleted) (JoinResult, error) {
	meta := ev.Metadata
	if err := meta.Validate(); err != nil {
		return JoinResult{}, err
	}
	key := idempotencyKey(model.ProviderStripe, ev.SessionID)
	if res, done, err := s.replayed(ctx, key, meta.BuyerID, meta.PartyID); done {
		return res, err
	}
	txnID := ev.TxnID
	if txnID == "" {
		txnID = ev.SessionID
	}
	conf := confirmation{
		userID:   meta.BuyerID,
		partyID:  meta.PartyID,
		provider: model.ProviderStripe,
		key:      key,
		txnID:    txnID,
		amount:   ev.Amount,
		tickets:  meta.Tickets,
	}
	if _, err := s.Users.GetByID(ctx, conf.userID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.recordOrphan(ctx, conf, err)
		}
		return JoinResult{}, err
	}
	return s.admit(ctx, conf)
}

// RecordCheckoutFailed stores a FAILED payment for an asynchronous
// checkout that did not settle and tells the buyer.
func (s *LedgerService) RecordCheckoutFailed(ctx context.Context, ev gateway.CheckoutFailed) error {
	meta := ev.Metadata
	if err := meta.Validate(); err != nil {
		return err
	}
	key := idempotencyKey(model.ProviderStripe, ev.SessionID)
	if _, ok, err := s.Payments.GetByIdempotencyKey(ctx, key); err != nil || ok {
		return err
	}
	p := model.Payment{
		ID:             uuid.NewString(),
		UserID:         meta.BuyerID,
		PartyID:        meta.PartyID,
		Provider:       model.ProviderStripe,
		ProviderTxnID:  ev.SessionID,
		Amount:         meta.Amount,
		Tickets:        meta.Tickets,
		Status:         model.PaymentFailed,
		IdempotencyKey: key,
		FailureReason:  ev.Reason,
	}
	res, err := s.Payments.Create(ctx, &p)
	if err != nil {
		return err
	}
	if !res.Ok() {
		if errors.Is(res.Err(), model.ErrPaymentReplayed) {
			return nil
		}
		return res.Err()
	}
	s.notify(ctx, queue.Notification{
		Type:      queue.TypePaymentFailed,
		Recipient: meta.BuyerID,
		PartyID:   meta.PartyID,
		Data:      map[string]string{"reason": ev.Reason, "amount": meta.Amount.StringFixed(2)},
	})
	return nil
}

// replayed reports done=true when key already has a payment row.  A
// completed payment replays as success; a failed one is reported again.
func (s *LedgerService) replayed(ctx context.Context, key, userID, partyID string) (JoinResult, bool, error) {
	p, ok, err := s.Payments.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return JoinResult{}, true, err
	}
	if !ok {
		return JoinResult{}, false, nil
	}
	if p.UserID != userID || p.PartyID != partyID {
		return JoinResult{}, true, fmt.Errorf("%w: payment reference already used", model.ErrConflict)
	}
	if p.Status != model.PaymentCompleted {
		return JoinResult{}, true, fmt.Errorf("%w: %s", model.ErrPaymentIncomplete, p.FailureReason)
	}
	party, err := s.Parties.GetByID(ctx, partyID)
	if err != nil {
		return JoinResult{}, true, err
	}
	return JoinResult{Payment: p, Party: party, Replayed: true}, true, nil
}

// checkJoinable runs the cheap pre-capture checks.  They are repeated
// under the party lock once money has moved.
func (s *LedgerService) checkJoinable(ctx context.Context, party model.Party, userID string, tickets int) error {
	if party.TotalSits < tickets {
		return fmt.Errorf("%w: %d seats left", model.ErrInsufficientCapacity, party.TotalSits)
	}
	_, err := s.Participants.Get(ctx, party.ID, userID)
	switch {
	case err == nil:
		return model.ErrAlreadyJoined
	case errors.Is(err, model.ErrNotAParticipant):
		return nil
	default:
		return err
	}
}

// admit writes a captured payment into the ledger.  A business rejection
// (no seats left, already joined, wrong amount) leaves captured money
// without seats; it is recorded as a FAILED payment and reported to ops.
// A datastore failure writes nothing under the key, so a redelivered
// webhook or a retried join admits the buyer once the store recovers.
func (s *LedgerService) admit(ctx context.Context, c confirmation) (JoinResult, error) {
	res, members, err := s.applyJoin(ctx, c)
	if errors.Is(err, model.ErrPaymentReplayed) {
		res, _, err = s.replayed(ctx, c.key, c.userID, c.partyID)
		return res, err
	}
	if err != nil {
		if KindOf(err) == KindFatal {
			s.log.Errorf("admit payment %s for user %s on party %s, retry pending: %v", c.txnID, c.userID, c.partyID, err)
			return JoinResult{}, err
		}
		s.recordOrphan(ctx, c, err)
		return JoinResult{}, err
	}

	s.log.Infof("user %s joined party %s with %d tickets (%s)", c.userID, c.partyID, c.tickets, c.amount.StringFixed(2))
	party := res.Party
	for _, m := range members {
		if m.UserID == c.userID || m.UserID == party.HostID {
			continue
		}
		s.notify(ctx, queue.Notification{
			Type:      queue.TypeMemberJoined,
			Recipient: m.UserID,
			PartyID:   party.ID,
			Data:      map[string]string{"party": party.Name, "user_id": c.userID},
		})
	}
	s.notify(ctx, queue.Notification{
		Type:      queue.TypePartyJoined,
		Recipient: c.userID,
		PartyID:   party.ID,
		Data: map[string]string{
			"party":   party.Name,
			"tickets": strconv.Itoa(c.tickets),
			"amount":  c.amount.StringFixed(2),
		},
	})
	s.notify(ctx, queue.Notification{
		Type:      queue.TypeTicketSold,
		Recipient: party.HostID,
		PartyID:   party.ID,
		Data: map[string]string{
			"party":      party.Name,
			"buyer_id":   c.userID,
			"tickets":    strconv.Itoa(c.tickets),
			"host_share": s.rules.HostShare(c.amount).StringFixed(2),
		},
	})
	return res, nil
}

func (s *LedgerService) applyJoin(ctx context.Context, c confirmation) (JoinResult, []model.Member, error) {
	var (
		out     JoinResult
		members []model.Member
	)
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		party, err := s.Parties.GetForUpdate(ctx, c.partyID)
		if err != nil {
			return err
		}
		expected := party.Fee.Mul(decimal.NewFromInt(int64(c.tickets)))
		if !c.amount.Equal(expected) {
			return fmt.Errorf("%w: captured %s, expected %s", model.ErrValidation, c.amount.StringFixed(2), expected.StringFixed(2))
		}

		payment := model.Payment{
			ID:             uuid.NewString(),
			UserID:         c.userID,
			PartyID:        c.partyID,
			Provider:       c.provider,
			ProviderTxnID:  c.txnID,
			Amount:         c.amount,
			Tickets:        c.tickets,
			Status:         model.PaymentCompleted,
			IdempotencyKey: c.key,
		}
		res, err := s.Payments.Create(ctx, &payment)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return res.Err()
		}

		hostShare := s.rules.HostShare(c.amount)
		res, err = s.Participants.Add(ctx, model.Participant{
			PartyID:     c.partyID,
			UserID:      c.userID,
			Tickets:     c.tickets,
			Amount:      c.amount,
			HostShare:   hostShare,
			PaymentID:   payment.ID,
			RefundState: model.RefundNone,
		})
		if err != nil {
			return err
		}
		if !res.Ok() {
			return res.Err()
		}

		if res, err = s.Parties.ReserveSeats(ctx, c.partyID, c.tickets, hostShare); err != nil {
			return err
		} else if !res.Ok() {
			return res.Err()
		}

		group, err := s.enrol(ctx, party, c.userID, c.tickets)
		if err != nil {
			return err
		}
		members = group.Members

		if party, err = s.Parties.GetByID(ctx, c.partyID); err != nil {
			return err
		}
		out = JoinResult{Payment: payment, Party: party}
		return nil
	})
	return out, members, err
}

// enrol adds the buyer to the party's group, creating the group with the
// host as a zero-ticket member on first use.
func (s *LedgerService) enrol(ctx context.Context, party model.Party, userID string, tickets int) (model.MembershipGroup, error) {
	active := withinWindow(party.EventDate, s.clock.Now(), s.rules.GroupActivationWindow)
	g, err := s.Groups.GetByParty(ctx, party.ID)
	switch {
	case errors.Is(err, model.ErrGroupNotFound):
		g = model.MembershipGroup{ID: uuid.NewString(), PartyID: party.ID, Name: party.Name, IsActive: active}
		res, err := s.Groups.Create(ctx, &g)
		if err != nil {
			return g, err
		}
		if res.Ok() {
			host := model.Member{UserID: party.HostID}
			if err := s.Groups.UpsertMember(ctx, g.ID, host); err != nil {
				return g, err
			}
			g.Members = []model.Member{host}
		} else if g, err = s.Groups.GetByParty(ctx, party.ID); err != nil {
			return g, err
		}
	case err != nil:
		return g, err
	}

	if active && !g.IsActive {
		if err := s.Groups.SetActive(ctx, g.ID, true); err != nil {
			return g, err
		}
		g.IsActive = true
	}
	buyer := model.Member{UserID: userID, Ticket: tickets, Limit: tickets}
	if err := s.Groups.UpsertMember(ctx, g.ID, buyer); err != nil {
		return g, err
	}
	return g, nil
}

// recordOrphan keeps a trace of money captured for a join that was then
// rejected.  Refunding it is a manual ops action.
func (s *LedgerService) recordOrphan(ctx context.Context, c confirmation, cause error) {
	ctx = context.WithoutCancel(ctx)
	s.log.Errorf("payment %s captured for user %s on party %s but not admitted: %v", c.txnID, c.userID, c.partyID, cause)
	p := model.Payment{
		ID:             uuid.NewString(),
		UserID:         c.userID,
		PartyID:        c.partyID,
		Provider:       c.provider,
		ProviderTxnID:  c.txnID,
		Amount:         c.amount,
		Tickets:        c.tickets,
		Status:         model.PaymentFailed,
		IdempotencyKey: c.key,
		FailureReason:  cause.Error(),
	}
	if res, err := s.Payments.Create(ctx, &p); err != nil {
		s.log.Errorf("record orphaned payment %s: %v", c.txnID, err)
	} else if !res.Ok() {
		s.log.Errorf("record orphaned payment %s: %v", c.txnID, res.Err())
	}
	s.notify(ctx, queue.Notification{
		Type:      queue.TypePaymentOrphaned,
		Recipient: queue.RecipientOps,
		PartyID:   c.partyID,
		Data: map[string]string{
			"user_id":  c.userID,
			"provider": string(c.provider),
			"txn_id":   c.txnID,
			"amount":   c.amount.StringFixed(2),
			"reason":   cause.Error(),
		},
	})
}
