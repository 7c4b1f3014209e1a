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

type LeaveRequest struct {
	UserID  string
	PartyID string
}

// LeaveResult describes a completed leave.
type LeaveResult struct {
	Refund decimal.Decimal
	Payout model.UserPayout
	Party  model.Party
}

// Leave refunds a participant and reverses their admission.  The refund
// is sent before the ledger changes; if it fails nothing is modified.
func (s *LedgerService) Leave(ctx context.Context, req LeaveRequest) (LeaveResult, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.PartyID) == "" {
		return LeaveResult{}, fmt.Errorf("%w: user and party are required", model.ErrValidation)
	}
	user, err := s.Users.GetByID(ctx, req.UserID)
	if err != nil {
		return LeaveResult{}, err
	}
	party, err := s.Parties.GetByID(ctx, req.PartyID)
	if err != nil {
		return LeaveResult{}, err
	}
	now := s.clock.Now()
	if party.EventDate.Sub(now) <= s.rules.LeaveCutoff {
		return LeaveResult{}, fmt.Errorf("%w: leaving closes %s before the event", model.ErrTooCloseToEvent, s.rules.LeaveCutoff)
	}

	participant, err := s.Participants.Get(ctx, req.PartyID, req.UserID)
	if err != nil {
		return LeaveResult{}, err
	}
	if participant.RefundState == model.RefundPending {
		return LeaveResult{}, model.ErrRefundInProgress
	}
	group, err := s.Groups.GetByParty(ctx, req.PartyID)
	if err != nil {
		if errors.Is(err, model.ErrGroupNotFound) {
			return LeaveResult{}, fmt.Errorf("%w: party %s has participants but no group", model.ErrGroupInconsistency, req.PartyID)
		}
		return LeaveResult{}, err
	}
	if _, ok := group.Member(req.UserID); !ok {
		return LeaveResult{}, fmt.Errorf("%w: user %s missing from group %s", model.ErrGroupInconsistency, req.UserID, group.ID)
	}

	payment, ok, err := s.Payments.GetByID(ctx, participant.PaymentID)
	if err != nil {
		return LeaveResult{}, err
	}
	if !ok || payment.Status != model.PaymentCompleted {
		return LeaveResult{}, fmt.Errorf("%w: no completed payment for participant", model.ErrRefundDestinationMissing)
	}
	dest, ok := user.PayoutDestination(payment.Provider)
	if !ok {
		return LeaveResult{}, fmt.Errorf("%w: no %s account on file", model.ErrRefundDestinationMissing, payment.Provider)
	}

	refund := s.rules.Refund(party.Fee, participant.Tickets)
	key := fmt.Sprintf("refund:%s:%s:%s", party.ID, req.UserID, payment.ID)
	res, err := s.Participants.MarkRefundPending(ctx, party.ID, req.UserID, key)
	if err != nil {
		return LeaveResult{}, err
	}
	if !res.Ok() {
		return LeaveResult{}, res.Err()
	}

	// From here the refund runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	var ref string
	if refund.IsPositive() {
		ref, err = s.sendRefund(ctx, payment.Provider, gateway.PayoutRequest{
			Destination:    dest,
			Amount:         refund,
			Currency:       s.rules.Currency,
			Subject:        "Party refund",
			Note:           fmt.Sprintf("Refund for leaving %s", party.Name),
			IdempotencyKey: key,
		})
		if gateway.OutcomeUnknown(err) {
			return LeaveResult{}, s.holdRefund(ctx, party, req.UserID, key, refund, err)
		}
		if err != nil {
			if cerr := s.Participants.ClearRefundPending(ctx, party.ID, req.UserID, key); cerr != nil {
				s.log.Errorf("clear refund marker %s: %v", key, cerr)
			}
			s.log.Warnf("refund to %s for party %s failed: %v", req.UserID, party.ID, err)
			return LeaveResult{}, err
		}
	}

	payout := model.UserPayout{
		ID:             uuid.NewString(),
		PartyID:        party.ID,
		UserID:         req.UserID,
		PaymentID:      payment.ID,
		Provider:       payment.Provider,
		Destination:    dest,
		Amount:         refund,
		Status:         model.PayoutCompleted,
		ProviderRef:    ref,
		IdempotencyKey: key,
		Note:           fmt.Sprintf("Refund for leaving %s", party.Name),
	}
	updated, err := s.applyLeave(ctx, party, participant, key, &payout)
	if err != nil {
		s.log.Errorf("refund %s sent (ref %s) but ledger not updated: %v", key, ref, err)
		s.notify(ctx, queue.Notification{
			Type:      queue.TypeLedgerReconcile,
			Recipient: queue.RecipientOps,
			PartyID:   party.ID,
			Data: map[string]string{
				"user_id":      req.UserID,
				"refund_key":   key,
				"provider_ref": ref,
				"amount":       refund.StringFixed(2),
				"reason":       err.Error(),
			},
		})
		return LeaveResult{}, fmt.Errorf("%w: %v", model.ErrLedgerInconsistency, err)
	}
	if updated.Income.IsNegative() {
		s.log.Warnf("party %s income is negative after leave: %s", party.ID, updated.Income.StringFixed(2))
	}

	s.log.Infof("user %s left party %s; refunded %s", req.UserID, party.ID, refund.StringFixed(2))
	s.notify(ctx, queue.Notification{
		Type:      queue.TypePartyLeft,
		Recipient: party.HostID,
		PartyID:   party.ID,
		Data: map[string]string{
			"party":   party.Name,
			"user_id": req.UserID,
			"tickets": strconv.Itoa(participant.Tickets),
		},
	})
	s.notify(ctx, queue.Notification{
		Type:      queue.TypeRefundPaid,
		Recipient: req.UserID,
		PartyID:   party.ID,
		Data:      map[string]string{"party": party.Name, "amount": refund.StringFixed(2)},
	})
	return LeaveResult{Refund: refund, Payout: payout, Party: updated}, nil
}

// holdRefund keeps the participant's PENDING refund marker after a payout
// with no confirmed outcome.  The refund key is deterministic, so clearing
// the marker would only lead to a retry the provider rejects as a
// duplicate while the money may already be with the buyer.
func (s *LedgerService) holdRefund(ctx context.Context, party model.Party, userID, key string, refund decimal.Decimal, cause error) error {
	s.log.Errorf("refund %s has no confirmed outcome, left PENDING: %v", key, cause)
	s.notify(ctx, queue.Notification{
		Type:      queue.TypeLedgerReconcile,
		Recipient: queue.RecipientOps,
		PartyID:   party.ID,
		Data: map[string]string{
			"user_id":    userID,
			"refund_key": key,
			"amount":     refund.StringFixed(2),
			"reason":     cause.Error(),
		},
	})
	if errors.Is(cause, model.ErrPayoutUnconfirmed) {
		return cause
	}
	return fmt.Errorf("%w: %w: %v", model.ErrPayoutFailed, model.ErrPayoutUnconfirmed, cause)
}

func (s *LedgerService) sendRefund(ctx context.Context, p model.Provider, req gateway.PayoutRequest) (string, error) {
	gw, err := s.gateways.Get(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrPayoutFailed, err)
	}
	cctx, cancel := contextWithTimeout(ctx, s.rules.ProviderTimeout)
	defer cancel()
	out, err := gw.Payout(cctx, req)
	if err != nil {
		if errors.Is(err, model.ErrPayoutFailed) {
			return "", err
		}
		if gateway.OutcomeUnknown(err) {
			return "", fmt.Errorf("%w: %w", model.ErrPayoutFailed, err)
		}
		return "", fmt.Errorf("%w: %v", model.ErrPayoutFailed, err)
	}
	return out.Reference, nil
}

// applyLeave reverses an admission in one transaction.  The host keeps a
// zero-ticket roster entry when they leave their own party.
func (s *LedgerService) applyLeave(ctx context.Context, party model.Party, pt model.Participant, key string, payout *model.UserPayout) (model.Party, error) {
	var updated model.Party
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.Parties.GetForUpdate(ctx, party.ID); err != nil {
			return err
		}
		res, err := s.Participants.Remove(ctx, party.ID, pt.UserID, key)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return res.Err()
		}
		if res, err = s.Parties.ReleaseSeats(ctx, party.ID, pt.Tickets, pt.HostShare); err != nil {
			return err
		} else if !res.Ok() {
			return res.Err()
		}

		group, err := s.Groups.GetByParty(ctx, party.ID)
		if err != nil {
			return err
		}
		if pt.UserID == party.HostID {
			err = s.Groups.UpsertMember(ctx, group.ID, model.Member{UserID: pt.UserID})
		} else {
			res, err = s.Groups.RemoveMember(ctx, group.ID, pt.UserID)
			if err == nil && !res.Ok() {
				err = res.Err()
			}
		}
		if err != nil {
			return err
		}

		if res, err = s.Payouts.CreateUserPayout(ctx, payout); err != nil {
			return err
		} else if !res.Ok() {
			return res.Err()
		}
		updated, err = s.Parties.GetByID(ctx, party.ID)
		return err
	})
	return updated, err
}
