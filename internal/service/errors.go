package service

import (
	"errors"

	"github.com/AbdulSatterism/party-management/internal/gateway"
	"github.com/AbdulSatterism/party-management/internal/model"
)

// Kind classifies a service error for transport layers.
type Kind int

const (
	KindFatal        Kind = iota // datastore or unexpected failure; retry later
	KindValidation               // malformed input
	KindPrecondition             // business rule rejected the request
	KindForbidden                // caller may not act on the resource
	KindProvider                 // payment provider failed; nothing changed
	KindConsistency              // ledger disagrees with itself or a provider; needs reconciliation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindForbidden:
		return "forbidden"
	case KindProvider:
		return "provider"
	case KindConsistency:
		return "consistency"
	}
	return "fatal"
}

var (
	consistencyErrs = []error{
		model.ErrGroupInconsistency, model.ErrRefundDestinationMissing, model.ErrLedgerInconsistency,
		model.ErrPayoutUnconfirmed,
	}
	providerErrs     = []error{model.ErrPaymentIncomplete, model.ErrPayoutFailed, gateway.ErrProviderUnavailable}
	preconditionErrs = []error{
		model.ErrNotFound, model.ErrInsufficientCapacity, model.ErrAlreadyJoined, model.ErrTooCloseToEvent,
		model.ErrNotAParticipant, model.ErrRefundInProgress, model.ErrGuestLimitReached, model.ErrAlreadyMember,
		model.ErrNothingToSettle, model.ErrSettlementLocked, model.ErrConflict,
	}
)

// KindOf maps err onto the error taxonomy.  Consistency wins over
// everything else because those errors must never be reported as the
// caller's fault.
func KindOf(err error) Kind {
	if err == nil {
		return KindFatal
	}
	if isAny(err, consistencyErrs) {
		return KindConsistency
	}
	if errors.Is(err, model.ErrValidation) {
		return KindValidation
	}
	if errors.Is(err, model.ErrForbidden) {
		return KindForbidden
	}
	if isAny(err, providerErrs) {
		return KindProvider
	}
	if isAny(err, preconditionErrs) {
		return KindPrecondition
	}
	return KindFatal
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
