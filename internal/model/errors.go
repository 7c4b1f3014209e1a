package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is the base for every missing-entity error.
var ErrNotFound = errors.New("not found")

var (
	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
	ErrPartyNotFound = fmt.Errorf("party %w", ErrNotFound)
	ErrGroupNotFound = fmt.Errorf("group %w", ErrNotFound)
)

// Business-rule rejections.
var (
	ErrValidation           = errors.New("validation failed")
	ErrForbidden            = errors.New("forbidden")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrAlreadyJoined        = errors.New("already joined")
	ErrTooCloseToEvent      = errors.New("too close to event")
	ErrNotAParticipant      = errors.New("not a participant")
	ErrRefundInProgress     = errors.New("refund already in progress")
	ErrGuestLimitReached    = errors.New("guest limit reached")
	ErrAlreadyMember        = errors.New("already a group member")
	ErrNothingToSettle      = errors.New("nothing to settle")
	ErrSettlementLocked     = errors.New("settlement in progress")
	ErrConflict             = errors.New("conflict")
)

// Provider failures.
var (
	ErrPaymentIncomplete = errors.New("payment incomplete")
	ErrPayoutFailed      = errors.New("payout failed")
)

// Consistency failures: data that should exist does not.
var (
	ErrGroupInconsistency       = errors.New("group inconsistency")
	ErrRefundDestinationMissing = errors.New("refund destination missing")
	ErrLedgerInconsistency      = errors.New("ledger inconsistency")
)

// ErrPayoutUnconfirmed means a payout request may have reached the
// provider but no result came back.  The money may have left; the audit
// row stays PENDING until someone reconciles it with the provider.
var ErrPayoutUnconfirmed = errors.New("payout outcome unknown")

// ErrPaymentReplayed signals that a confirmation was already applied.  It
// never reaches callers; services turn it into a replayed result.
var ErrPaymentReplayed = errors.New("payment already recorded")
