package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/AbdulSatterism/party-management/internal/gateway"
	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/service"
)

// errorCodes pairs each ledger error with its HTTP status and the stable
// code clients switch on.  Order matters: the first match wins.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrLedgerInconsistency, http.StatusInternalServerError, "ledger_inconsistency"},
	{model.ErrPayoutUnconfirmed, http.StatusBadGateway, "payout_unconfirmed"},
	{model.ErrGroupInconsistency, http.StatusInternalServerError, "group_inconsistency"},
	{model.ErrRefundDestinationMissing, http.StatusUnprocessableEntity, "refund_destination_missing"},
	{model.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{model.ErrForbidden, http.StatusForbidden, "forbidden"},
	{model.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{model.ErrPartyNotFound, http.StatusNotFound, "party_not_found"},
	{model.ErrGroupNotFound, http.StatusNotFound, "group_not_found"},
	{model.ErrInsufficientCapacity, http.StatusConflict, "insufficient_capacity"},
	{model.ErrAlreadyJoined, http.StatusConflict, "already_joined"},
	{model.ErrTooCloseToEvent, http.StatusUnprocessableEntity, "too_close_to_event"},
	{model.ErrNotAParticipant, http.StatusConflict, "not_a_participant"},
	{model.ErrRefundInProgress, http.StatusConflict, "refund_in_progress"},
	{model.ErrGuestLimitReached, http.StatusConflict, "guest_limit_reached"},
	{model.ErrAlreadyMember, http.StatusConflict, "already_member"},
	{model.ErrConflict, http.StatusConflict, "conflict"},
	{gateway.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	{model.ErrPaymentIncomplete, http.StatusPaymentRequired, "payment_incomplete"},
	{model.ErrPayoutFailed, http.StatusBadGateway, "payout_failed"},
}

// errorStatus maps err to a status code and error code.
func errorStatus(err error) (int, string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	switch service.KindOf(err) {
	case service.KindValidation:
		return http.StatusBadRequest, "validation_failed"
	case service.KindPrecondition:
		return http.StatusConflict, "precondition_failed"
	}
	return http.StatusInternalServerError, "internal_error"
}

// fail writes err as {"error", "code"}.  Internal errors are logged and
// reported without detail.
func fail(c echo.Context, err error) error {
	status, code := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && code == "internal_error" {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "validation_failed"})
}

// caller reads the identity JWTAuth stored on the context.
func caller(c echo.Context) (service.Identity, bool) {
	id, _ := c.Get("user_id").(string)
	role, _ := c.Get("role").(string)
	return service.Identity{UserID: id, Role: role}, id != ""
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "unauthorized"})
}
