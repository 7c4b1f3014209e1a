package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// Metadata keys carried on checkout sessions.
const (
	MetaBuyerID     = "buyerId"
	MetaPartyID     = "partyId"
	MetaAmount      = "amount"
	MetaTicketCount = "ticketCount"
)

// CheckoutMetadata correlates a provider payment with a join.  It travels
// as opaque string metadata and is validated whenever it comes back.
type CheckoutMetadata struct {
	BuyerID string
	PartyID string
	Amount  decimal.Decimal
	Tickets int
}

func (m CheckoutMetadata) Validate() error {
	switch {
	case strings.TrimSpace(m.BuyerID) == "":
		return fmt.Errorf("%w: metadata %s is required", model.ErrValidation, MetaBuyerID)
	case strings.TrimSpace(m.PartyID) == "":
		return fmt.Errorf("%w: metadata %s is required", model.ErrValidation, MetaPartyID)
	case !m.Amount.IsPositive():
		return fmt.Errorf("%w: metadata %s must be positive", model.ErrValidation, MetaAmount)
	case m.Tickets < 1:
		return fmt.Errorf("%w: metadata %s must be at least 1", model.ErrValidation, MetaTicketCount)
	}
	return nil
}

// Values encodes m for a provider metadata map.
func (m CheckoutMetadata) Values() map[string]string {
	return map[string]string{
		MetaBuyerID:     m.BuyerID,
		MetaPartyID:     m.PartyID,
		MetaAmount:      m.Amount.StringFixed(2),
		MetaTicketCount: strconv.Itoa(m.Tickets),
	}
}

// ParseCheckoutMetadata decodes and validates a provider metadata map.
func ParseCheckoutMetadata(values map[string]string) (CheckoutMetadata, error) {
	m := CheckoutMetadata{
		BuyerID: values[MetaBuyerID],
		PartyID: values[MetaPartyID],
	}
	if raw := values[MetaAmount]; raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return CheckoutMetadata{}, fmt.Errorf("%w: metadata %s: %v", model.ErrValidation, MetaAmount, err)
		}
		m.Amount = amount
	}
	if raw := values[MetaTicketCount]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return CheckoutMetadata{}, fmt.Errorf("%w: metadata %s: %v", model.ErrValidation, MetaTicketCount, err)
		}
		m.Tickets = n
	}
	if err := m.Validate(); err != nil {
		return CheckoutMetadata{}, err
	}
	return m, nil
}

// toMinorUnits converts an amount to cents, rounding half away from zero.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

func fromMinorUnits(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}
