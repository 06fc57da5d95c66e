package pos

import (
	"strings"
	"time"
	"unicode"
)

// DigitsOnly strips every non-digit rune.
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// NormalizePhone returns the digit-only lookup key of a phone number, dropping the
// North American country code when present.
func NormalizePhone(phone string) string {
	digits := DigitsOnly(phone)
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// Card brands detected from the leading digits of a PAN.
const (
	BrandVisa       = "VISA"
	BrandMastercard = "MASTERCARD"
	BrandAmex       = "AMEX"
	BrandDiscover   = "DISCOVER"
	BrandOther      = "OTHER"
)

func CardBrand(pan string) string {
	d := DigitsOnly(pan)
	switch {
	case strings.HasPrefix(d, "4"):
		return BrandVisa
	case len(d) >= 2 && d[0] == '5' && d[1] >= '1' && d[1] <= '5':
		return BrandMastercard
	case strings.HasPrefix(d, "34"), strings.HasPrefix(d, "37"):
		return BrandAmex
	case strings.HasPrefix(d, "60"), strings.HasPrefix(d, "64"), strings.HasPrefix(d, "65"):
		return BrandDiscover
	}
	return BrandOther
}

func Last4(pan string) string {
	d := DigitsOnly(pan)
	if len(d) <= 4 {
		return d
	}
	return d[len(d)-4:]
}

const pickupDateLayout = "2006-01-02"

func parsePickupDate(s string) (time.Time, error) {
	t, err := time.Parse(pickupDateLayout, strings.TrimSpace(s))
	if err != nil {
		e := validationError("invalid_date", "pickup date must be formatted YYYY-MM-DD")
		e.Err = err
		return time.Time{}, e
	}
	return t, nil
}

// agentOrStore picks the identifier new customers are attached to.
func agentOrStore(agentID, storeID string) (string, error) {
	if agentID != "" {
		return agentID, nil
	}
	if storeID != "" {
		return storeID, nil
	}
	return "", validationError("missing_agent_id", "an agent id or store id must be configured to create customers")
}
