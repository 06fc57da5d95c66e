package signup

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// FieldError is the validation failure of one form field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

var fieldLabels = map[string]string{
	"first_name":   "First name",
	"last_name":    "Last name",
	"email":        "Email",
	"phone":        "Phone",
	"service_type": "Service",
	"street":       "Street address",
	"city":         "City",
	"state":        "State",
	"zip_code":     "ZIP code",
	"date_id":      "Pickup date",
	"time_slot_id": "Time slot",
	"card_number":  "Card number",
	"exp_month":    "Expiration month",
	"exp_year":     "Expiration year",
	"cvv":          "Security code",
}

// RequiredFields lists the fields each step cannot advance without.
var RequiredFields = map[Step][]string{
	PersonalInfo:     {"first_name", "last_name", "email", "phone"},
	ServiceSelection: {"service_type"},
	AddressInfo:      {"street", "city", "state", "zip_code"},
	PickupScheduling: {"date_id", "time_slot_id"},
	Payment:          {"card_number", "exp_month", "exp_year", "cvv"},
}

func label(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return strings.ReplaceAll(field, "_", " ")
}

var (
	reEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	reZip   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

func digits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// Validate checks the values of one step. The returned error, if any, is a
// *multierror.Error of *FieldError, one per invalid field.
func Validate(step Step, values map[string]string) error {
	var result *multierror.Error
	for _, f := range RequiredFields[step] {
		if strings.TrimSpace(values[f]) == "" {
			result = multierror.Append(result, &FieldError{f, label(f) + " is required"})
		}
	}

	check := func(field string, ok func(string) bool, msg string) {
		v := strings.TrimSpace(values[field])
		if v != "" && !ok(v) {
			result = multierror.Append(result, &FieldError{field, msg})
		}
	}
	switch step {
	case PersonalInfo:
		check("email", reEmail.MatchString, "Please enter a valid email address")
		check("phone", func(v string) bool { return digits(v) >= 10 }, "Please enter a valid phone number")
	case ServiceSelection:
		check("service_type", func(v string) bool {
			switch ServiceType(v) {
			case ServiceRetailStore, ServiceNotSure, ServicePickupDelivery:
				return true
			}
			return false
		}, "Please choose a service")
	case AddressInfo:
		check("zip_code", reZip.MatchString, "Please enter a valid ZIP code")
	case Payment:
		check("card_number", func(v string) bool { n := digits(v); return n >= 12 && n <= 19 }, "Please enter a valid card number")
		check("cvv", func(v string) bool { n := digits(v); return n == 3 || n == 4 }, "Please enter a valid security code")
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = formatFieldErrors
	return result
}

func formatFieldErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		if fe, ok := err.(*FieldError); ok {
			msgs[i] = fe.Message
		} else {
			msgs[i] = err.Error()
		}
	}
	return strings.Join(msgs, ". ")
}

// FieldErrors flattens a Validate error into field -> message. The first message of
// a field wins.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	merr, ok := err.(*multierror.Error)
	if !ok {
		if fe, ok := err.(*FieldError); ok {
			out[fe.Field] = fe.Message
		}
		return out
	}
	for _, e := range merr.Errors {
		if fe, ok := e.(*FieldError); ok {
			if _, seen := out[fe.Field]; !seen {
				out[fe.Field] = fe.Message
			}
		}
	}
	return out
}

// SortedFields returns the keys of FieldErrors in a stable order.
func SortedFields(errs map[string]string) []string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
