package signup

import (
	"testing"

	"github.com/mbolis/dcforms/model"
	"github.com/mbolis/dcforms/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	cases := []struct {
		from Step
		in   Input
		want Step
	}{
		{PersonalInfo, Input{}, ServiceSelection},
		{ServiceSelection, Input{Service: ServiceRetailStore}, Complete},
		{ServiceSelection, Input{Service: ServiceNotSure}, Complete},
		{ServiceSelection, Input{Service: ServicePickupDelivery}, AddressInfo},
		{AddressInfo, Input{}, PickupScheduling},
		{PickupScheduling, Input{}, Complete},
		{PickupScheduling, Input{PaymentRequired: true}, Payment},
		{Payment, Input{}, Complete},
	}
	for _, c := range cases {
		got, err := Next(c.from, c.in)
		require.NoError(t, err, "%s", c.from)
		assert.Equal(t, c.want, got, "%s", c.from)
	}
}

func TestNextRejectsIllegalTransitions(t *testing.T) {
	_, err := Next(Complete, Input{})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = Next(Step(42), Input{})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	s, err := Next(ServiceSelection, Input{Service: "teleport"})
	assert.ErrorIs(t, err, ErrUnknownService)
	assert.Equal(t, ServiceSelection, s)
}

func TestStepNames(t *testing.T) {
	assert.Equal(t, "personal_info", PersonalInfo.String())
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "Step(9)", Step(9).String())
	assert.Len(t, Steps(), 6)
}

func TestValidateAddressAllEmpty(t *testing.T) {
	err := Validate(AddressInfo, map[string]string{})
	require.Error(t, err)

	errs := FieldErrors(err)
	assert.Equal(t, []string{"city", "state", "street", "zip_code"}, SortedFields(errs))
	assert.Equal(t, "ZIP code is required", errs["zip_code"])
	assert.Contains(t, err.Error(), "Street address is required")
}

func TestValidateFormats(t *testing.T) {
	errs := FieldErrors(Validate(PersonalInfo, map[string]string{
		"first_name": "Ada", "last_name": "L", "email": "not-an-email", "phone": "555-12",
	}))
	assert.Equal(t, []string{"email", "phone"}, SortedFields(errs))

	assert.NoError(t, Validate(PersonalInfo, personal))
	assert.NoError(t, Validate(AddressInfo, address))

	errs = FieldErrors(Validate(AddressInfo, map[string]string{"street": "x", "city": "y", "state": "z", "zip_code": "ABCDE"}))
	assert.Equal(t, []string{"zip_code"}, SortedFields(errs))

	errs = FieldErrors(Validate(Payment, map[string]string{"card_number": "4111", "exp_month": "1", "exp_year": "30", "cvv": "12345"}))
	assert.Equal(t, []string{"card_number", "cvv"}, SortedFields(errs))

	errs = FieldErrors(Validate(ServiceSelection, map[string]string{"service_type": "teleport"}))
	assert.Equal(t, []string{"service_type"}, SortedFields(errs))
}

func TestSignupMarkupHasEveryStep(t *testing.T) {
	html, err := view.RenderForm(model.Form{ID: 1, Type: "multi_step"})
	require.NoError(t, err)
	for _, s := range Steps() {
		assert.Contains(t, string(html), `data-step="`+s.String()+`"`)
	}
	for _, fields := range RequiredFields {
		for _, f := range fields {
			if f == "date_id" || f == "time_slot_id" || f == "service_type" {
				assert.Contains(t, string(html), `data-field="`+f+`"`)
				continue
			}
			assert.Contains(t, string(html), `name="`+f+`"`)
		}
	}
}
