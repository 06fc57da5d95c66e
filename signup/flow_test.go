package signup

import (
	"net/url"
	"testing"
	"time"

	"github.com/mbolis/dcforms/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetailStoreCompletesWithoutPOSCalls(t *testing.T) {
	fx := newFixture(Config{FormID: 3})

	fx.throughPersonal()
	require.Equal(t, ServiceSelection, fx.flow.Step())

	require.NoError(t, fx.flow.Submit(map[string]string{"service_type": "retail_store"}))

	assert.Equal(t, []string{ActionCheckCustomer, ActionCreateCustomer}, fx.transport.actions())
	assert.Equal(t, Complete, fx.flow.Step())
	assert.Equal(t, Complete, fx.view.current())
	assert.Equal(t, Instructions[ServiceRetailStore], fx.view.lastCompletion().Message)
	assert.Empty(t, fx.flow.Submission().ID, "submission is discarded on completion")

	assert.ErrorIs(t, fx.flow.Submit(map[string]string{}), ErrIllegalTransition)
	assert.Len(t, fx.transport.calls, 2)
}

func TestNotSureCompletesImmediately(t *testing.T) {
	fx := newFixture(Config{})
	fx.throughPersonal()
	fx.flow.Submit(map[string]string{"service_type": "not_sure"})

	assert.Equal(t, Complete, fx.flow.Step())
	assert.Equal(t, ServiceNotSure, fx.view.lastCompletion().Service)
	assert.Len(t, fx.transport.calls, 2)
}

func TestEmptyAddressMakesNoCalls(t *testing.T) {
	fx := newFixture(Config{})
	fx.throughPersonal()
	fx.flow.Submit(map[string]string{"service_type": "pickup_delivery"})
	require.Equal(t, AddressInfo, fx.flow.Step())
	before := len(fx.transport.calls)

	err := fx.flow.Submit(map[string]string{"street": "", "city": "", "state": "", "zip_code": ""})

	require.Error(t, err)
	assert.Len(t, fx.transport.calls, before)
	assert.Equal(t, []string{"city", "state", "street", "zip_code"}, fx.view.fieldErrorKeys())
	assert.Equal(t, AddressInfo, fx.flow.Step())
}

func TestPersonalInfoChecksBeforeCreating(t *testing.T) {
	fx := newFixture(Config{FormID: 5})
	require.NoError(t, fx.flow.Submit(copyValues(personal)))

	require.Len(t, fx.transport.calls, 1)
	check := fx.transport.calls[0].req
	assert.Equal(t, ActionCheckCustomer, check.Action)
	assert.Equal(t, "ada@example.com", check.Fields["email"])
	assert.Equal(t, "5", check.Fields["form_id"])
	assert.NotEmpty(t, check.Fields["submission_id"])
	assert.Equal(t, PersonalInfo, fx.flow.Step(), "step waits for the call")
	assert.True(t, fx.flow.Submitting())
	assert.True(t, fx.view.busy)

	fx.transport.last().ok(map[string]any{"exists": true, "customer_id": "cust-7"})
	require.Len(t, fx.transport.calls, 2)
	create := fx.transport.calls[1].req
	assert.Equal(t, ActionCreateCustomer, create.Action)
	assert.Equal(t, check.Fields["submission_id"], create.Fields["submission_id"])

	fx.transport.last().ok(map[string]any{"customer_id": "cust-7"})
	assert.Equal(t, ServiceSelection, fx.flow.Step())
	assert.Equal(t, "cust-7", fx.flow.Submission().CustomerID)
	assert.False(t, fx.flow.Submitting())
}

func TestFailureKeepsStep(t *testing.T) {
	fx := newFixture(Config{})
	fx.flow.Submit(copyValues(personal))
	fx.transport.last().fail("We could not verify your account. Please try again.")

	assert.Equal(t, PersonalInfo, fx.flow.Step())
	assert.Equal(t, "We could not verify your account. Please try again.", fx.view.lastError())
	assert.Len(t, fx.transport.calls, 1, "no retry")

	fx.flow.Submit(copyValues(personal))
	fx.transport.last().done(Response{}, assert.AnError)
	assert.Equal(t, GenericError, fx.view.lastError())
	assert.Equal(t, PersonalInfo, fx.flow.Step())
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	fx := newFixture(Config{})
	fx.flow.Submit(copyValues(personal))
	first := fx.transport.last()
	fx.flow.Submit(copyValues(personal))
	second := fx.transport.last()

	first.ok(map[string]any{"exists": false})
	assert.Len(t, fx.transport.calls, 2, "stale response must not continue the flow")

	second.ok(map[string]any{"exists": false})
	assert.Len(t, fx.transport.calls, 3)
	assert.Equal(t, ActionCreateCustomer, fx.transport.last().req.Action)
}

func TestCloseIgnoresLateResponses(t *testing.T) {
	fx := newFixture(Config{})
	fx.throughPersonal()
	fx.flow.Submit(map[string]string{"service_type": "pickup_delivery"})
	fx.flow.Submit(copyValues(address))
	steps := len(fx.view.steps)

	fx.flow.Close()
	fx.transport.last().ok(map[string]any{"address_id": "addr-9", "pickup_dates": dates})

	assert.Len(t, fx.view.steps, steps)
	assert.Empty(t, fx.view.errors)
	assert.ErrorIs(t, fx.flow.Submit(copyValues(address)), ErrClosed)
}

func TestPickupScheduling(t *testing.T) {
	fx := newFixture(Config{RedirectURL: "/thank-you", RedirectDelay: 3})
	fx.throughAddress()

	require.Equal(t, PickupScheduling, fx.flow.Step())
	addrCall := fx.transport.calls[2].req
	assert.Equal(t, ActionUpdateAddress, addrCall.Action)
	assert.Equal(t, "cust-1", addrCall.Fields["customer_id"])
	assert.Equal(t, "+1 (555) 123-4567", addrCall.Fields["phone"])
	assert.Equal(t, dates, fx.view.dates)
	assert.False(t, fx.view.canSchedule)

	err := fx.flow.Schedule()
	require.Error(t, err)
	assert.Equal(t, []string{"date_id", "time_slot_id"}, fx.view.fieldErrorKeys())

	fx.flow.SelectDate("2024-05-03")
	assert.Len(t, fx.view.slots, 2)
	assert.False(t, fx.view.canSchedule)
	fx.flow.SelectTimeSlot("nope")
	assert.False(t, fx.view.canSchedule)
	fx.flow.SelectTimeSlot("pm")
	assert.True(t, fx.view.canSchedule)

	require.NoError(t, fx.flow.Schedule())
	call := fx.transport.last().req
	assert.Equal(t, ActionSchedulePickup, call.Action)
	assert.Equal(t, "2024-05-03", call.Fields["date_id"])
	assert.Equal(t, "pm", call.Fields["time_slot_id"])
	assert.Equal(t, "addr-9", call.Fields["address_id"])

	fx.transport.last().ok(map[string]any{"appointment": model.Appointment{ID: "apt-1", Date: "2024-05-03", ConfirmationNumber: "CONF42"}})

	assert.Equal(t, Complete, fx.flow.Step())
	c := fx.view.lastCompletion()
	require.NotNil(t, c.Appointment)
	assert.Equal(t, "CONF42", c.Appointment.ConfirmationNumber)
	assert.Equal(t, "/thank-you", c.RedirectURL)

	fx.clock.Advance(2 * time.Second)
	assert.Empty(t, fx.view.redirects)
	fx.clock.Advance(time.Second)
	assert.Equal(t, []int{3, 2, 1}, fx.view.countdowns)
	assert.Equal(t, []string{"/thank-you"}, fx.view.redirects)
}

func TestCancelRedirect(t *testing.T) {
	fx := newFixture(Config{RedirectURL: "/thank-you", RedirectDelay: 5})
	fx.throughPersonal()
	fx.flow.Submit(map[string]string{"service_type": "retail_store"})

	fx.clock.Advance(time.Second)
	fx.flow.CancelRedirect()
	fx.clock.Advance(time.Minute)

	assert.Equal(t, []int{5, 4}, fx.view.countdowns)
	assert.Empty(t, fx.view.redirects)
}

func TestSelectDateResetsSlot(t *testing.T) {
	fx := newFixture(Config{})
	fx.throughAddress()

	fx.flow.SelectDate("2024-05-03")
	fx.flow.SelectTimeSlot("am")
	require.True(t, fx.view.canSchedule)

	fx.flow.SelectDate("2024-05-04")
	assert.False(t, fx.view.canSchedule)
	assert.Len(t, fx.view.slots, 1)

	fx.flow.SelectDate("missing")
	assert.Nil(t, fx.view.slots)
}

func TestPaymentStep(t *testing.T) {
	fx := newFixture(Config{PaymentRequired: true, AmountCents: 2500})
	fx.throughAddress()
	fx.flow.SelectDate("2024-05-04")
	fx.flow.SelectTimeSlot("am")
	fx.flow.Schedule()
	fx.transport.last().ok(map[string]any{"appointment": model.Appointment{ID: "apt-2"}})
	require.Equal(t, Payment, fx.flow.Step())

	card := map[string]string{"card_number": "4111 1111 1111 1111", "exp_month": "12", "exp_year": "2030", "cvv": "123", "name_on_card": "Ada L"}
	require.NoError(t, fx.flow.Submit(card))

	call := fx.transport.last().req
	assert.Equal(t, ActionProcessPayment, call.Action)
	assert.Equal(t, "4111 1111 1111 1111", call.Fields["card_number"])
	assert.Equal(t, "2500", call.Fields["amount_cents"])
	assert.NotContains(t, fx.flow.Submission().Data, "card_number")
	assert.NotContains(t, fx.flow.Submission().Data, "cvv")

	fx.transport.last().ok(map[string]any{"payment": model.PaymentResult{ID: "pay-1", CardBrand: "VISA", Last4: "1111"}})
	c := fx.view.lastCompletion()
	assert.Equal(t, Complete, fx.flow.Step())
	require.NotNil(t, c.Payment)
	assert.Equal(t, "1111", c.Payment.Last4)
	require.NotNil(t, c.Appointment)
	assert.Equal(t, "apt-2", c.Appointment.ID)
}

func TestUTMIsAttachedToRequests(t *testing.T) {
	fx := newFixture(Config{})
	CaptureUTM(fx.session, url.Values{"utm_source": {"google"}, "utm_campaign": {"spring"}, "other": {"x"}})
	CaptureUTM(fx.session, url.Values{"utm_medium": {"cpc"}})

	assert.Equal(t, "google", mustGet(t, fx.session, "dcf_utm_source"))

	fx.flow.Submit(copyValues(personal))
	fields := fx.transport.last().req.Fields
	assert.Equal(t, "google", fields["utm_source"])
	assert.Equal(t, "spring", fields["utm_campaign"])
	assert.Equal(t, "cpc", fields["utm_medium"])
	assert.NotContains(t, fields, "other")
}

func mustGet(t *testing.T, s interface{ Get(string) (string, bool) }, key string) string {
	t.Helper()
	v, ok := s.Get(key)
	require.True(t, ok, key)
	return v
}

func TestResponseMessage(t *testing.T) {
	assert.Equal(t, GenericError, Response{}.Message())
	assert.Equal(t, GenericError, Response{Data: []byte(`"oops"`)}.Message())
	assert.Equal(t, "Nope", Response{Data: []byte(`{"message":"Nope"}`)}.Message())
}
