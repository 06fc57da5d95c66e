package pos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSMRT answers GraphQL operations by name with canned bodies.
type fakeSMRT struct {
	mu        sync.Mutex
	calls     []gqlRequest
	responses map[string]string
	auth      string
}

func (f *fakeSMRT) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.auth = r.Header.Get("Authorization")
	body, ok := f.responses[req.OperationName]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		body = `{"errors":[{"message":"unknown operation"}]}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (f *fakeSMRT) callsTo(op string) []gqlRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gqlRequest
	for _, c := range f.calls {
		if c.OperationName == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSMRT) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const smrtCustomerJSON = `{"id":"cust-42","firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"5551234567","addresses":[{"id":"addr-1","street":"1 Main St","city":"Springfield","state":"IL","zipCode":"62701"}]}`

func setupSMRT(t *testing.T, cfg SMRTSettings, responses map[string]string) (*SMRT, *fakeSMRT, *memLog) {
	t.Helper()
	fake := &fakeSMRT{responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	if cfg.GraphQLURL == "" {
		cfg.GraphQLURL = srv.URL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	ml := &memLog{}
	return NewSMRT(cfg, Options{Log: ml}), fake, ml
}

func TestSMRTIsConfigured(t *testing.T) {
	assert.False(t, NewSMRT(SMRTSettings{}, Options{}).IsConfigured())
	assert.False(t, NewSMRT(SMRTSettings{GraphQLURL: "http://x"}, Options{}).IsConfigured())
	assert.True(t, NewSMRT(SMRTSettings{GraphQLURL: "http://x", APIKey: "k"}, Options{}).IsConfigured())
}

func TestSMRTCustomerExistsPrefersPhone(t *testing.T) {
	smrt, fake, _ := setupSMRT(t, SMRTSettings{StoreID: "store-1"}, map[string]string{
		"GetCustomer": `{"data":{"business":{"getCustomer":` + smrtCustomerJSON + `}}}`,
	})

	res, err := smrt.CustomerExists(context.Background(), "ada@example.com", "+1 (555) 123-4567")
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.Equal(t, "cust-42", res.Customer.ID)
	assert.Equal(t, "62701", res.Customer.Addresses[0].ZipCode)

	calls := fake.callsTo("GetCustomer")
	require.Len(t, calls, 1)
	assert.Equal(t, "5551234567", calls[0].Variables["search"])
	assert.Equal(t, "PHONE", calls[0].Variables["searchBy"])
	assert.NotContains(t, calls[0].Variables, "email")
	assert.Equal(t, "Bearer test-key", fake.auth)
}

func TestSMRTCustomerExistsByEmail(t *testing.T) {
	smrt, fake, _ := setupSMRT(t, SMRTSettings{}, map[string]string{
		"GetCustomer": `{"data":{"business":{"getCustomer":` + smrtCustomerJSON + `}}}`,
	})

	_, err := smrt.CustomerExists(context.Background(), " Ada@Example.com ", "")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", fake.callsTo("GetCustomer")[0].Variables["search"])
	assert.Equal(t, "EMAIL", fake.callsTo("GetCustomer")[0].Variables["searchBy"])
}

func TestSMRTCustomerNotFoundIsNotAnError(t *testing.T) {
	smrt, _, ml := setupSMRT(t, SMRTSettings{}, map[string]string{
		"GetCustomer": `{"data":null,"errors":[{"message":"Customer not found","path":["business","getCustomer"]}]}`,
	})

	data, err := smrt.execute(context.Background(), "GetCustomer", smrtGetCustomer, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"business":{"getCustomer":null}}`, string(data))

	res, err := smrt.CustomerExists(context.Background(), "", "5551234567")
	require.NoError(t, err)
	assert.False(t, res.Exists)
	assert.Nil(t, res.Customer)
	assert.Equal(t, OutcomeNotFound, ml.last().Outcome)
}

func TestSMRTOtherErrorsPropagate(t *testing.T) {
	smrt, _, ml := setupSMRT(t, SMRTSettings{}, map[string]string{
		"GetCustomer": `{"data":null,"errors":[{"message":"Unauthorized store"}]}`,
	})

	_, err := smrt.CustomerExists(context.Background(), "", "5551234567")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVendor)
	assert.Contains(t, err.Error(), "Unauthorized store")
	assert.Equal(t, OutcomeError, ml.last().Outcome)
}

func TestSMRTCreateCustomerMissingAgentID(t *testing.T) {
	smrt, fake, ml := setupSMRT(t, SMRTSettings{}, nil)

	_, err := smrt.CreateCustomer(context.Background(), CustomerData{Email: "a@b.c", Phone: "5551234567"})
	assert.ErrorIs(t, err, ErrMissingAgentID)
	assert.Equal(t, 0, fake.total())
	assert.Equal(t, []string{"create_customer"}, ml.ops())
}

func TestSMRTCreateCustomerFallsBackToStore(t *testing.T) {
	smrt, fake, _ := setupSMRT(t, SMRTSettings{StoreID: "store-9"}, map[string]string{
		"CreateCustomer": `{"data":{"business":{"createCustomer":` + smrtCustomerJSON + `}}}`,
	})

	c, err := smrt.CreateCustomer(context.Background(), CustomerData{FirstName: "Ada", Phone: "+1 555 123 4567"})
	require.NoError(t, err)
	assert.Equal(t, "cust-42", c.ID)

	input := fake.callsTo("CreateCustomer")[0].Variables["input"].(map[string]any)
	assert.Equal(t, "store-9", input["agentId"])
	assert.Equal(t, "5551234567", input["phone"])
}

func TestSMRTCreateCustomerPromoFailureIsSwallowed(t *testing.T) {
	smrt, fake, ml := setupSMRT(t, SMRTSettings{AgentID: "agent-1"}, map[string]string{
		"CreateCustomer": `{"data":{"business":{"createCustomer":` + smrtCustomerJSON + `}}}`,
		"ApplyPromoCode": `{"data":null,"errors":[{"message":"Promo code expired"}]}`,
	})

	c, err := smrt.CreateCustomer(context.Background(), CustomerData{FirstName: "Ada", PromoCode: "FALL10"})
	require.NoError(t, err)
	assert.Equal(t, "cust-42", c.ID)

	assert.Equal(t, "agent-1", fake.callsTo("CreateCustomer")[0].Variables["input"].(map[string]any)["agentId"])
	require.Len(t, fake.callsTo("ApplyPromoCode"), 1)
	assert.Equal(t, []string{"apply_promo_code", "create_customer"}, ml.ops())
	assert.Equal(t, OutcomeError, ml.entries[0].Outcome)
	assert.Equal(t, OutcomeSuccess, ml.entries[1].Outcome)
}

func TestSMRTUpdateCustomerAddress(t *testing.T) {
	smrt, fake, _ := setupSMRT(t, SMRTSettings{}, map[string]string{
		"UpdateCustomerAddress": `{"data":{"business":{"updateCustomerAddress":{"id":"addr-7","street":"9 Elm St","city":"Springfield","state":"IL","zipCode":"62702"}}}}`,
	})

	res, err := smrt.UpdateCustomer(context.Background(), "cust-42", UpdateData{
		Address: &model.Address{Street: "9 Elm St", City: "Springfield", State: "IL", ZipCode: "62702"},
	})
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, ReasonAddressUpdated, res.Reason)
	assert.Equal(t, "addr-7", res.Customer.Addresses[0].ID)
	assert.Equal(t, "cust-42", fake.callsTo("UpdateCustomerAddress")[0].Variables["customerId"])
}

func TestSMRTUpdateCustomerEmailUnchanged(t *testing.T) {
	smrt, fake, _ := setupSMRT(t, SMRTSettings{}, map[string]string{
		"GetCustomer": `{"data":{"business":{"getCustomer":` + smrtCustomerJSON + `}}}`,
	})

	res, err := smrt.UpdateCustomer(context.Background(), "cust-42", UpdateData{Phone: "5551234567", Email: "ADA@example.com"})
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, ReasonEmailUnchanged, res.Reason)
	assert.Empty(t, fake.callsTo("UpdateCustomerEmail"))
}

func TestSMRTUpdateCustomerEmailChanged(t *testing.T) {
	updated := strings.Replace(smrtCustomerJSON, "ada@example.com", "ada@newmail.com", 1)
	smrt, fake, _ := setupSMRT(t, SMRTSettings{}, map[string]string{
		"GetCustomer":         `{"data":{"business":{"getCustomer":` + smrtCustomerJSON + `}}}`,
		"UpdateCustomerEmail": `{"data":{"business":{"updateCustomer":` + updated + `}}}`,
	})

	res, err := smrt.UpdateCustomer(context.Background(), "cust-42", UpdateData{Phone: "5551234567", Email: "ada@newmail.com"})
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, ReasonEmailUpdated, res.Reason)
	assert.Equal(t, "ada@newmail.com", res.Customer.Email)
	assert.Equal(t, "cust-42", fake.callsTo("UpdateCustomerEmail")[0].Variables["customerId"])
}

func TestSMRTUpdateCustomerPhoneOnlyUnsupported(t *testing.T) {
	smrt, fake, _ := setupSMRT(t, SMRTSettings{}, nil)

	_, err := smrt.UpdateCustomer(context.Background(), "cust-42", UpdateData{Phone: "5551234567"})
	assert.ErrorIs(t, err, ErrUnsupportedEdit)
	assert.Equal(t, 0, fake.total())
}

func TestSMRTGetPickupDatesRequiresAddressAndPhone(t *testing.T) {
	smrt, fake, _ := setupSMRT(t, SMRTSettings{}, nil)

	_, err := smrt.GetPickupDates(context.Background(), "cust-42", PickupOptions{Phone: "5551234567"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = smrt.GetPickupDates(context.Background(), "cust-42", PickupOptions{AddressID: "addr-1"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, fake.total())
}

func TestSMRTGetPickupDates(t *testing.T) {
	smrt, fake, _ := setupSMRT(t, SMRTSettings{}, map[string]string{
		"GetAvailablePickupDates": `{"data":{"business":{"getAvailablePickupDates":[
			{"id":"2026-10-21","date":"2026-10-21","timeSlots":[{"id":"am","startTime":"08:00","endTime":"12:00"}]},
			{"date":"2026-10-22","timeSlots":[{"id":"pm","label":"Afternoon"}]}
		]}}}`,
	})

	dates, err := smrt.GetPickupDates(context.Background(), "cust-42", PickupOptions{AddressID: "addr-1", Phone: "+15551234567"})
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.Equal(t, "08:00 - 12:00", dates[0].TimeSlots[0].Label)
	assert.Equal(t, "2026-10-22", dates[1].ID)
	assert.Equal(t, "5551234567", fake.callsTo("GetAvailablePickupDates")[0].Variables["phone"])
}

func TestSMRTSchedulePickupValidation(t *testing.T) {
	ctx := context.Background()
	req := model.AppointmentRequest{DateID: "2026-10-21", TimeSlotID: "am", AddressID: "addr-1"}

	smrt, fake, _ := setupSMRT(t, SMRTSettings{}, nil)
	_, err := smrt.SchedulePickup(ctx, "cust-42", req)
	assert.ErrorIs(t, err, ErrMissingRouteID)

	smrt, fake, _ = setupSMRT(t, SMRTSettings{RouteID: "route-1"}, nil)
	bad := req
	bad.DateID = "21/10/2026"
	_, err = smrt.SchedulePickup(ctx, "cust-42", bad)
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.Equal(t, 0, fake.total())
}

func TestSMRTSchedulePickup(t *testing.T) {
	smrt, fake, _ := setupSMRT(t, SMRTSettings{RouteID: "route-1"}, map[string]string{
		"CreateAppointment": `{"data":{"business":{"createAppointment":{"id":"apt-1","date":"2026-10-21","status":"SCHEDULED","confirmationNumber":"C-100"}}}}`,
	})

	a, err := smrt.SchedulePickup(context.Background(), "cust-42", model.AppointmentRequest{DateID: "2026-10-21", TimeSlotID: "am", AddressID: "addr-1"})
	require.NoError(t, err)
	assert.Equal(t, "C-100", a.ConfirmationNumber)
	assert.Equal(t, "cust-42", a.CustomerID)

	input := fake.callsTo("CreateAppointment")[0].Variables["input"].(map[string]any)
	assert.Equal(t, "route-1", input["routeId"])
	assert.Equal(t, "addr-1", input["addressId"])
}

func TestSMRTProcessPaymentNeverLogsPAN(t *testing.T) {
	smrt, fake, ml := setupSMRT(t, SMRTSettings{}, map[string]string{
		"AddCardAndCharge": `{"data":{"business":{"addCardAndCharge":{"id":"pay-1","status":"APPROVED","amount":2500}}}}`,
	})

	res, err := smrt.ProcessPayment(context.Background(), "cust-42", model.PaymentRequest{
		CardNumber: "4111 1111 1111 1111", ExpMonth: 12, ExpYear: 2030, CVV: "123", AmountCents: 2500,
	})
	require.NoError(t, err)
	assert.Equal(t, BrandVisa, res.CardBrand)
	assert.Equal(t, "1111", res.Last4)

	card := fake.callsTo("AddCardAndCharge")[0].Variables["card"].(map[string]any)
	assert.Equal(t, "4111111111111111", card["number"])

	logged, err := json.Marshal(ml.last())
	require.NoError(t, err)
	assert.NotContains(t, string(logged), "4111111111111111")
	assert.NotContains(t, string(logged), "4111 1111 1111 1111")
}

func TestSMRTTestConnection(t *testing.T) {
	smrt, fake, _ := setupSMRT(t, SMRTSettings{}, map[string]string{
		"Introspection": `{"data":{"__schema":{"queryType":{"name":"Query"}}}}`,
	})

	res, err := smrt.TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Query", res.Details["query_type"])
	assert.Contains(t, res.Details, "latency_ms")
	assert.Len(t, fake.callsTo("Introspection"), 1)
}

func TestSMRTNotConfigured(t *testing.T) {
	smrt := NewSMRT(SMRTSettings{}, Options{})
	_, err := smrt.CustomerExists(context.Background(), "a@b.c", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSMRTTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	smrt := NewSMRT(SMRTSettings{GraphQLURL: srv.URL, APIKey: "k"}, Options{})
	_, err := smrt.CustomerExists(context.Background(), "a@b.c", "")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSMRTInvalidJSON(t *testing.T) {
	smrt, _, _ := setupSMRT(t, SMRTSettings{}, map[string]string{"GetCustomer": `<html>oops</html>`})
	_, err := smrt.CustomerExists(context.Background(), "a@b.c", "")
	assert.ErrorIs(t, err, ErrJSON)
}
