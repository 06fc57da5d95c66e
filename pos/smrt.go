package pos

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/log"
	"github.com/mbolis/dcforms/model"
)

// SMRT speaks to the SMRT GraphQL API with a Bearer API key.
type SMRT struct {
	cfg  SMRTSettings
	http *http.Client
	rec  recorder
}

func NewSMRT(cfg SMRTSettings, opts Options) *SMRT {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: smrtTimeout}
	}
	return &SMRT{cfg: cfg, http: client, rec: newRecorder(VendorSMRT, opts.Log)}
}

func (s *SMRT) Name() string { return "SMRT" }

func (s *SMRT) IsConfigured() bool {
	return s.cfg.GraphQLURL != "" && s.cfg.APIKey != ""
}

type gqlRequest struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

// emptyCustomerLookup is what a lookup that found nobody looks like.
var emptyCustomerLookup = json.RawMessage(`{"business":{"getCustomer":null}}`)

func isCustomerNotFound(errs []gqlError) bool {
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		if !strings.Contains(strings.ToLower(e.Message), "customer not found") {
			return false
		}
	}
	return true
}

// execute posts one GraphQL operation and returns its data member.
func (s *SMRT) execute(ctx context.Context, op, query string, vars map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(gqlRequest{OperationName: op, Query: query, Variables: vars})
	if err != nil {
		return nil, jsonError(VendorSMRT, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, transportError(VendorSMRT, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, transportError(VendorSMRT, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(VendorSMRT, err)
	}

	var out gqlResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && len(out.Errors) > 0 {
			msg = joinGQLErrors(out.Errors)
		}
		return nil, vendorError(resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, jsonError(VendorSMRT, decodeErr)
	}

	if len(out.Errors) > 0 {
		if op == "GetCustomer" && isCustomerNotFound(out.Errors) {
			return emptyCustomerLookup, nil
		}
		return nil, vendorError(resp.StatusCode, joinGQLErrors(out.Errors))
	}
	return out.Data, nil
}

func joinGQLErrors(errs []gqlError) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

func decodeData[T any](data json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, jsonError(VendorSMRT, err)
	}
	return out, nil
}

type smrtAddress struct {
	ID      string `json:"id"`
	Street  string `json:"street"`
	Street2 string `json:"street2"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
}

func (a smrtAddress) toModel() model.Address {
	return model.Address{
		ID:      a.ID,
		Street:  a.Street,
		Street2: a.Street2,
		City:    a.City,
		State:   a.State,
		ZipCode: a.ZipCode,
	}
}

type smrtCustomer struct {
	ID        string        `json:"id"`
	FirstName string        `json:"firstName"`
	LastName  string        `json:"lastName"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	Addresses []smrtAddress `json:"addresses"`
}

func (c smrtCustomer) toModel() *model.Customer {
	out := &model.Customer{
		ID:        c.ID,
		Email:     c.Email,
		Phone:     c.Phone,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Addresses: make([]model.Address, len(c.Addresses)),
	}
	for i, a := range c.Addresses {
		out.Addresses[i] = a.toModel()
	}
	return out
}

func (s *SMRT) TestConnection(ctx context.Context) (res ConnectionResult, err error) {
	start := s.rec.now()
	defer func() { s.rec.record(ctx, "test_connection", start, nil, res, err) }()

	if !s.IsConfigured() {
		return ConnectionResult{Message: "SMRT credentials are not configured"}, notConfigured(s.Name())
	}

	data, err := s.execute(ctx, "Introspection", smrtIntrospection, nil)
	if err != nil {
		return ConnectionResult{Message: err.Error()}, err
	}
	latency := time.Since(start)

	out, err := decodeData[struct {
		Schema struct {
			QueryType struct {
				Name string `json:"name"`
			} `json:"queryType"`
		} `json:"__schema"`
	}](data)
	if err != nil {
		return ConnectionResult{Message: err.Error()}, err
	}

	return ConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to SMRT in %dms", latency.Milliseconds()),
		Details: map[string]any{
			"endpoint":   s.cfg.GraphQLURL,
			"latency_ms": latency.Milliseconds(),
			"query_type": out.Schema.QueryType.Name,
		},
	}, nil
}

// CustomerExists searches by phone when one is given, by email otherwise.
func (s *SMRT) CustomerExists(ctx context.Context, email, phone string) (res LookupResult, err error) {
	start := s.rec.now()
	vars := map[string]any{"storeId": s.cfg.StoreID}
	defer func() { s.rec.record(ctx, "customer_exists", start, vars, res, err) }()

	if !s.IsConfigured() {
		return LookupResult{}, notConfigured(s.Name())
	}

	switch {
	case phone != "":
		vars["search"] = NormalizePhone(phone)
		vars["searchBy"] = "PHONE"
	case email != "":
		vars["search"] = strings.ToLower(strings.TrimSpace(email))
		vars["searchBy"] = "EMAIL"
	default:
		return LookupResult{}, validationError("missing_lookup_key", "email or phone is required")
	}

	data, err := s.execute(ctx, "GetCustomer", smrtGetCustomer, vars)
	if err != nil {
		return LookupResult{}, err
	}
	out, err := decodeData[struct {
		Business struct {
			GetCustomer *smrtCustomer `json:"getCustomer"`
		} `json:"business"`
	}](data)
	if err != nil {
		return LookupResult{}, err
	}

	if out.Business.GetCustomer == nil || out.Business.GetCustomer.ID == "" {
		return LookupResult{Exists: false}, nil
	}
	return LookupResult{Exists: true, Customer: out.Business.GetCustomer.toModel()}, nil
}

func (s *SMRT) CreateCustomer(ctx context.Context, data CustomerData) (c *model.Customer, err error) {
	start := s.rec.now()
	defer func() { s.rec.record(ctx, "create_customer", start, data, c, err) }()

	if !s.IsConfigured() {
		return nil, notConfigured(s.Name())
	}
	agentID, err := agentOrStore(s.cfg.AgentID, s.cfg.StoreID)
	if err != nil {
		return nil, err
	}

	input := map[string]any{
		"agentId":   agentID,
		"storeId":   s.cfg.StoreID,
		"firstName": strings.TrimSpace(data.FirstName),
		"lastName":  strings.TrimSpace(data.LastName),
		"email":     strings.ToLower(strings.TrimSpace(data.Email)),
		"phone":     NormalizePhone(data.Phone),
	}
	raw, err := s.execute(ctx, "CreateCustomer", smrtCreateCustomer, map[string]any{"input": input})
	if err != nil {
		return nil, err
	}
	out, err := decodeData[struct {
		Business struct {
			CreateCustomer *smrtCustomer `json:"createCustomer"`
		} `json:"business"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if out.Business.CreateCustomer == nil || out.Business.CreateCustomer.ID == "" {
		return nil, vendorError(http.StatusOK, "SMRT returned no customer")
	}
	c = out.Business.CreateCustomer.toModel()

	if code := strings.TrimSpace(data.PromoCode); code != "" {
		if perr := s.applyPromoCode(ctx, c.ID, code); perr != nil {
			log.Warnf("pos.smrt.apply_promo_code: customer %s: %s", c.ID, perr)
		}
	}
	return c, nil
}

func (s *SMRT) applyPromoCode(ctx context.Context, customerID, code string) (err error) {
	start := s.rec.now()
	vars := map[string]any{"customerId": customerID, "code": code}
	var res any
	defer func() { s.rec.record(ctx, "apply_promo_code", start, vars, res, err) }()

	raw, err := s.execute(ctx, "ApplyPromoCode", smrtApplyPromoCode, vars)
	if err != nil {
		return err
	}
	out, err := decodeData[struct {
		Business struct {
			ApplyPromoCode struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			} `json:"applyPromoCode"`
		} `json:"business"`
	}](raw)
	if err != nil {
		return err
	}
	res = out.Business.ApplyPromoCode
	if !out.Business.ApplyPromoCode.Success {
		return vendorError(http.StatusOK, "promo code rejected: "+out.Business.ApplyPromoCode.Message)
	}
	return nil
}

func (s *SMRT) UpdateCustomer(ctx context.Context, customerID string, data UpdateData) (res UpdateResult, err error) {
	start := s.rec.now()
	defer func() { s.rec.record(ctx, "update_customer", start, data, res, err) }()

	if !s.IsConfigured() {
		return UpdateResult{}, notConfigured(s.Name())
	}
	return updateCustomer(ctx, s, customerID, data)
}

func (s *SMRT) updateAddress(ctx context.Context, customerID string, addr model.Address) (*model.Address, error) {
	raw, err := s.execute(ctx, "UpdateCustomerAddress", smrtUpdateAddress, map[string]any{
		"customerId": customerID,
		"address": map[string]any{
			"street":  addr.Street,
			"street2": addr.Street2,
			"city":    addr.City,
			"state":   addr.State,
			"zipCode": addr.ZipCode,
		},
	})
	if err != nil {
		return nil, err
	}
	out, err := decodeData[struct {
		Business struct {
			UpdateCustomerAddress *smrtAddress `json:"updateCustomerAddress"`
		} `json:"business"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if out.Business.UpdateCustomerAddress == nil {
		return nil, vendorError(http.StatusOK, "SMRT returned no address")
	}
	a := out.Business.UpdateCustomerAddress.toModel()
	return &a, nil
}

func (s *SMRT) updateEmail(ctx context.Context, customerID, email string) (*model.Customer, error) {
	raw, err := s.execute(ctx, "UpdateCustomerEmail", smrtUpdateEmail, map[string]any{
		"customerId": customerID,
		"email":      strings.ToLower(strings.TrimSpace(email)),
	})
	if err != nil {
		return nil, err
	}
	out, err := decodeData[struct {
		Business struct {
			UpdateCustomer *smrtCustomer `json:"updateCustomer"`
		} `json:"business"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if out.Business.UpdateCustomer == nil {
		return nil, vendorError(http.StatusOK, "SMRT returned no customer")
	}
	return out.Business.UpdateCustomer.toModel(), nil
}

func (s *SMRT) GetPickupDates(ctx context.Context, customerID string, opts PickupOptions) (dates []model.DateAvailability, err error) {
	start := s.rec.now()
	vars := map[string]any{
		"storeId":    s.cfg.StoreID,
		"customerId": customerID,
		"addressId":  opts.AddressID,
		"phone":      NormalizePhone(opts.Phone),
	}
	defer func() { s.rec.record(ctx, "get_pickup_dates", start, vars, dates, err) }()

	if !s.IsConfigured() {
		return nil, notConfigured(s.Name())
	}
	if err := requirePickupOptions(opts); err != nil {
		return nil, err
	}

	raw, err := s.execute(ctx, "GetAvailablePickupDates", smrtPickupDates, vars)
	if err != nil {
		return nil, err
	}
	out, err := decodeData[struct {
		Business struct {
			Dates []struct {
				ID        string `json:"id"`
				Date      string `json:"date"`
				TimeSlots []struct {
					ID        string `json:"id"`
					Label     string `json:"label"`
					StartTime string `json:"startTime"`
					EndTime   string `json:"endTime"`
				} `json:"timeSlots"`
			} `json:"getAvailablePickupDates"`
		} `json:"business"`
	}](raw)
	if err != nil {
		return nil, err
	}

	dates = make([]model.DateAvailability, 0, len(out.Business.Dates))
	for _, d := range out.Business.Dates {
		da := model.DateAvailability{ID: d.ID, Date: d.Date}
		if da.ID == "" {
			da.ID = d.Date
		}
		for _, ts := range d.TimeSlots {
			label := ts.Label
			if label == "" {
				label = ts.StartTime + " - " + ts.EndTime
			}
			da.TimeSlots = append(da.TimeSlots, model.TimeSlot{ID: ts.ID, Label: label, Start: ts.StartTime, End: ts.EndTime})
		}
		dates = append(dates, da)
	}
	return dates, nil
}

// SchedulePickup books a pickup. DateID is the pickup date as YYYY-MM-DD.
func (s *SMRT) SchedulePickup(ctx context.Context, customerID string, req model.AppointmentRequest) (a *model.Appointment, err error) {
	start := s.rec.now()
	defer func() { s.rec.record(ctx, "schedule_pickup", start, req, a, err) }()

	if !s.IsConfigured() {
		return nil, notConfigured(s.Name())
	}
	if s.cfg.RouteID == "" {
		return nil, validationError("missing_route_id", "a delivery route id must be configured to schedule pickups")
	}
	date, err := parsePickupDate(req.DateID)
	if err != nil {
		return nil, err
	}
	if req.AddressID == "" {
		return nil, validationError("missing_address_id", "address_id is required to schedule a pickup")
	}

	raw, err := s.execute(ctx, "CreateAppointment", smrtCreateAppointment, map[string]any{
		"input": map[string]any{
			"storeId":    s.cfg.StoreID,
			"customerId": customerID,
			"routeId":    s.cfg.RouteID,
			"addressId":  req.AddressID,
			"date":       date.Format(pickupDateLayout),
			"timeSlotId": req.TimeSlotID,
		},
	})
	if err != nil {
		return nil, err
	}
	out, err := decodeData[struct {
		Business struct {
			CreateAppointment *model.Appointment `json:"createAppointment"`
		} `json:"business"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if out.Business.CreateAppointment == nil {
		return nil, vendorError(http.StatusOK, "SMRT returned no appointment")
	}
	a = out.Business.CreateAppointment
	if a.CustomerID == "" {
		a.CustomerID = customerID
	}
	return a, nil
}

func (s *SMRT) ProcessPayment(ctx context.Context, customerID string, p model.PaymentRequest) (res *model.PaymentResult, err error) {
	start := s.rec.now()
	defer func() { s.rec.record(ctx, "process_payment", start, p, res, err) }()

	if !s.IsConfigured() {
		return nil, notConfigured(s.Name())
	}
	if err := validatePayment(p); err != nil {
		return nil, err
	}

	brand, last4 := CardBrand(p.CardNumber), Last4(p.CardNumber)
	raw, err := s.execute(ctx, "AddCardAndCharge", smrtChargeCard, map[string]any{
		"customerId": customerID,
		"card": map[string]any{
			"number":     DigitsOnly(p.CardNumber),
			"expMonth":   p.ExpMonth,
			"expYear":    p.ExpYear,
			"cvv":        p.CVV,
			"brand":      brand,
			"last4":      last4,
			"nameOnCard": p.NameOnCard,
			"zipCode":    p.ZipCode,
		},
		"amount": p.AmountCents,
	})
	if err != nil {
		return nil, err
	}
	out, err := decodeData[struct {
		Business struct {
			Charge *struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount int64  `json:"amount"`
			} `json:"addCardAndCharge"`
		} `json:"business"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if out.Business.Charge == nil {
		return nil, vendorError(http.StatusOK, "SMRT returned no payment")
	}
	return &model.PaymentResult{
		ID:          out.Business.Charge.ID,
		Status:      out.Business.Charge.Status,
		CardBrand:   brand,
		Last4:       last4,
		AmountCents: out.Business.Charge.Amount,
	}, nil
}

func validatePayment(p model.PaymentRequest) error {
	n := len(DigitsOnly(p.CardNumber))
	if n < 12 || n > 19 {
		return validationError("invalid_card_number", "card number is invalid")
	}
	if p.ExpMonth < 1 || p.ExpMonth > 12 || p.ExpYear < 2000 {
		return validationError("invalid_expiry", "card expiry is invalid")
	}
	if l := len(DigitsOnly(p.CVV)); l < 3 || l > 4 {
		return validationError("invalid_cvv", "card security code is invalid")
	}
	return nil
}
