package pos

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/log"
	"github.com/mbolis/dcforms/model"
)

// SPOT speaks to the SPOT REST API with Basic auth (username and license key).
type SPOT struct {
	cfg  SPOTSettings
	http *http.Client
	rec  recorder
}

func NewSPOT(cfg SPOTSettings, opts Options) *SPOT {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: spotTimeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SPOT{cfg: cfg, http: client, rec: newRecorder(VendorSPOT, opts.Log)}
}

func (s *SPOT) Name() string { return "SPOT" }

func (s *SPOT) IsConfigured() bool {
	return s.cfg.BaseURL != "" && s.cfg.Username != "" && s.cfg.LicenseKey != ""
}

type spotErrorBody struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// do sends one request and decodes a 2xx body into out. Non-2xx responses become vendor
// errors carrying the HTTP status.
func (s *SPOT) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := s.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return jsonError(VendorSPOT, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return transportError(VendorSPOT, err)
	}
	req.SetBasicAuth(s.cfg.Username, s.cfg.LicenseKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.AccountKey != "" {
		req.Header.Set("X-Account-Key", s.cfg.AccountKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return transportError(VendorSPOT, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(VendorSPOT, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		var eb spotErrorBody
		if json.Unmarshal(raw, &eb) == nil {
			if eb.Error.Message != "" {
				msg = eb.Error.Message
			} else if eb.Message != "" {
				msg = eb.Message
			}
		}
		return vendorError(resp.StatusCode, msg)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return jsonError(VendorSPOT, err)
	}
	return nil
}

func isNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindVendor && e.Status == http.StatusNotFound
}

type spotAddress struct {
	ID       string `json:"id"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
}

func (a spotAddress) toModel() model.Address {
	return model.Address{ID: a.ID, Street: a.Address1, Street2: a.Address2, City: a.City, State: a.State, ZipCode: a.Zip}
}

type spotCustomer struct {
	ID        string        `json:"id"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	Addresses []spotAddress `json:"addresses"`
}

func (c spotCustomer) toModel() *model.Customer {
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

func (s *SPOT) TestConnection(ctx context.Context) (res ConnectionResult, err error) {
	start := s.rec.now()
	defer func() { s.rec.record(ctx, "test_connection", start, nil, res, err) }()

	if !s.IsConfigured() {
		return ConnectionResult{Message: "SPOT credentials are not configured"}, notConfigured(s.Name())
	}

	var out struct {
		Account struct {
			Name string `json:"name"`
		} `json:"account"`
	}
	if err := s.do(ctx, http.MethodGet, "/account", nil, nil, &out); err != nil {
		return ConnectionResult{Message: err.Error()}, err
	}
	latency := time.Since(start)
	return ConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to SPOT in %dms", latency.Milliseconds()),
		Details: map[string]any{
			"base_url":   s.cfg.BaseURL,
			"account":    out.Account.Name,
			"latency_ms": latency.Milliseconds(),
		},
	}, nil
}

func (s *SPOT) CustomerExists(ctx context.Context, email, phone string) (res LookupResult, err error) {
	start := s.rec.now()
	q := url.Values{}
	defer func() { s.rec.record(ctx, "customer_exists", start, q, res, err) }()

	if !s.IsConfigured() {
		return LookupResult{}, notConfigured(s.Name())
	}
	switch {
	case phone != "":
		q.Set("phone", NormalizePhone(phone))
	case email != "":
		q.Set("email", strings.ToLower(strings.TrimSpace(email)))
	default:
		return LookupResult{}, validationError("missing_lookup_key", "email or phone is required")
	}

	var out struct {
		Customers []spotCustomer `json:"customers"`
	}
	err = s.do(ctx, http.MethodGet, "/customers/search", q, nil, &out)
	if isNotFound(err) {
		return LookupResult{Exists: false}, nil
	}
	if err != nil {
		return LookupResult{}, err
	}
	if len(out.Customers) == 0 {
		return LookupResult{Exists: false}, nil
	}
	return LookupResult{Exists: true, Customer: out.Customers[0].toModel()}, nil
}

func (s *SPOT) CreateCustomer(ctx context.Context, data CustomerData) (c *model.Customer, err error) {
	start := s.rec.now()
	defer func() { s.rec.record(ctx, "create_customer", start, data, c, err) }()

	if !s.IsConfigured() {
		return nil, notConfigured(s.Name())
	}
	agentID, err := agentOrStore(s.cfg.AgentID, s.cfg.StoreID)
	if err != nil {
		return nil, err
	}

	var out struct {
		Customer *spotCustomer `json:"customer"`
	}
	err = s.do(ctx, http.MethodPost, "/customers", nil, map[string]any{
		"agent_id":   agentID,
		"store_id":   s.cfg.StoreID,
		"first_name": strings.TrimSpace(data.FirstName),
		"last_name":  strings.TrimSpace(data.LastName),
		"email":      strings.ToLower(strings.TrimSpace(data.Email)),
		"phone":      NormalizePhone(data.Phone),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Customer == nil || out.Customer.ID == "" {
		return nil, vendorError(http.StatusOK, "SPOT returned no customer")
	}
	c = out.Customer.toModel()

	if code := strings.TrimSpace(data.PromoCode); code != "" {
		if perr := s.applyPromoCode(ctx, c.ID, code); perr != nil {
			log.Warnf("pos.spot.apply_promo_code: customer %s: %s", c.ID, perr)
		}
	}
	return c, nil
}

func (s *SPOT) applyPromoCode(ctx context.Context, customerID, code string) (err error) {
	start := s.rec.now()
	body := map[string]any{"code": code}
	defer func() { s.rec.record(ctx, "apply_promo_code", start, body, nil, err) }()

	return s.do(ctx, http.MethodPost, "/customers/"+url.PathEscape(customerID)+"/promotions", nil, body, nil)
}

func (s *SPOT) UpdateCustomer(ctx context.Context, customerID string, data UpdateData) (res UpdateResult, err error) {
	start := s.rec.now()
	defer func() { s.rec.record(ctx, "update_customer", start, data, res, err) }()

	if !s.IsConfigured() {
		return UpdateResult{}, notConfigured(s.Name())
	}
	return updateCustomer(ctx, s, customerID, data)
}

func (s *SPOT) updateAddress(ctx context.Context, customerID string, addr model.Address) (*model.Address, error) {
	var out struct {
		Address *spotAddress `json:"address"`
	}
	err := s.do(ctx, http.MethodPut, "/customers/"+url.PathEscape(customerID)+"/address", nil, map[string]any{
		"address1": addr.Street,
		"address2": addr.Street2,
		"city":     addr.City,
		"state":    addr.State,
		"zip":      addr.ZipCode,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Address == nil {
		return nil, vendorError(http.StatusOK, "SPOT returned no address")
	}
	a := out.Address.toModel()
	return &a, nil
}

func (s *SPOT) updateEmail(ctx context.Context, customerID, email string) (*model.Customer, error) {
	var out struct {
		Customer *spotCustomer `json:"customer"`
	}
	err := s.do(ctx, http.MethodPatch, "/customers/"+url.PathEscape(customerID), nil, map[string]any{
		"email": strings.ToLower(strings.TrimSpace(email)),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Customer == nil {
		return nil, vendorError(http.StatusOK, "SPOT returned no customer")
	}
	return out.Customer.toModel(), nil
}

func (s *SPOT) GetPickupDates(ctx context.Context, customerID string, opts PickupOptions) (dates []model.DateAvailability, err error) {
	start := s.rec.now()
	defer func() { s.rec.record(ctx, "get_pickup_dates", start, opts, dates, err) }()

	if !s.IsConfigured() {
		return nil, notConfigured(s.Name())
	}
	if err := requirePickupOptions(opts); err != nil {
		return nil, err
	}

	var out struct {
		Dates []struct {
			ID        string `json:"id"`
			Date      string `json:"date"`
			TimeSlots []struct {
				ID    string `json:"id"`
				Label string `json:"label"`
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"time_slots"`
		} `json:"dates"`
	}
	q := url.Values{"address_id": {opts.AddressID}, "phone": {NormalizePhone(opts.Phone)}}
	if err := s.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID)+"/pickup-dates", q, nil, &out); err != nil {
		return nil, err
	}

	dates = make([]model.DateAvailability, 0, len(out.Dates))
	for _, d := range out.Dates {
		da := model.DateAvailability{ID: d.ID, Date: d.Date}
		if da.ID == "" {
			da.ID = d.Date
		}
		for _, ts := range d.TimeSlots {
			da.TimeSlots = append(da.TimeSlots, model.TimeSlot{ID: ts.ID, Label: ts.Label, Start: ts.Start, End: ts.End})
		}
		dates = append(dates, da)
	}
	return dates, nil
}

func (s *SPOT) SchedulePickup(ctx context.Context, customerID string, req model.AppointmentRequest) (a *model.Appointment, err error) {
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

	var out struct {
		Pickup *struct {
			ID                 string `json:"id"`
			CustomerID         string `json:"customer_id"`
			Date               string `json:"date"`
			Status             string `json:"status"`
			ConfirmationNumber string `json:"confirmation_number"`
		} `json:"pickup"`
	}
	err = s.do(ctx, http.MethodPost, "/pickups", nil, map[string]any{
		"customer_id":  customerID,
		"route_id":     s.cfg.RouteID,
		"address_id":   req.AddressID,
		"date":         date.Format(pickupDateLayout),
		"time_slot_id": req.TimeSlotID,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Pickup == nil {
		return nil, vendorError(http.StatusOK, "SPOT returned no pickup")
	}
	a = &model.Appointment{
		ID:                 out.Pickup.ID,
		CustomerID:         out.Pickup.CustomerID,
		Date:               out.Pickup.Date,
		Status:             out.Pickup.Status,
		ConfirmationNumber: out.Pickup.ConfirmationNumber,
	}
	if a.CustomerID == "" {
		a.CustomerID = customerID
	}
	return a, nil
}

func (s *SPOT) ProcessPayment(ctx context.Context, customerID string, p model.PaymentRequest) (res *model.PaymentResult, err error) {
	start := s.rec.now()
	defer func() { s.rec.record(ctx, "process_payment", start, p, res, err) }()

	if !s.IsConfigured() {
		return nil, notConfigured(s.Name())
	}
	if err := validatePayment(p); err != nil {
		return nil, err
	}

	brand, last4 := CardBrand(p.CardNumber), Last4(p.CardNumber)
	var out struct {
		Payment *struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Amount int64  `json:"amount"`
		} `json:"payment"`
	}
	err = s.do(ctx, http.MethodPost, "/customers/"+url.PathEscape(customerID)+"/payments", nil, map[string]any{
		"card": map[string]any{
			"number":    DigitsOnly(p.CardNumber),
			"exp_month": p.ExpMonth,
			"exp_year":  p.ExpYear,
			"cvv":       p.CVV,
			"brand":     brand,
			"name":      p.NameOnCard,
			"zip":       p.ZipCode,
		},
		"amount": p.AmountCents,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Payment == nil {
		return nil, vendorError(http.StatusOK, "SPOT returned no payment")
	}
	return &model.PaymentResult{
		ID:          out.Payment.ID,
		Status:      out.Payment.Status,
		CardBrand:   brand,
		Last4:       last4,
		AmountCents: out.Payment.Amount,
	}, nil
}
