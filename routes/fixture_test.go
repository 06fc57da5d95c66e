package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/app"
	"github.com/mbolis/dcforms/config"
	"github.com/mbolis/dcforms/database"
	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/model"
	"github.com/mbolis/dcforms/pos"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	mu    sync.Mutex
	calls []string

	lookup    pos.LookupResult
	lookupErr error
	createErr error
	update    pos.UpdateResult
	dates     []model.DateAvailability
	appt      *model.Appointment
	payment   *model.PaymentResult
	lastPay   model.PaymentRequest
	lastData  pos.UpdateData
	block     chan struct{}
}

func (f *fakeAdapter) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAdapter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAdapter) Name() string       { return "Fake" }
func (f *fakeAdapter) IsConfigured() bool { return true }

func (f *fakeAdapter) TestConnection(ctx context.Context) (pos.ConnectionResult, error) {
	f.record("test_connection")
	return pos.ConnectionResult{Success: true, Message: "Connected"}, nil
}

func (f *fakeAdapter) CustomerExists(ctx context.Context, email, phone string) (pos.LookupResult, error) {
	f.record("customer_exists")
	if f.block != nil {
		<-f.block
	}
	return f.lookup, f.lookupErr
}

func (f *fakeAdapter) CreateCustomer(ctx context.Context, data pos.CustomerData) (*model.Customer, error) {
	f.record("create_customer")
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &model.Customer{ID: "cust-new", Email: data.Email, Phone: data.Phone}, nil
}

func (f *fakeAdapter) UpdateCustomer(ctx context.Context, customerID string, data pos.UpdateData) (pos.UpdateResult, error) {
	f.record("update_customer")
	f.lastData = data
	return f.update, nil
}

func (f *fakeAdapter) GetPickupDates(ctx context.Context, customerID string, opts pos.PickupOptions) ([]model.DateAvailability, error) {
	f.record("get_pickup_dates")
	return f.dates, nil
}

func (f *fakeAdapter) SchedulePickup(ctx context.Context, customerID string, req model.AppointmentRequest) (*model.Appointment, error) {
	f.record("schedule_pickup")
	return f.appt, nil
}

func (f *fakeAdapter) ProcessPayment(ctx context.Context, customerID string, payment model.PaymentRequest) (*model.PaymentResult, error) {
	f.record("process_payment")
	f.lastPay = payment
	return f.payment, nil
}

func newTestApp(t *testing.T) (app.App, *fakeAdapter) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := app.New(db, config.Config{
		TokenSecret:         "test-secret",
		TokenTTL:            time.Minute,
		NonceTTL:            time.Hour,
		TrackRate:           100,
		PopupEditorRedirect: config.RedirectOrigin,
		POS:                 pos.Settings{System: "fake"},
	})
	fake := &fakeAdapter{}
	a.POS.Register("fake", func(pos.Settings, pos.Options) pos.Adapter { return fake })
	return a, fake
}

func nonce(t *testing.T, a app.App, scope string) string {
	t.Helper()
	n, err := a.Nonces.Issue(scope)
	require.NoError(t, err)
	return n
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) message() string {
	var d httpx.ErrorData
	json.Unmarshal(e.Data, &d)
	return d.Message
}

func postForm(h http.Handler, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", AjaxPath, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postJSON(h http.Handler, nonce string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", AjaxPath, strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-WP-Nonce", nonce)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

// loginCookies creates an admin user and logs in through the API router.
func loginCookies(t *testing.T, a app.App) []*http.Cookie {
	return loginAs(t, a, "admin", "admin")
}

func loginAs(t *testing.T, a app.App, username, roles string) []*http.Cookie {
	t.Helper()
	require.NoError(t, httpx.CreateUser(context.Background(), a.DB, username, "secret", roles))

	req := httptest.NewRequest("POST", "/api/login", nil)
	req.SetBasicAuth(username, "secret")
	rec := httptest.NewRecorder()
	Wire(a).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
