package routes

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	json "github.com/goccy/go-json"
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mbolis/dcforms/app"
	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/log"
	"github.com/mbolis/dcforms/model"
	"github.com/mbolis/dcforms/pos"
	"github.com/mbolis/dcforms/signup"
	"github.com/pkg/errors"
)

func newID() string {
	return uuid.Must(uuid.NewV4()).String()
}

type submissionCheck struct {
	op      bool
	id      string
	granted chan struct{}
}

// submissionGuard serializes the round trips of one submission, so a double submit
// cannot run the check-then-create sequence twice at the same time. A second request
// waits for the first instead of failing; the client keeps only the newest answer.
type submissionGuard chan submissionCheck

func newSubmissionGuard() submissionGuard {
	g := make(submissionGuard)
	go func() {
		// an id is in flight while it has an entry; the slice holds its waiters
		waiting := make(map[string][]chan struct{})

		for req := range g {
			queue, busy := waiting[req.id]
			switch {
			case req.op && !busy:
				waiting[req.id] = nil
				close(req.granted)
			case req.op:
				waiting[req.id] = append(queue, req.granted)
			case len(queue) == 0:
				delete(waiting, req.id)
			default:
				close(queue[0])
				waiting[req.id] = queue[1:]
			}
		}
	}()
	return g
}

// acquire blocks until no other request for id is in flight, or ctx is done.
func (g submissionGuard) acquire(ctx context.Context, id string) error {
	granted := make(chan struct{})
	g <- submissionCheck{true, id, granted}
	select {
	case <-granted:
		return nil
	case <-ctx.Done():
		// hand the turn on as soon as it comes
		go func() {
			<-granted
			g.release(id)
		}()
		return ctx.Err()
	}
}

func (g submissionGuard) release(id string) {
	g <- submissionCheck{false, id, nil}
}

// readValues flattens a form-encoded or JSON request body into string values.
func readValues(r *http.Request) (map[string]string, error) {
	values := map[string]string{}
	if isJSON(r) {
		var body map[string]any
		if err := render.DecodeJSON(r.Body, &body); err != nil {
			return nil, err
		}
		for k, v := range body {
			switch x := v.(type) {
			case nil:
			case string:
				values[k] = strings.TrimSpace(x)
			default:
				values[k] = fmt.Sprint(x)
			}
		}
		return values, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for k := range r.Form {
		values[k] = strings.TrimSpace(r.Form.Get(k))
	}
	return values, nil
}

var (
	errSessionExpired = errors.New("missing customer context")
	errNoAddressID    = errors.New("vendor returned no address id")
)

// unmirrored values never reach the submission table.
var unmirrored = map[string]bool{
	"action": true, "nonce": true, "_ajax_nonce": true,
	"submission_id": true, "form_id": true, "step": true, "customer_id": true, "address_id": true,
	"card_number": true, "cvv": true, "exp_month": true, "exp_year": true,
}

// mirrorSubmission upserts the server-side copy of a multi-step submission. Data is
// merged into what earlier steps stored.
func mirrorSubmission(ctx context.Context, db *sql.DB, sub model.Submission) error {
	data, err := json.Marshal(sub.Data)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `
		INSERT INTO submission (id, form_id, step, data, customer_id, address_id, phone, ip, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			step = excluded.step,
			data = json_patch(submission.data, excluded.data),
			customer_id = CASE WHEN excluded.customer_id <> '' THEN excluded.customer_id ELSE submission.customer_id END,
			address_id = CASE WHEN excluded.address_id <> '' THEN excluded.address_id ELSE submission.address_id END,
			phone = CASE WHEN excluded.phone <> '' THEN excluded.phone ELSE submission.phone END,
			updated_at = excluded.updated_at`,
		sub.ID, sub.FormID, sub.Step, string(data), sub.CustomerID, sub.AddressID, sub.Phone, sub.IP, now, now,
	)
	return err
}

// customerStep performs one vendor round trip of the signup flow. It records the ids
// it learns on sub and returns the response data.
type customerStep func(ctx context.Context, a pos.Adapter, v map[string]string, sub *model.Submission) (any, error)

// customerAction wraps a customerStep with validation, the submission guard, adapter
// resolution, error mapping and submission mirroring.
func customerAction(app app.App, guard submissionGuard, name string, validate func(map[string]string) error, step signup.Step, do customerStep) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := readValues(r)
		if err != nil {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "request.parse_body", "Invalid request", err)
			return
		}

		if err = validate(values); err != nil {
			httpx.AjaxErrorData(w, r, http.StatusOK, log.DebugLevel, name+".validate", httpx.ErrorData{
				Message: err.Error(),
				Code:    "validation",
				Fields:  signup.FieldErrors(err),
			})
			return
		}

		sub := model.Submission{
			ID:         values["submission_id"],
			Step:       int(step),
			Data:       map[string]string{},
			CustomerID: values["customer_id"],
			AddressID:  values["address_id"],
			Phone:      values["phone"],
			IP:         httpx.ClientIP(r),
		}
		if sub.ID == "" {
			sub.ID = newID()
		}
		sub.FormID, _ = strconv.Atoi(values["form_id"])
		for k, v := range values {
			if !unmirrored[k] && v != "" {
				sub.Data[k] = v
			}
		}

		if err = guard.acquire(r.Context(), sub.ID); err != nil {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, name+".in_flight", "Your previous request is still being processed.", err)
			return
		}
		defer guard.release(sub.ID)

		adapter, err := app.Adapter(r.Context())
		if err != nil {
			posError(w, r, name, err)
			return
		}

		data, err := do(r.Context(), adapter, values, &sub)
		if err != nil {
			posError(w, r, name, err)
			return
		}

		if err = mirrorSubmission(r.Context(), app.DB, sub); err != nil {
			log.Errorf("db.%s.mirror_submission: %s", name, err)
		}
		httpx.AjaxSuccess(w, r, data)
	}
}

// posError maps an adapter failure to the envelope. Only validation messages reach
// the visitor; anything else gets the generic retry message.
func posError(w http.ResponseWriter, r *http.Request, name string, err error) {
	var pe *pos.Error
	switch {
	case errors.Is(err, errSessionExpired):
		httpx.AjaxErrorData(w, r, http.StatusOK, log.DebugLevel, name+".session", httpx.ErrorData{
			Message: "Your session has expired. Please start again.",
			Code:    "session_expired",
		})
	case errors.As(err, &pe) && pe.Kind == pos.KindValidation:
		log.Infof("pos.%s: %s", name, err)
		httpx.AjaxErrorData(w, r, http.StatusOK, log.DebugLevel, "pos."+name, httpx.ErrorData{Message: pe.Message, Code: pe.Code})
	case errors.As(err, &pe) && pe.Kind == pos.KindNotConfigured:
		log.Warnf("pos.%s: %s", name, err)
		httpx.AjaxErrorData(w, r, http.StatusOK, log.DebugLevel, "pos."+name, httpx.ErrorData{
			Message: "Online signup is not available right now. Please contact us directly.",
			Code:    pe.Code,
		})
	default:
		log.Errorf("pos.%s: %+v", name, err)
		code := ""
		if pe != nil {
			code = pe.Code
		}
		httpx.AjaxErrorData(w, r, http.StatusOK, log.DebugLevel, "pos."+name, httpx.ErrorData{Message: signup.GenericError, Code: code})
	}
}

func validateLookup(v map[string]string) error {
	if v["email"] == "" && v["phone"] == "" {
		var result *multierror.Error
		result = multierror.Append(result, &signup.FieldError{Field: "email", Message: "Email or phone is required"})
		result.ErrorFormat = func(errs []error) string { return errs[0].(*signup.FieldError).Message }
		return result
	}
	return nil
}

func validateStep(step signup.Step) func(map[string]string) error {
	return func(v map[string]string) error {
		return signup.Validate(step, v)
	}
}

func requireIDs(v map[string]string, keys ...string) error {
	for _, k := range keys {
		if v[k] == "" {
			return errors.Wrap(errSessionExpired, k)
		}
	}
	return nil
}

func checkExistingCustomer(ctx context.Context, a pos.Adapter, v map[string]string, sub *model.Submission) (any, error) {
	found, err := a.CustomerExists(ctx, v["email"], v["phone"])
	if err != nil {
		return nil, err
	}
	out := map[string]any{"exists": found.Exists}
	if found.Exists && found.Customer != nil {
		sub.CustomerID = found.Customer.ID
		out["customer_id"] = found.Customer.ID
	}
	return out, nil
}

// createCustomerAccount looks the customer up before creating one. An existing
// customer gets the submitted email instead.
func createCustomerAccount(ctx context.Context, a pos.Adapter, v map[string]string, sub *model.Submission) (any, error) {
	found, err := a.CustomerExists(ctx, v["email"], v["phone"])
	if err != nil {
		return nil, err
	}
	if found.Exists && found.Customer != nil {
		res, err := a.UpdateCustomer(ctx, found.Customer.ID, pos.UpdateData{Email: v["email"], Phone: v["phone"]})
		if err != nil {
			return nil, err
		}
		sub.CustomerID = found.Customer.ID
		return map[string]any{
			"customer_id": found.Customer.ID,
			"created":     false,
			"updated":     res.Updated,
			"reason":      res.Reason,
		}, nil
	}

	c, err := a.CreateCustomer(ctx, pos.CustomerData{
		FirstName: v["first_name"],
		LastName:  v["last_name"],
		Email:     v["email"],
		Phone:     v["phone"],
		PromoCode: v["promo_code"],
	})
	if err != nil {
		return nil, err
	}
	sub.CustomerID = c.ID
	return map[string]any{"customer_id": c.ID, "created": true}, nil
}

func updateCustomerAddress(ctx context.Context, a pos.Adapter, v map[string]string, sub *model.Submission) (any, error) {
	if err := requireIDs(v, "customer_id", "phone"); err != nil {
		return nil, err
	}
	addr := model.Address{
		Street:  v["street"],
		Street2: v["street2"],
		City:    v["city"],
		State:   v["state"],
		ZipCode: v["zip_code"],
	}
	res, err := a.UpdateCustomer(ctx, v["customer_id"], pos.UpdateData{Address: &addr})
	if err != nil {
		return nil, err
	}
	if res.Customer == nil || len(res.Customer.Addresses) == 0 || res.Customer.Addresses[0].ID == "" {
		return nil, errNoAddressID
	}
	addressID := res.Customer.Addresses[0].ID
	sub.AddressID = addressID

	dates, err := a.GetPickupDates(ctx, v["customer_id"], pos.PickupOptions{AddressID: addressID, Phone: v["phone"]})
	if err != nil {
		return nil, err
	}
	if dates == nil {
		dates = []model.DateAvailability{}
	}
	return map[string]any{"address_id": addressID, "pickup_dates": dates}, nil
}

func schedulePickup(ctx context.Context, a pos.Adapter, v map[string]string, sub *model.Submission) (any, error) {
	if err := requireIDs(v, "customer_id", "address_id"); err != nil {
		return nil, err
	}
	appt, err := a.SchedulePickup(ctx, v["customer_id"], model.AppointmentRequest{
		DateID:     v["date_id"],
		TimeSlotID: v["time_slot_id"],
		AddressID:  v["address_id"],
	})
	if err != nil {
		return nil, err
	}
	sub.Data["appointment_id"] = appt.ID
	return map[string]any{"appointment": appt}, nil
}

func processPayment(ctx context.Context, a pos.Adapter, v map[string]string, sub *model.Submission) (any, error) {
	if err := requireIDs(v, "customer_id"); err != nil {
		return nil, err
	}
	month, _ := strconv.Atoi(v["exp_month"])
	year, _ := strconv.Atoi(v["exp_year"])
	if year > 0 && year < 100 {
		year += 2000
	}
	amount, _ := strconv.ParseInt(v["amount_cents"], 10, 64)

	res, err := a.ProcessPayment(ctx, v["customer_id"], model.PaymentRequest{
		CardNumber:  v["card_number"],
		ExpMonth:    month,
		ExpYear:     year,
		CVV:         v["cvv"],
		NameOnCard:  v["name_on_card"],
		ZipCode:     v["zip_code"],
		AmountCents: amount,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("vendor returned no payment")
	}
	sub.Data["payment_id"] = res.ID
	return map[string]any{"payment": res}, nil
}
