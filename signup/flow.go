package signup

import (
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofrs/uuid"
	"github.com/mbolis/dcforms/engine"
	"github.com/mbolis/dcforms/model"
	"github.com/pkg/errors"
)

// AJAX actions called by the flow.
const (
	ActionCheckCustomer  = "dcf_check_existing_customer"
	ActionCreateCustomer = "dcf_create_customer_account"
	ActionUpdateAddress  = "dcf_update_customer_address"
	ActionSchedulePickup = "dcf_schedule_pickup"
	ActionProcessPayment = "dcf_process_payment"
)

// GenericError is shown for failures whose details stay in the server log.
const GenericError = "Something went wrong. Please try again."

var Instructions = map[ServiceType]string{
	ServiceRetailStore:    "Thanks for signing up! Bring your garments to any of our store locations and mention your phone number at the counter.",
	ServiceNotSure:        "Thanks for signing up! A member of our team will reach out shortly to help you choose the right service.",
	ServicePickupDelivery: "Your pickup is scheduled. We will see you soon!",
}

type Request struct {
	Action string
	Fields map[string]string
}

// Response is the {success, data} envelope of an AJAX action.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// Message returns data.message of a failed response, or GenericError.
func (r Response) Message() string {
	var body struct {
		Message string `json:"message"`
	}
	if len(r.Data) > 0 && json.Unmarshal(r.Data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return GenericError
}

// Transport delivers AJAX requests. done must be called exactly once, on the same
// event loop that drives the Flow.
type Transport interface {
	Send(req Request, done func(Response, error))
}

type View interface {
	ShowStep(step Step)
	SetBusy(busy bool)
	// FieldErrors replaces the inline errors; an empty map clears them.
	FieldErrors(errs map[string]string)
	Error(message string)
	ShowDates(dates []model.DateAvailability)
	ShowTimeSlots(slots []model.TimeSlot)
	EnableSchedule(enabled bool)
	Complete(c Completion)
	Countdown(remaining int)
	Redirect(url string)
}

type Completion struct {
	Service     ServiceType
	Message     string
	Appointment *model.Appointment
	Payment     *model.PaymentResult
	RedirectURL string
}

type Config struct {
	FormID          int
	PaymentRequired bool
	AmountCents     int64
	RedirectURL     string
	// Seconds before redirecting after completion; 0 disables the redirect.
	RedirectDelay int
}

var ErrClosed = errors.New("signup closed")

// Flow is one visitor going through the signup steps. It is not safe for concurrent
// use: like the page it models, it runs on a single event loop.
type Flow struct {
	cfg       Config
	transport Transport
	view      View
	clock     engine.Clock
	session   engine.Storage

	step       Step
	sub        model.Submission
	requestID  string
	submitting bool
	closed     bool

	dates  []model.DateAvailability
	dateID string
	slotID string

	completion *Completion
	countdown  engine.Timer
	remaining  int
}

func NewFlow(cfg Config, transport Transport, view View, clock engine.Clock, session engine.Storage) *Flow {
	if clock == nil {
		clock = engine.SystemClock
	}
	if session == nil {
		session = engine.NewMemoryStorage()
	}
	return &Flow{cfg: cfg, transport: transport, view: view, clock: clock, session: session}
}

func (f *Flow) Start() {
	f.view.ShowStep(f.step)
}

func (f *Flow) Step() Step { return f.step }

func (f *Flow) Submitting() bool { return f.submitting }

// Submission returns the in-flight submission. It is empty before the first submit
// and again once the flow completes.
func (f *Flow) Submission() model.Submission { return f.sub }

func (f *Flow) Completion() *Completion { return f.completion }

func newID() string {
	return uuid.Must(uuid.NewV4()).String()
}

var secretFields = map[string]bool{"card_number": true, "cvv": true, "exp_month": true, "exp_year": true}

// Submit validates the visible step and issues the call that guards the next one.
// The step only changes once that call succeeds.
func (f *Flow) Submit(values map[string]string) error {
	if f.closed {
		return ErrClosed
	}
	if f.step == Complete {
		return errors.Wrapf(ErrIllegalTransition, "from %s", f.step)
	}
	if values == nil {
		values = map[string]string{}
	}
	if f.step == PickupScheduling {
		values["date_id"] = f.dateID
		values["time_slot_id"] = f.slotID
	}

	if err := Validate(f.step, values); err != nil {
		f.view.FieldErrors(FieldErrors(err))
		return err
	}
	f.view.FieldErrors(map[string]string{})

	if f.sub.ID == "" {
		f.sub = model.Submission{ID: newID(), FormID: f.cfg.FormID, Data: map[string]string{}}
	}
	f.sub.Step = int(f.step)
	for k, v := range values {
		if !secretFields[k] {
			f.sub.Data[k] = v
		}
	}

	switch f.step {
	case PersonalInfo:
		f.checkCustomer(values)
	case ServiceSelection:
		return f.selectService(ServiceType(values["service_type"]))
	case AddressInfo:
		f.updateAddress(values)
	case PickupScheduling:
		f.schedule()
	case Payment:
		f.pay(values)
	}
	return nil
}

func (f *Flow) checkCustomer(values map[string]string) {
	f.sub.Phone = values["phone"]
	lookup := map[string]string{"email": values["email"], "phone": values["phone"]}

	f.send(ActionCheckCustomer, lookup, func(data json.RawMessage) error {
		var found struct {
			Exists     bool   `json:"exists"`
			CustomerID string `json:"customer_id"`
		}
		if err := json.Unmarshal(data, &found); err != nil {
			return err
		}
		if found.Exists {
			f.sub.CustomerID = found.CustomerID
		}

		create := map[string]string{
			"first_name": values["first_name"],
			"last_name":  values["last_name"],
			"email":      values["email"],
			"phone":      values["phone"],
			"promo_code": values["promo_code"],
		}
		f.send(ActionCreateCustomer, create, func(data json.RawMessage) error {
			var created struct {
				CustomerID string `json:"customer_id"`
			}
			if err := json.Unmarshal(data, &created); err != nil {
				return err
			}
			if created.CustomerID == "" {
				return errors.New("no customer id in response")
			}
			f.sub.CustomerID = created.CustomerID
			return f.advance(Input{})
		})
		return nil
	})
}

func (f *Flow) selectService(svc ServiceType) error {
	next, err := Next(ServiceSelection, Input{Service: svc})
	if err != nil {
		f.view.FieldErrors(map[string]string{"service_type": "Please choose a service"})
		return err
	}
	if next == Complete {
		f.complete(Completion{Service: svc, Message: Instructions[svc]})
		return nil
	}
	f.sub.Data["service_type"] = string(svc)
	f.goTo(next)
	return nil
}

func (f *Flow) updateAddress(values map[string]string) {
	req := map[string]string{
		"customer_id": f.sub.CustomerID,
		"phone":       f.sub.Phone,
		"street":      values["street"],
		"street2":     values["street2"],
		"city":        values["city"],
		"state":       values["state"],
		"zip_code":    values["zip_code"],
	}
	f.send(ActionUpdateAddress, req, func(data json.RawMessage) error {
		var out struct {
			AddressID   string                   `json:"address_id"`
			PickupDates []model.DateAvailability `json:"pickup_dates"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		if out.AddressID == "" {
			return errors.New("no address id in response")
		}
		f.sub.AddressID = out.AddressID
		f.dates = out.PickupDates
		f.dateID, f.slotID = "", ""
		if err := f.advance(Input{}); err != nil {
			return err
		}
		f.view.ShowDates(f.dates)
		f.view.EnableSchedule(false)
		return nil
	})
}

// SelectDate shows the time slots of the chosen date and resets the slot.
func (f *Flow) SelectDate(dateID string) {
	if f.step != PickupScheduling {
		return
	}
	f.dateID, f.slotID = "", ""
	for _, d := range f.dates {
		if d.ID == dateID {
			f.dateID = dateID
			f.view.ShowTimeSlots(d.TimeSlots)
			break
		}
	}
	if f.dateID == "" {
		f.view.ShowTimeSlots(nil)
	}
	f.view.EnableSchedule(false)
}

func (f *Flow) SelectTimeSlot(slotID string) {
	if f.step != PickupScheduling || f.dateID == "" {
		return
	}
	f.slotID = ""
	for _, d := range f.dates {
		if d.ID != f.dateID {
			continue
		}
		for _, s := range d.TimeSlots {
			if s.ID == slotID {
				f.slotID = slotID
			}
		}
	}
	f.view.EnableSchedule(f.slotID != "")
}

// Schedule submits the pickup scheduling step with the selected date and slot.
func (f *Flow) Schedule() error {
	return f.Submit(map[string]string{})
}

func (f *Flow) schedule() {
	req := map[string]string{
		"customer_id":  f.sub.CustomerID,
		"address_id":   f.sub.AddressID,
		"date_id":      f.dateID,
		"time_slot_id": f.slotID,
	}
	f.send(ActionSchedulePickup, req, func(data json.RawMessage) error {
		var out struct {
			Appointment *model.Appointment `json:"appointment"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		if out.Appointment == nil {
			return errors.New("no appointment in response")
		}
		next, err := Next(PickupScheduling, Input{PaymentRequired: f.cfg.PaymentRequired})
		if err != nil {
			return err
		}
		if next == Complete {
			f.complete(Completion{Service: ServicePickupDelivery, Message: Instructions[ServicePickupDelivery], Appointment: out.Appointment})
			return nil
		}
		f.completion = &Completion{Service: ServicePickupDelivery, Appointment: out.Appointment}
		f.goTo(next)
		return nil
	})
}

func (f *Flow) pay(values map[string]string) {
	req := map[string]string{
		"customer_id":  f.sub.CustomerID,
		"card_number":  values["card_number"],
		"exp_month":    values["exp_month"],
		"exp_year":     values["exp_year"],
		"cvv":          values["cvv"],
		"name_on_card": values["name_on_card"],
		"zip_code":     values["billing_zip"],
		"amount_cents": strconv.FormatInt(f.cfg.AmountCents, 10),
	}
	f.send(ActionProcessPayment, req, func(data json.RawMessage) error {
		var out struct {
			Payment *model.PaymentResult `json:"payment"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		c := Completion{Service: ServicePickupDelivery, Message: Instructions[ServicePickupDelivery], Payment: out.Payment}
		if f.completion != nil {
			c.Appointment = f.completion.Appointment
		}
		f.complete(c)
		return nil
	})
}

// payload adds the submission and attribution fields every request carries.
func (f *Flow) payload(fields map[string]string) map[string]string {
	out := UTMValues(f.session)
	for k, v := range fields {
		out[k] = v
	}
	out["submission_id"] = f.sub.ID
	out["form_id"] = strconv.Itoa(f.cfg.FormID)
	out["step"] = strconv.Itoa(int(f.step))
	return out
}

// send tags the request with a fresh id. A response that arrives after another
// request was issued, or after Close, is dropped.
func (f *Flow) send(action string, fields map[string]string, onOK func(json.RawMessage) error) {
	id := newID()
	f.requestID = id
	f.submitting = true
	f.view.SetBusy(true)

	f.transport.Send(Request{Action: action, Fields: f.payload(fields)}, func(resp Response, err error) {
		if f.closed || f.requestID != id {
			return
		}
		f.submitting = false
		f.view.SetBusy(false)

		switch {
		case err != nil:
			f.view.Error(GenericError)
		case !resp.Success:
			f.view.Error(resp.Message())
		default:
			if err := onOK(resp.Data); err != nil {
				f.view.Error(GenericError)
			}
		}
	})
}

func (f *Flow) advance(in Input) error {
	next, err := Next(f.step, in)
	if err != nil {
		return err
	}
	f.goTo(next)
	return nil
}

func (f *Flow) goTo(step Step) {
	f.step = step
	f.view.ShowStep(step)
}

// complete shows the completion screen, discards the submission and starts the
// redirect countdown when one is configured.
func (f *Flow) complete(c Completion) {
	c.RedirectURL = f.cfg.RedirectURL
	f.completion = &c
	f.step = Complete
	f.sub = model.Submission{}
	f.view.ShowStep(Complete)
	f.view.Complete(c)

	if f.cfg.RedirectURL != "" && f.cfg.RedirectDelay > 0 {
		f.remaining = f.cfg.RedirectDelay
		f.tick()
	}
}

func (f *Flow) tick() {
	f.view.Countdown(f.remaining)
	f.countdown = f.clock.AfterFunc(time.Second, func() {
		if f.closed || f.countdown == nil {
			return
		}
		f.remaining--
		if f.remaining <= 0 {
			f.countdown = nil
			f.view.Redirect(f.cfg.RedirectURL)
			return
		}
		f.tick()
	})
}

// CancelRedirect stops the countdown; the completion screen stays.
func (f *Flow) CancelRedirect() {
	if f.countdown != nil {
		f.countdown.Stop()
		f.countdown = nil
	}
}

// Close abandons the flow. Responses still in flight are ignored when they arrive.
func (f *Flow) Close() {
	f.closed = true
	f.submitting = false
	f.CancelRedirect()
	f.sub = model.Submission{}
}
