package signup

import (
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/engine"
	"github.com/mbolis/dcforms/model"
)

type pendingCall struct {
	req  Request
	done func(Response, error)
}

type fakeTransport struct {
	calls []*pendingCall
}

func (t *fakeTransport) Send(req Request, done func(Response, error)) {
	t.calls = append(t.calls, &pendingCall{req: req, done: done})
}

func (t *fakeTransport) actions() []string {
	out := make([]string, len(t.calls))
	for i, c := range t.calls {
		out[i] = c.req.Action
	}
	return out
}

func (t *fakeTransport) last() *pendingCall {
	return t.calls[len(t.calls)-1]
}

func (c *pendingCall) ok(data any) {
	raw, _ := json.Marshal(data)
	c.done(Response{Success: true, Data: raw}, nil)
}

func (c *pendingCall) fail(message string) {
	raw, _ := json.Marshal(map[string]string{"message": message})
	c.done(Response{Success: false, Data: raw}, nil)
}

type fakeView struct {
	steps       []Step
	busy        bool
	fieldErrors map[string]string
	errors      []string
	dates       []model.DateAvailability
	slots       []model.TimeSlot
	canSchedule bool
	completions []Completion
	countdowns  []int
	redirects   []string
}

func (v *fakeView) ShowStep(s Step)                      { v.steps = append(v.steps, s) }
func (v *fakeView) SetBusy(b bool)                       { v.busy = b }
func (v *fakeView) FieldErrors(errs map[string]string)   { v.fieldErrors = errs }
func (v *fakeView) Error(msg string)                     { v.errors = append(v.errors, msg) }
func (v *fakeView) ShowDates(d []model.DateAvailability) { v.dates = d }
func (v *fakeView) ShowTimeSlots(s []model.TimeSlot)     { v.slots = s }
func (v *fakeView) EnableSchedule(enabled bool)          { v.canSchedule = enabled }
func (v *fakeView) Complete(c Completion)                { v.completions = append(v.completions, c) }
func (v *fakeView) Countdown(remaining int)              { v.countdowns = append(v.countdowns, remaining) }
func (v *fakeView) Redirect(url string)                  { v.redirects = append(v.redirects, url) }
func (v *fakeView) current() Step                        { return v.steps[len(v.steps)-1] }
func (v *fakeView) fieldErrorKeys() []string             { return SortedFields(v.fieldErrors) }
func (v *fakeView) lastError() string                    { return v.errors[len(v.errors)-1] }
func (v *fakeView) lastCompletion() Completion           { return v.completions[len(v.completions)-1] }
func (v *fakeView) hasStep(s Step) bool                  { return containsStep(v.steps, s) }
func containsStep(steps []Step, s Step) bool {
	for _, x := range steps {
		if x == s {
			return true
		}
	}
	return false
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) engine.Timer {
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		due[0].fired = true
		c.now = due[0].at
		due[0].f()
	}
}

type fixture struct {
	transport *fakeTransport
	view      *fakeView
	clock     *fakeClock
	session   *engine.MemoryStorage
	flow      *Flow
}

func newFixture(cfg Config) *fixture {
	fx := &fixture{
		transport: &fakeTransport{},
		view:      &fakeView{},
		clock:     &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		session:   engine.NewMemoryStorage(),
	}
	fx.flow = NewFlow(cfg, fx.transport, fx.view, fx.clock, fx.session)
	fx.flow.Start()
	return fx
}

var personal = map[string]string{
	"first_name": "Ada",
	"last_name":  "Lovelace",
	"email":      "ada@example.com",
	"phone":      "+1 (555) 123-4567",
}

var address = map[string]string{
	"street":   "1 Main St",
	"city":     "Springfield",
	"state":    "IL",
	"zip_code": "62701",
}

var dates = []model.DateAvailability{
	{ID: "2024-05-03", Date: "2024-05-03", TimeSlots: []model.TimeSlot{{ID: "am", Label: "8-12"}, {ID: "pm", Label: "12-5"}}},
	{ID: "2024-05-04", Date: "2024-05-04", TimeSlots: []model.TimeSlot{{ID: "am", Label: "8-12"}}},
}

// throughPersonal completes the personal info step as a new customer.
func (fx *fixture) throughPersonal() {
	fx.flow.Submit(copyValues(personal))
	fx.transport.last().ok(map[string]any{"exists": false})
	fx.transport.last().ok(map[string]any{"customer_id": "cust-1", "created": true})
}

func (fx *fixture) throughAddress() {
	fx.throughPersonal()
	fx.flow.Submit(map[string]string{"service_type": "pickup_delivery"})
	fx.flow.Submit(copyValues(address))
	fx.transport.last().ok(map[string]any{"address_id": "addr-9", "pickup_dates": dates})
}

func copyValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
