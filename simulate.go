package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/engine"
	"github.com/mbolis/dcforms/model"
	"github.com/mbolis/dcforms/signup"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const mobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148"

type simulation struct {
	page     string
	mobile   bool
	duration time.Duration
	scroll   float64
	scrollAt time.Duration
	exit     bool
	track    bool

	fields    map[string]string
	formID    int
	payment   bool
	amount    int64
	stepLimit time.Duration

	client *http.Client
}

func simulateCmd() *cobra.Command {
	sim := simulation{}
	cmd := &cobra.Command{
		Use:   "simulate <site-url>",
		Short: "Replay a visit against a running site",
		Long: `Loads the popup configuration a page would get, runs the popup triggers over
a virtual clock and prints what a visitor would see. With --field, it then goes
through the signup steps with those values, calling the site's AJAX actions.`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationClientOnly: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return sim.run(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&sim.page, "page", "/", "path and query of the visited page")
	f.BoolVar(&sim.mobile, "mobile", false, "visit with a mobile user agent")
	f.DurationVar(&sim.duration, "duration", 30*time.Second, "virtual time spent on the page")
	f.Float64Var(&sim.scroll, "scroll", 0, "scroll depth in percent reached during the visit")
	f.DurationVar(&sim.scrollAt, "scroll-at", 5*time.Second, "when the visitor scrolls")
	f.BoolVar(&sim.exit, "exit", false, "leave the page at the end of the visit")
	f.BoolVar(&sim.track, "track", false, "send tracking events to the site")
	f.StringToStringVar(&sim.fields, "field", nil, "signup field values, e.g. --field email=ada@example.com")
	f.IntVar(&sim.formID, "form", 0, "form id sent with signup requests")
	f.BoolVar(&sim.payment, "payment", false, "require the payment step after scheduling")
	f.Int64Var(&sim.amount, "amount", 0, "payment amount in cents")
	f.DurationVar(&sim.stepLimit, "step-timeout", 90*time.Second, "how long to wait for each signup request")
	return cmd
}

func (sim *simulation) run(ctx context.Context, out io.Writer, site string) error {
	if sim.client == nil {
		sim.client = &http.Client{Timeout: 30 * time.Second}
	}

	base, err := url.Parse(site)
	if err != nil {
		return errors.Wrap(err, "site url")
	}
	page, err := base.Parse(sim.page)
	if err != nil {
		return errors.Wrap(err, "page")
	}

	data, err := sim.fetchClientData(ctx, base)
	if err != nil {
		return err
	}

	clock := engine.NewManualClock(time.Now())
	store := engine.NewMemoryStorage()
	screen := &visitor{out: out, clock: clock, start: clock.Now()}

	ports := engine.Ports{Clock: clock, Storage: store, Display: screen}
	var tracker *engine.HTTPTracker
	if sim.track {
		tracker = engine.NewHTTPTracker(sim.client, data, page.String())
		ports.Tracker = tracker
	}

	scheduler := engine.New(ports, engine.Options{Mobile: sim.mobile, PageURL: page.String()})
	if !scheduler.Init(data) {
		return errors.New("page carries no popup configuration")
	}
	defer func() {
		scheduler.Stop()
		if tracker != nil {
			tracker.Wait()
		}
	}()
	fmt.Fprintf(out, "%s: %d active popup(s)\n", page, len(data.Popups))

	sim.visit(scheduler, clock)

	if len(sim.fields) > 0 {
		signup.CaptureUTM(store, page.Query())
		if err = sim.signup(ctx, out, data, clock, store); err != nil {
			return err
		}
		if len(screen.shown) > 0 {
			scheduler.Convert(screen.shown[0])
		}
	}

	for _, p := range data.Popups {
		state, ok := scheduler.State(p.ID)
		if !ok {
			fmt.Fprintf(out, "popup %d %q: not eligible\n", p.ID, p.Name)
			continue
		}
		fmt.Fprintf(out, "popup %d %q: %s\n", p.ID, p.Name, state)
	}
	return nil
}

func (sim *simulation) fetchClientData(ctx context.Context, base *url.URL) (*engine.ClientData, error) {
	src, err := base.Parse("/dcf/popup-data.js")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), nil)
	if err != nil {
		return nil, err
	}
	if sim.mobile {
		req.Header.Set("User-Agent", mobileUserAgent)
	}

	resp, err := sim.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "popup data")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("popup data: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "popup data")
	}

	script := strings.TrimSpace(string(body))
	script = strings.TrimPrefix(script, "window.dcf_popup_data =")
	script = strings.TrimSuffix(script, ";")

	data := &engine.ClientData{}
	if err = json.Unmarshal([]byte(script), data); err != nil {
		return nil, errors.Wrap(err, "popup data")
	}

	ajax, err := base.Parse(data.AjaxURL)
	if err != nil {
		return nil, errors.Wrap(err, "ajax url")
	}
	data.AjaxURL = ajax.String()
	return data, nil
}

// visit plays the page timeline: time on page, an optional scroll, an optional exit.
func (sim *simulation) visit(s *engine.Scheduler, clock *engine.ManualClock) {
	scrollAt := sim.scrollAt
	if scrollAt > sim.duration {
		scrollAt = sim.duration
	}
	clock.Advance(scrollAt)
	if sim.scroll > 0 {
		const docHeight, winHeight = 10000, 1000
		s.Scroll(sim.scroll/100*(docHeight-winHeight), docHeight, winHeight)
	}
	clock.Advance(sim.duration - scrollAt)

	if sim.exit {
		if sim.mobile {
			s.TouchStart(10)
			s.TouchMove(400)
		} else {
			s.MouseLeave(0)
		}
		// let delayed exit popups come up
		clock.Advance(time.Minute)
	}
}

func (sim *simulation) signup(ctx context.Context, out io.Writer, data *engine.ClientData, clock engine.Clock, store engine.Storage) error {
	loop := make(chan func(), 1)
	transport := signup.NewHTTPTransport(sim.client, data.AjaxURL, data.Nonce, func(f func()) { loop <- f })
	form := &signupView{out: out}

	flow := signup.NewFlow(signup.Config{
		FormID:          sim.formID,
		PaymentRequired: sim.payment,
		AmountCents:     sim.amount,
	}, transport, form, clock, store)
	defer flow.Close()
	flow.Start()

	for flow.Step() != signup.Complete {
		step := flow.Step()
		if step == signup.PickupScheduling {
			if err := form.pickFirstSlot(flow); err != nil {
				return err
			}
		}

		values := make(map[string]string, len(sim.fields))
		for k, v := range sim.fields {
			values[k] = v
		}
		if err := flow.Submit(values); err != nil {
			return errors.Wrapf(err, "signup %s", step)
		}

		wait, cancel := context.WithTimeout(ctx, sim.stepLimit)
		for flow.Submitting() {
			select {
			case f := <-loop:
				f()
			case <-wait.Done():
				cancel()
				return errors.Wrapf(wait.Err(), "signup %s", step)
			}
		}
		cancel()

		if form.err != "" {
			return errors.Errorf("signup %s: %s", step, form.err)
		}
		if flow.Step() == step {
			return errors.Errorf("signup %s: step did not advance", step)
		}
	}
	return nil
}

// visitor prints what the page shows, stamped with the virtual time on page.
type visitor struct {
	out   io.Writer
	clock engine.Clock
	start time.Time
	shown []int
}

func (v *visitor) at() string {
	return fmt.Sprintf("%7s", v.clock.Now().Sub(v.start).Round(100*time.Millisecond))
}

func (v *visitor) Show(p model.Popup) {
	v.shown = append(v.shown, p.ID)
	fmt.Fprintf(v.out, "%s  show popup %d %q (%s, %s)\n", v.at(), p.ID, p.Name, p.Type, p.Triggers.Type)
}

func (v *visitor) Hide(popupID int) {
	fmt.Fprintf(v.out, "%s  hide popup %d\n", v.at(), popupID)
}

func (v *visitor) Countdown(popupID int, remaining int) {
	fmt.Fprintf(v.out, "%s  popup %d closes in %ds\n", v.at(), popupID, remaining)
}

type signupView struct {
	out   io.Writer
	err   string
	dates []model.DateAvailability
	slots []model.TimeSlot
}

func (v *signupView) pickFirstSlot(flow *signup.Flow) error {
	for _, d := range v.dates {
		if len(d.TimeSlots) == 0 {
			continue
		}
		flow.SelectDate(d.ID)
		flow.SelectTimeSlot(v.slots[0].ID)
		fmt.Fprintf(v.out, "  pickup %s %s\n", d.Date, v.slots[0].Label)
		return nil
	}
	return errors.New("signup: no pickup slot available")
}

func (v *signupView) ShowStep(step signup.Step) {
	v.err = ""
	fmt.Fprintf(v.out, "signup: %s\n", step)
}

func (v *signupView) SetBusy(bool) {}

func (v *signupView) FieldErrors(errs map[string]string) {
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fmt.Fprintf(v.out, "  %s: %s\n", f, errs[f])
	}
}

func (v *signupView) Error(message string) {
	v.err = message
}

func (v *signupView) ShowDates(dates []model.DateAvailability) { v.dates = dates }

func (v *signupView) ShowTimeSlots(slots []model.TimeSlot) { v.slots = slots }

func (v *signupView) EnableSchedule(bool) {}

func (v *signupView) Complete(c signup.Completion) {
	fmt.Fprintf(v.out, "  %s\n", c.Message)
	if c.Appointment != nil {
		fmt.Fprintf(v.out, "  appointment %s\n", c.Appointment.ID)
	}
	if c.Payment != nil {
		fmt.Fprintf(v.out, "  payment %s %s ending %s\n", c.Payment.ID, c.Payment.Status, c.Payment.Last4)
	}
}

func (v *signupView) Countdown(int) {}

func (v *signupView) Redirect(url string) {
	fmt.Fprintf(v.out, "  redirect to %s\n", url)
}
