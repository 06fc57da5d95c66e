package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/mbolis/dcforms/log"
	"github.com/mbolis/dcforms/model"
)

const (
	defaultScrollThrottle = 100 * time.Millisecond
	// A downward swipe longer than this, started this close to the top, is an exit intent.
	exitSwipeDistance = 50
	exitSwipeTopZone  = 50
)

type Options struct {
	// Preview shows popups regardless of the stored session, which is cleared and never saved.
	Preview bool
	// Mobile is ORed with ClientData.IsMobile.
	Mobile bool
	// PageURL is matched against the include and exclude targeting rules.
	PageURL string
	// SessionTTL bounds how long a stored session is reused; zero never expires.
	SessionTTL     time.Duration
	ScrollThrottle time.Duration
}

type Ports struct {
	Clock   Clock
	Storage Storage
	Display Display
	Tracker Tracker
}

type entry struct {
	popup     model.Popup
	state     State
	timer     Timer
	autoClose Timer
	remaining int
}

type scrollSample struct {
	top, docHeight, winHeight float64
}

// Scheduler evaluates the triggers of every popup on a page. All methods are safe
// to call from timer callbacks and event handlers concurrently.
type Scheduler struct {
	mu      sync.Mutex
	ports   Ports
	opts    Options
	session *Session
	mobile  bool

	popups map[int]*entry
	order  []int
	active []int

	exitIntentFired bool
	touchStartY     float64
	touchTracking   bool

	lastScroll    time.Time
	pendingScroll *scrollSample
	scrollTimer   Timer
}

func New(ports Ports, opts Options) *Scheduler {
	if ports.Clock == nil {
		ports.Clock = SystemClock
	}
	if ports.Storage == nil {
		ports.Storage = NewMemoryStorage()
	}
	if ports.Tracker == nil {
		ports.Tracker = nopTracker{}
	}
	if opts.ScrollThrottle <= 0 {
		opts.ScrollThrottle = defaultScrollThrottle
	}
	return &Scheduler{ports: ports, opts: opts, popups: map[int]*entry{}}
}

// Init loads the session and arms the trigger of every eligible popup. A nil data
// means the page carries no popup configuration: Init does nothing and returns false.
func (s *Scheduler) Init(data *ClientData) bool {
	if data == nil || s.ports.Display == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.ports.Clock.Now()
	s.session = LoadSession(s.ports.Storage, now, s.opts.SessionTTL, s.opts.Preview)
	s.mobile = data.IsMobile || s.opts.Mobile

	for _, p := range data.Popups {
		if _, dup := s.popups[p.ID]; dup {
			continue
		}
		if !s.eligible(p) {
			continue
		}
		s.popups[p.ID] = &entry{popup: p, state: Pending}
		s.order = append(s.order, p.ID)
	}
	for _, id := range s.order {
		s.arm(s.popups[id], now)
	}
	return true
}

func (s *Scheduler) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Scheduler) eligible(p model.Popup) bool {
	preview := s.session.Preview()
	if !preview && p.Status != "" && p.Status != "active" {
		return false
	}
	if !preview && s.session.Shown(p.ID) {
		return false
	}
	if s.mobile && !p.Triggers.IsMobileEnabled() {
		return false
	}

	t := p.Targeting
	if len(t.Devices) > 0 {
		want := "desktop"
		if s.mobile {
			want = "mobile"
		}
		if !containsFold(t.Devices, want) {
			return false
		}
	}
	if len(t.IncludeURLs) > 0 && !matchesAny(s.opts.PageURL, t.IncludeURLs) {
		return false
	}
	if matchesAny(s.opts.PageURL, t.ExcludeURLs) {
		return false
	}
	if !preview && t.MaxDisplays > 0 && s.session.DisplayCount(p.ID) >= t.MaxDisplays {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(strings.TrimSpace(x), v) {
			return true
		}
	}
	return false
}

func matchesAny(url string, patterns []string) bool {
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" && strings.Contains(url, p) {
			return true
		}
	}
	return false
}

func seconds(n float64) time.Duration {
	return time.Duration(n * float64(time.Second))
}

// arm starts the timers of time-based triggers and fires those already satisfied.
// Event-based triggers wait for their event. Caller holds s.mu.
func (s *Scheduler) arm(e *entry, now time.Time) {
	id := e.popup.ID
	t := e.popup.Triggers

	switch t.Type {
	case model.TriggerTimeDelay:
		e.timer = s.ports.Clock.AfterFunc(seconds(float64(t.Delay)), func() { s.Trigger(id) })

	case model.TriggerPageViews:
		if s.session.PageViews() >= t.Count {
			s.fire(e, 0)
		}

	case model.TriggerSessionTime:
		threshold := seconds(t.Minutes * 60)
		elapsed := s.session.Elapsed(now)
		if elapsed >= threshold {
			s.fire(e, 0)
		} else {
			e.timer = s.ports.Clock.AfterFunc(threshold-elapsed, func() { s.Trigger(id) })
		}

	case model.TriggerScrollPercentage, model.TriggerExitIntent, model.TriggerClick:

	default:
		log.Debugf("engine.arm: popup %d has unknown trigger %q", id, t.Type)
	}
}

// Trigger fires the trigger of a pending popup.
func (s *Scheduler) Trigger(popupID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.popups[popupID]; ok {
		s.fire(e, 0)
	}
}

// fire moves a pending popup to Triggered and shows it after delay. Any later fire is
// ignored, which makes every trigger one-shot. Caller holds s.mu.
func (s *Scheduler) fire(e *entry, delay time.Duration) {
	if transition(e.state, Triggered) != nil {
		return
	}
	e.state = Triggered
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if delay > 0 {
		id := e.popup.ID
		e.timer = s.ports.Clock.AfterFunc(delay, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.show(s.popups[id])
		})
		return
	}
	s.show(e)
}

// ShowPopup displays a popup immediately. Showing a popup already shown in this
// session is a no-op unless in preview mode.
func (s *Scheduler) ShowPopup(popupID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.popups[popupID]
	if !ok {
		return false
	}
	if e.state == Pending {
		e.state = Triggered
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	return s.show(e)
}

// show records the popup as active and shown before handing it to the display, so a
// second trigger in the same tick sees it already shown. Caller holds s.mu.
func (s *Scheduler) show(e *entry) bool {
	if e == nil {
		return false
	}
	id := e.popup.ID
	if s.isActive(id) {
		return false
	}
	if s.session.Shown(id) && !s.session.Preview() {
		return false
	}
	if err := transition(e.state, Shown); err != nil {
		return false
	}

	e.state = Shown
	s.active = append(s.active, id)
	s.session.MarkShown(id)

	s.ports.Display.Show(e.popup)
	s.ports.Tracker.Track(id, EventDisplay)

	if c := e.popup.Config; c.AutoClose && c.AutoCloseDelay > 0 {
		e.remaining = c.AutoCloseDelay
		s.tick(e)
	}
	return true
}

// tick runs the auto-close countdown one second at a time. Caller holds s.mu.
func (s *Scheduler) tick(e *entry) {
	id := e.popup.ID
	if cd, ok := s.ports.Display.(CountdownDisplay); ok {
		cd.Countdown(id, e.remaining)
	}
	e.autoClose = s.ports.Clock.AfterFunc(time.Second, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if e.state != Shown {
			return
		}
		e.remaining--
		if e.remaining <= 0 {
			s.finish(e, Closed, EventClose)
			return
		}
		s.tick(e)
	})
}

func (s *Scheduler) isActive(id int) bool {
	for _, a := range s.active {
		if a == id {
			return true
		}
	}
	return false
}

// Active returns the ids of the popups currently on screen, in display order.
func (s *Scheduler) Active() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.active...)
}

func (s *Scheduler) State(popupID int) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.popups[popupID]
	if !ok {
		return Pending, false
	}
	return e.state, true
}

// Close hides a shown popup and cancels its countdown.
func (s *Scheduler) Close(popupID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.popups[popupID]
	if !ok {
		return false
	}
	return s.finish(e, Closed, EventClose)
}

// Convert is Close for a popup whose form was submitted.
func (s *Scheduler) Convert(popupID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.popups[popupID]
	if !ok {
		return false
	}
	return s.finish(e, Converted, EventConversion)
}

// Interact records a click inside a shown popup.
func (s *Scheduler) Interact(popupID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.popups[popupID]; ok && e.state == Shown {
		s.ports.Tracker.Track(popupID, EventInteraction)
	}
}

// Caller holds s.mu.
func (s *Scheduler) finish(e *entry, to State, event string) bool {
	if transition(e.state, to) != nil {
		return false
	}
	e.state = to
	if e.autoClose != nil {
		e.autoClose.Stop()
		e.autoClose = nil
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	id := e.popup.ID
	for i, a := range s.active {
		if a == id {
			s.active = append(s.active[:i], s.active[i+1:]...)
			break
		}
	}
	s.ports.Display.Hide(id)
	s.ports.Tracker.Track(id, event)
	return true
}

// Scroll feeds a scroll position. Evaluation is throttled: samples arriving within the
// throttle window are coalesced and the latest one is evaluated when the window ends.
func (s *Scheduler) Scroll(top, docHeight, winHeight float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}

	sample := &scrollSample{top, docHeight, winHeight}
	now := s.ports.Clock.Now()
	wait := s.opts.ScrollThrottle - now.Sub(s.lastScroll)
	if s.lastScroll.IsZero() || wait <= 0 {
		s.lastScroll = now
		s.evaluateScroll(sample)
		return
	}

	s.pendingScroll = sample
	if s.scrollTimer == nil {
		s.scrollTimer = s.ports.Clock.AfterFunc(wait, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.scrollTimer = nil
			if p := s.pendingScroll; p != nil {
				s.pendingScroll = nil
				s.lastScroll = s.ports.Clock.Now()
				s.evaluateScroll(p)
			}
		})
	}
}

// ScrollPercent is scrollTop / (docHeight - winHeight) * 100, clamped to [0, 100].
// A page that cannot scroll counts as fully scrolled.
func ScrollPercent(top, docHeight, winHeight float64) float64 {
	scrollable := docHeight - winHeight
	if scrollable <= 0 {
		return 100
	}
	pct := top / scrollable * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// Caller holds s.mu.
func (s *Scheduler) evaluateScroll(p *scrollSample) {
	pct := ScrollPercent(p.top, p.docHeight, p.winHeight)
	for _, id := range s.order {
		e := s.popups[id]
		if e.popup.Triggers.Type == model.TriggerScrollPercentage && e.state == Pending && pct >= float64(e.popup.Triggers.Percentage) {
			s.fire(e, 0)
		}
	}
}

// MouseLeave reports the pointer leaving the document; clientY <= 0 means it left
// through the top edge.
func (s *Scheduler) MouseLeave(clientY float64) {
	if clientY > 0 {
		return
	}
	s.exitIntent()
}

func (s *Scheduler) TouchStart(y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchStartY = y
	s.touchTracking = y <= exitSwipeTopZone
}

func (s *Scheduler) TouchMove(y float64) {
	s.mu.Lock()
	tracking := s.touchTracking && y-s.touchStartY > exitSwipeDistance
	if tracking {
		s.touchTracking = false
	}
	s.mu.Unlock()

	if tracking {
		s.exitIntent()
	}
}

// exitIntent fires every pending exit-intent popup, at most once per page.
func (s *Scheduler) exitIntent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.exitIntentFired {
		return
	}
	s.exitIntentFired = true

	for _, id := range s.order {
		e := s.popups[id]
		t := e.popup.Triggers
		if t.Type != model.TriggerExitIntent {
			continue
		}
		if s.mobile && !t.IsMobileEnabled() {
			continue
		}
		s.fire(e, seconds(float64(t.ExitDelay)))
	}
}

// Click reports a click on an element matching selector. It returns true when a
// click trigger consumed it, in which case the default action should be prevented.
func (s *Scheduler) Click(selector string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	handled := false
	for _, id := range s.order {
		e := s.popups[id]
		t := e.popup.Triggers
		if t.Type == model.TriggerClick && t.Selector != "" && t.Selector == selector {
			handled = true
			s.fire(e, 0)
		}
	}
	return handled
}

// Stop cancels every pending timer, as on page unload.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.popups {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		if e.autoClose != nil {
			e.autoClose.Stop()
			e.autoClose = nil
		}
	}
	if s.scrollTimer != nil {
		s.scrollTimer.Stop()
		s.scrollTimer = nil
	}
}
