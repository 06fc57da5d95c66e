package engine

import (
	"time"

	"github.com/mbolis/dcforms/model"
)

type fakeClock = ManualClock

func newFakeClock() *fakeClock {
	return NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
}

type fakeDisplay struct {
	shown      []int
	hidden     []int
	countdowns map[int][]int
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{countdowns: map[int][]int{}}
}

func (d *fakeDisplay) Show(p model.Popup) { d.shown = append(d.shown, p.ID) }

func (d *fakeDisplay) Hide(id int) { d.hidden = append(d.hidden, id) }

func (d *fakeDisplay) Countdown(id, remaining int) {
	d.countdowns[id] = append(d.countdowns[id], remaining)
}

type trackedEvent struct {
	PopupID int
	Event   string
}

type fakeTracker struct {
	events []trackedEvent
}

func (t *fakeTracker) Track(id int, event string) {
	t.events = append(t.events, trackedEvent{id, event})
}

type harness struct {
	clock   *fakeClock
	store   *MemoryStorage
	display *fakeDisplay
	tracker *fakeTracker
}

func newHarness() *harness {
	return &harness{
		clock:   newFakeClock(),
		store:   NewMemoryStorage(),
		display: newFakeDisplay(),
		tracker: &fakeTracker{},
	}
}

func (h *harness) scheduler(opts Options, popups ...model.Popup) *Scheduler {
	return h.schedulerData(opts, &ClientData{Popups: popups})
}

func (h *harness) schedulerData(opts Options, data *ClientData) *Scheduler {
	s := New(Ports{Clock: h.clock, Storage: h.store, Display: h.display, Tracker: h.tracker}, opts)
	s.Init(data)
	return s
}

func popup(id int, trigger model.TriggerSettings) model.Popup {
	return model.Popup{ID: id, Type: model.PopupModal, Status: "active", Triggers: trigger}
}

func boolPtr(b bool) *bool { return &b }
