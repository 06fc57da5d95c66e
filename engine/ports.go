// Package engine decides when popups are shown. It is the browser-side trigger
// scheduler expressed over small ports, so the same rules drive the headless visit
// of `dcforms simulate` and the tests.
package engine

import (
	"sync"
	"time"

	"github.com/mbolis/dcforms/model"
	"github.com/mbolis/dcforms/view"
)

type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Storage is a string key/value store with localStorage semantics.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// Display puts popups on screen and takes them off. Implementations must not call
// back into the Scheduler synchronously.
type Display interface {
	Show(p model.Popup)
	Hide(popupID int)
}

// CountdownDisplay is implemented by displays that show the auto-close countdown.
type CountdownDisplay interface {
	Countdown(popupID int, remaining int)
}

type Tracker interface {
	Track(popupID int, event string)
}

// Tracking events.
const (
	EventDisplay     = "display"
	EventInteraction = "interaction"
	EventClose       = "close"
	EventConversion  = "conversion"
)

// ClientData is the dcf_popup_data object injected into every page.
type ClientData struct {
	Popups   []model.Popup `json:"popups"`
	Markup   []view.Markup `json:"markup,omitempty"`
	AjaxURL  string        `json:"ajax_url"`
	Nonce    string        `json:"nonce"`
	IsMobile bool          `json:"is_mobile"`
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is backed by the time package.
var SystemClock Clock = systemClock{}

// MemoryStorage is a Storage kept in memory.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: map[string]string{}}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *MemoryStorage) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

type nopTracker struct{}

func (nopTracker) Track(int, string) {}
