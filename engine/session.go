package engine

import (
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/log"
)

// SessionKey is the storage key of the persisted session.
const SessionKey = "dcf_popup_session"

type sessionState struct {
	PageViews          int         `json:"pageViews"`
	SessionStartTime   int64       `json:"sessionStartTime"` // unix milliseconds
	PopupsShown        []int       `json:"popupsShown"`
	PopupDisplayCounts map[int]int `json:"popupDisplayCounts"`
}

// Session is the visitor state shared by every popup on the page. In preview mode it
// is never read from nor written to storage.
type Session struct {
	state   sessionState
	shown   map[int]bool
	store   Storage
	preview bool
}

// LoadSession reads the stored session and counts the current page view. A session
// older than ttl starts over, keeping only the display counts; ttl <= 0 never expires.
// Preview mode clears the stored session and starts from scratch.
func LoadSession(store Storage, now time.Time, ttl time.Duration, preview bool) *Session {
	s := &Session{store: store, preview: preview, shown: map[int]bool{}}
	fresh := sessionState{SessionStartTime: now.UnixMilli(), PopupDisplayCounts: map[int]int{}}

	if preview {
		store.Remove(SessionKey)
		s.state = fresh
		s.state.PageViews = 1
		return s
	}

	s.state = fresh
	if raw, ok := store.Get(SessionKey); ok && raw != "" {
		var stored sessionState
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			log.Debugf("engine.session: discarding unreadable session: %s", err)
		} else if ttl > 0 && now.Sub(time.UnixMilli(stored.SessionStartTime)) > ttl {
			if stored.PopupDisplayCounts != nil {
				s.state.PopupDisplayCounts = stored.PopupDisplayCounts
			}
		} else {
			s.state = stored
			if s.state.PopupDisplayCounts == nil {
				s.state.PopupDisplayCounts = map[int]int{}
			}
		}
	}
	for _, id := range s.state.PopupsShown {
		s.shown[id] = true
	}

	s.state.PageViews++
	s.save()
	return s
}

func (s *Session) save() {
	if s.preview {
		return
	}
	ids := make([]int, 0, len(s.shown))
	for id := range s.shown {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	s.state.PopupsShown = ids

	raw, err := json.Marshal(s.state)
	if err != nil {
		log.Warnf("engine.session: %s", err)
		return
	}
	s.store.Set(SessionKey, string(raw))
}

func (s *Session) Preview() bool { return s.preview }

func (s *Session) PageViews() int { return s.state.PageViews }

func (s *Session) StartTime() time.Time { return time.UnixMilli(s.state.SessionStartTime) }

func (s *Session) Elapsed(now time.Time) time.Duration { return now.Sub(s.StartTime()) }

// Shown reports whether the popup was already shown in this session.
func (s *Session) Shown(popupID int) bool { return s.shown[popupID] }

func (s *Session) DisplayCount(popupID int) int { return s.state.PopupDisplayCounts[popupID] }

// MarkShown records a display and persists the session.
func (s *Session) MarkShown(popupID int) {
	s.shown[popupID] = true
	s.state.PopupDisplayCounts[popupID]++
	s.save()
}
