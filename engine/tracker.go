package engine

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mbolis/dcforms/log"
)

// HTTPTracker posts tracking events to the dcf_popup_action AJAX action. Events are
// sent in the background and failures are only logged.
type HTTPTracker struct {
	client  *http.Client
	ajaxURL string
	nonce   string
	pageURL string
	pending sync.WaitGroup
}

func NewHTTPTracker(client *http.Client, data *ClientData, pageURL string) *HTTPTracker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTracker{client: client, ajaxURL: data.AjaxURL, nonce: data.Nonce, pageURL: pageURL}
}

// trackAction maps an event to the dcf_popup_action sub-action.
func trackAction(event string) string {
	if event == EventDisplay {
		return "track_display"
	}
	return "track_interaction"
}

func (t *HTTPTracker) form(popupID int, event string) url.Values {
	return url.Values{
		"action":       {"dcf_popup_action"},
		"popup_action": {trackAction(event)},
		"popup_id":     {strconv.Itoa(popupID)},
		"event":        {event},
		"page_url":     {t.pageURL},
		"nonce":        {t.nonce},
	}
}

func (t *HTTPTracker) Track(popupID int, event string) {
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		if err := t.send(context.Background(), popupID, event); err != nil {
			log.Debugf("engine.track: popup %d %s: %s", popupID, event, err)
		}
	}()
}

// Wait blocks until every event tracked so far has been sent or has failed.
func (t *HTTPTracker) Wait() {
	t.pending.Wait()
}

func (t *HTTPTracker) send(ctx context.Context, popupID int, event string) error {
	body := t.form(popupID, event).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.ajaxURL, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{resp.StatusCode}
	}
	return nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "unexpected status " + strconv.Itoa(e.code) }
