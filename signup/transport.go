package signup

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// HTTPTransport posts flow requests to the admin-ajax endpoint. Each request runs in
// the background; its outcome is handed to deliver, which must run it on the event
// loop that drives the Flow.
type HTTPTransport struct {
	client  *http.Client
	ajaxURL string
	nonce   string
	deliver func(func())
}

func NewHTTPTransport(client *http.Client, ajaxURL, nonce string, deliver func(func())) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &HTTPTransport{client: client, ajaxURL: ajaxURL, nonce: nonce, deliver: deliver}
}

func (t *HTTPTransport) Send(req Request, done func(Response, error)) {
	go func() {
		resp, err := t.post(context.Background(), req)
		t.deliver(func() { done(resp, err) })
	}()
}

func (t *HTTPTransport) post(ctx context.Context, req Request) (Response, error) {
	form := url.Values{}
	for k, v := range req.Fields {
		form.Set(k, v)
	}
	form.Set("action", req.Action)
	form.Set("nonce", t.nonce)

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.ajaxURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Response{}, err
	}
	hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	hresp, err := t.client.Do(hreq)
	if err != nil {
		return Response{}, err
	}
	defer hresp.Body.Close()

	body, err := io.ReadAll(hresp.Body)
	if err != nil {
		return Response{}, err
	}

	// error envelopes come with 4xx statuses too
	var resp Response
	if err = json.Unmarshal(body, &resp); err != nil {
		return Response{}, errors.Wrapf(err, "%s: status %d", req.Action, hresp.StatusCode)
	}
	return resp, nil
}
