package routes

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/render"
	json "github.com/goccy/go-json"
)

var errMissingDocument = errors.New("missing document")

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// actionName reads the admin-ajax action from the query, the form body, or a JSON
// body. A JSON body is restored so handlers can decode it again.
func actionName(r *http.Request) string {
	if a := r.URL.Query().Get("action"); a != "" {
		return a
	}
	if !isJSON(r) {
		return r.FormValue("action")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var head struct {
		Action string `json:"action"`
	}
	json.Unmarshal(body, &head)
	return head.Action
}

// document is an editor payload: a JSON body, or form values some of which hold
// JSON text (jQuery.post with JSON.stringify'd objects).
type document struct {
	members map[string]json.RawMessage
	r       *http.Request
}

func readDocument(r *http.Request) (document, error) {
	d := document{r: r}
	if isJSON(r) {
		if err := render.DecodeJSON(r.Body, &d.members); err != nil {
			return d, err
		}
		return d, nil
	}
	return d, r.ParseForm()
}

// Decode unmarshals the JSON value posted under key into v.
func (d document) Decode(key string, v any) error {
	var raw []byte
	if d.members != nil {
		raw = d.members[key]
	} else if s := d.r.FormValue(key); s != "" {
		raw = []byte(s)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return errMissingDocument
	}
	return json.Unmarshal(raw, v)
}

func (d document) String(key string) string {
	if d.members == nil {
		return d.r.FormValue(key)
	}
	var s string
	if json.Unmarshal(d.members[key], &s) != nil {
		return ""
	}
	return s
}
