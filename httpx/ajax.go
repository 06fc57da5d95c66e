package httpx

import (
	"errors"
	"mime"
	"net/http"
	"net/url"

	"github.com/ajg/form"
	"github.com/go-chi/render"
	"github.com/mbolis/dcforms/log"
)

// Envelope is the admin-ajax response shape: {success, data}.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Fields  any    `json:"fields,omitempty"`
}

func AjaxSuccess(w http.ResponseWriter, r *http.Request, data any) {
	render.JSON(w, r, Envelope{Success: true, Data: data})
}

// Will log err under code at the given level, and send {success:false, data:{message}}
// with the given HTTP status
func AjaxError(w http.ResponseWriter, r *http.Request, status int, level log.Level, code string, msg string, err error) {
	if err != nil {
		log.Logf(level, "%s: %s", code, err)
	} else {
		log.Log(level, code+":", msg)
	}
	render.Status(r, status)
	render.JSON(w, r, Envelope{Data: ErrorData{Message: msg}})
}

// AjaxErrorData is AjaxError with a caller-built payload.
func AjaxErrorData(w http.ResponseWriter, r *http.Request, status int, level log.Level, code string, data ErrorData) {
	log.Log(level, code+":", data.Message)
	render.Status(r, status)
	render.JSON(w, r, Envelope{Data: data})
}

var ErrUnsupportedMediaType = errors.New("unsupported content type")

// DecodeAjax fills v from a JSON body or from form-encoded values, the way admin-ajax
// requests arrive from both fetch() and jQuery.post().
func DecodeAjax(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	mt, _, _ := mime.ParseMediaType(ct)

	switch mt {
	case "application/json":
		return render.DecodeJSON(r.Body, v)
	case "", "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return err
		}
		return decodeValues(v, r.Form)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return err
		}
		return decodeValues(v, r.Form)
	}
	return ErrUnsupportedMediaType
}

// decodeValues ignores keys like action and nonce that have no field in v.
func decodeValues(v any, vs url.Values) error {
	dec := form.NewDecoder(nil)
	dec.IgnoreUnknownKeys(true)
	return dec.DecodeValues(v, vs)
}
