package pos

import (
	"context"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/log"
)

// Outcome tags written to the integration log.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
	OutcomeSkipped  = "skipped"
)

// Entry is one audited adapter call. Request and Response are already redacted.
type Entry struct {
	Vendor    string
	Operation string
	Request   any
	Response  any
	Error     string
	Outcome   string
	Duration  time.Duration
	Time      time.Time
}

// CallLogger persists the integration audit trail.
type CallLogger interface {
	LogCall(ctx context.Context, e Entry) error
}

type nopLogger struct{}

func (nopLogger) LogCall(context.Context, Entry) error { return nil }

// NopLogger discards entries.
var NopLogger CallLogger = nopLogger{}

type recorder struct {
	vendor string
	log    CallLogger
	now    func() time.Time
}

func newRecorder(vendor string, log CallLogger) recorder {
	if log == nil {
		log = NopLogger
	}
	return recorder{vendor: vendor, log: log, now: time.Now}
}

// record writes an entry for op. A failure to write the log never fails the call.
func (r recorder) record(ctx context.Context, op string, start time.Time, req, resp any, err error) {
	e := Entry{
		Vendor:    r.vendor,
		Operation: op,
		Request:   Redact(req),
		Response:  Redact(resp),
		Outcome:   OutcomeSuccess,
		Time:      start,
		Duration:  r.now().Sub(start),
	}
	if err != nil {
		e.Error = err.Error()
		e.Outcome = OutcomeError
	}
	if lr, ok := resp.(LookupResult); ok && err == nil && !lr.Exists {
		e.Outcome = OutcomeNotFound
	}
	log.WithFields(log.Fields{
		"vendor":   e.Vendor,
		"op":       e.Operation,
		"outcome":  e.Outcome,
		"duration": e.Duration,
	}).Debug("pos call")
	if lerr := r.log.LogCall(ctx, e); lerr != nil {
		log.Warnf("pos.integration_log.%s: %s", op, lerr)
	}
}

func (r recorder) skipped(ctx context.Context, op string, req any, reason string) {
	r.log.LogCall(ctx, Entry{
		Vendor:    r.vendor,
		Operation: op,
		Request:   Redact(req),
		Error:     reason,
		Outcome:   OutcomeSkipped,
		Time:      r.now(),
	})
}

var secretKeys = map[string]bool{
	"apikey":        true,
	"api_key":       true,
	"authorization": true,
	"password":      true,
	"license_key":   true,
	"licensekey":    true,
	"token":         true,
	"api_token":     true,
	"cvv":           true,
	"cvc":           true,
}

var panKeys = map[string]bool{
	"card_number": true,
	"cardnumber":  true,
	"number":      true,
	"pan":         true,
}

// Redact returns a JSON-shaped copy of v with secrets replaced and card numbers reduced
// to their last four digits.
func Redact(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "<unserializable>"
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "<unserializable>"
	}
	return redactValue("", generic)
}

func redactValue(key string, v any) any {
	k := strings.ToLower(key)
	switch t := v.(type) {
	case map[string]any:
		for mk, mv := range t {
			t[mk] = redactValue(mk, mv)
		}
		return t
	case []any:
		for i := range t {
			t[i] = redactValue(key, t[i])
		}
		return t
	case string:
		if secretKeys[k] && t != "" {
			return "[redacted]"
		}
		if panKeys[k] && len(DigitsOnly(t)) >= 12 {
			return "****" + Last4(t)
		}
	}
	return v
}
