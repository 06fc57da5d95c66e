package signup

import (
	"net/url"
	"strings"

	"github.com/mbolis/dcforms/engine"
)

var UTMParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

// UTMKey is the session storage key of a UTM parameter.
func UTMKey(param string) string {
	return "dcf_" + param
}

// CaptureUTM stores the UTM parameters of the landing URL so later steps can attach
// them to the submission. Parameters absent from the query keep their stored value.
func CaptureUTM(store engine.Storage, query url.Values) {
	for _, p := range UTMParams {
		if v := strings.TrimSpace(query.Get(p)); v != "" {
			store.Set(UTMKey(p), v)
		}
	}
}

func UTMValues(store engine.Storage) map[string]string {
	out := map[string]string{}
	for _, p := range UTMParams {
		if v, ok := store.Get(UTMKey(p)); ok && v != "" {
			out[p] = v
		}
	}
	return out
}
