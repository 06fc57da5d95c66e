package routes

import (
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/app"
	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/log"
)

var reRefresh = regexp.MustCompile(`(?i)^refresh\s+(.*)`)

// tokenRequest replaces the body of r with a form-encoded grant for the bearer server.
func tokenRequest(r *http.Request, body url.Values) *http.Request {
	encoded := body.Encode()
	req := r.Clone(r.Context())
	req.Body = io.NopCloser(strings.NewReader(encoded))
	req.Form, req.PostForm = nil, nil
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	req.Header.Set("content-length", strconv.Itoa(len(encoded)))
	req.ContentLength = int64(len(encoded))
	return req
}

// issueTokens runs the grant and, on success, also stores the token pair in the
// cookies the editor pages authenticate with.
func issueTokens(app app.App, w http.ResponseWriter, req *http.Request) {
	resp := httpx.NewResponseBuffer()
	app.UserCredentials(resp, req)

	if resp.Status() == http.StatusOK {
		var tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int64  `json:"expires_in"`
		}
		if err := json.Unmarshal(resp.Body(), &tokens); err == nil {
			setTokenCookies(w, tokens.AccessToken, tokens.RefreshToken, int(tokens.ExpiresIn))
		} else {
			log.Warnf("login.parse_tokens: %s", err)
		}
	}
	resp.Flush(w)
}

func setTokenCookies(w http.ResponseWriter, access, refresh string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     "access_token",
		Value:    access,
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	refreshAge := 60 * 60 * 24 * 365
	if refresh == "" {
		refreshAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     "refresh_token",
		Value:    refresh,
		MaxAge:   refreshAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func Login(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "login.basic_auth")
			return
		}

		issueTokens(app, w, tokenRequest(r, url.Values{
			"grant_type": {"password"},
			"username":   {user},
			"password":   {pass},
		}))
	}
}

func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		match := reRefresh.FindStringSubmatch(r.Header.Get("authorization"))
		token := ""
		if len(match) > 0 {
			token = match[1]
		} else if c, err := r.Cookie("refresh_token"); err == nil {
			token = c.Value
		}
		if token == "" {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}

		issueTokens(app, w, tokenRequest(r, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {token},
		}))
	}
}

// Logout drops the editor cookies. Issued tokens stay valid until they expire.
func Logout(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{"access_token", "refresh_token"} {
		http.SetCookie(w, &http.Cookie{Path: "/", Name: name, Value: "", MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	}
	w.WriteHeader(http.StatusNoContent)
}
