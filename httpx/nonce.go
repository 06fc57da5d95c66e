package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
)

// Nonce scopes.
const (
	NoncePublic = "dcf_public"
	NonceAdmin  = "dcf_admin"
)

var ErrInvalidNonce = errors.New("invalid or expired nonce")

// NonceIssuer signs short-lived, scope-bound tokens that stand in for WordPress nonces.
type NonceIssuer struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
}

func NewNonceIssuer(secret string, ttl time.Duration) *NonceIssuer {
	return &NonceIssuer{
		auth: jwtauth.New("HS256", []byte(secret), nil),
		ttl:  ttl,
	}
}

func (n *NonceIssuer) Issue(scope string) (string, error) {
	claims := map[string]interface{}{"scope": scope}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, n.ttl)
	_, token, err := n.auth.Encode(claims)
	return token, err
}

// Verify accepts a token issued for scope. Admin nonces are accepted for public scope.
func (n *NonceIssuer) Verify(token, scope string) error {
	if token == "" {
		return ErrInvalidNonce
	}
	t, err := jwtauth.VerifyToken(n.auth, token)
	if err != nil {
		return ErrInvalidNonce
	}
	got, _ := t.Get("scope")
	s, _ := got.(string)
	if s == scope || (scope == NoncePublic && s == NonceAdmin) {
		return nil
	}
	return ErrInvalidNonce
}

// NonceFromRequest looks for the nonce in the X-WP-Nonce header, then in the
// `nonce` and `_ajax_nonce` request values.
func NonceFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-WP-Nonce"); v != "" {
		return v
	}
	if v := r.FormValue("nonce"); v != "" {
		return v
	}
	return r.FormValue("_ajax_nonce")
}
