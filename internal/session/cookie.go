// Package session issues and reads the browser session cookie.
//
// The gateway keeps no server-side session state: the cookie value is the
// upstream bearer token itself, held in an HttpOnly cookie so page scripts
// can never read it. Expiry is enforced by the cookie lifetime and,
// ultimately, by the upstream rejecting a stale token.
package session

import (
	"errors"
	"net/http"
	"time"
)

// ErrNoSession is returned by Read when the request carries no session cookie.
var ErrNoSession = errors.New("session: no cookie")

// Codec issues, reads, and revokes the session cookie.
type Codec struct {
	// Name is the cookie name.
	Name string
	// TTL is the cookie lifetime from the moment it is issued.
	TTL time.Duration
	// Secure marks the cookie HTTPS-only. Off in development so the SPA
	// dev server can talk to the gateway over plain HTTP.
	Secure bool
}

// NewCodec builds a Codec, applying defaults for zero fields.
func NewCodec(name string, ttl time.Duration, secure bool) *Codec {
	if name == "" {
		name = "incident_session"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Codec{Name: name, TTL: ttl, Secure: secure}
}

// Issue sets the session cookie carrying the upstream token.
func (c *Codec) Issue(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		Expires:  time.Now().Add(c.TTL),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read extracts the upstream token from the request's session cookie.
// It returns ErrNoSession when the cookie is absent or empty.
func (c *Codec) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSession
	}
	return cookie.Value, nil
}

// Revoke instructs the browser to drop the session cookie. Attributes must
// match Issue for the browser to treat it as the same cookie.
func (c *Codec) Revoke(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
