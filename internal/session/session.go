// Package session persists console sessions: the browser-facing token, the
// backend cookies obtained at login and the page the user last viewed.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("session: store closed")

// Cookie is a backend cookie kept with the session.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is what a store keeps per session.
type Record struct {
	Token     string    `json:"token"`
	Cookies   []Cookie  `json:"cookies"`
	Page      string    `json:"page"`
	CreatedAt time.Time `json:"created_at"`
}

// HTTPCookies converts the stored cookies for a cookie jar.
func (r *Record) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(r.Cookies))
	for _, c := range r.Cookies {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// FromHTTPCookies converts jar cookies for storage.
func FromHTTPCookies(cookies []*http.Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// Store persists session records. Load returns (nil, nil) for an unknown or
// expired token.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Load(ctx context.Context, token string) (*Record, error)
	Delete(ctx context.Context, token string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// NewToken returns a random 32-byte hex session token.
func NewToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
