// Package session identifies storefront clients across requests.
//
// Clients carry their session in the Storefront-Session header, an RFC 8941
// dictionary with an id member:
//
//	Storefront-Session: id="0b8f6c1e-5d1f-4c43-a1a4-2c9f1a7e5b10"
//
// Requests without a valid header are assigned a fresh id, which is echoed
// back on the response so the client can reuse it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dunglas/httpsfv"
	"github.com/google/uuid"
)

// Header is the request and response header carrying the session id.
const Header = "Storefront-Session"

type contextKey struct{}

// NewID returns a random session id.
func NewID() string {
	return uuid.NewString()
}

// Valid reports whether id is a well-formed session id.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ParseHeader extracts the session id from a Storefront-Session header value.
//
// Examples:
//   - id="0b8f6c1e-..."          → 0b8f6c1e-...
//   - id="0b8f6c1e-...";ttl=3600 → 0b8f6c1e-... (params ignored)
//
// Returns error if header is empty, malformed, missing the id key, or the id
// is not a UUID.
func ParseHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("empty Storefront-Session header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return "", fmt.Errorf("invalid Storefront-Session header: %w", err)
	}

	member, ok := dict.Get("id")
	if !ok {
		return "", errors.New("id key not found in Storefront-Session header")
	}

	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", errors.New("id value must be an item")
	}

	id, ok := item.Value.(string)
	if !ok {
		return "", errors.New("id value must be a string")
	}
	if !Valid(id) {
		return "", fmt.Errorf("id %q is not a UUID", id)
	}

	return id, nil
}

// FormatHeader renders id as a Storefront-Session header value.
func FormatHeader(id string) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("id", httpsfv.NewItem(id))
	return httpsfv.Marshal(dict)
}

// WithID stores a session id in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the session id stored by Middleware, or "" if none.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware resolves the session id for each request, stores it in the
// request context and echoes it in the response header.
// A missing or invalid header starts a new session rather than failing.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if header := r.Header.Get(Header); header != "" {
				parsed, err := ParseHeader(header)
				if err != nil {
					logger.Warn("invalid Storefront-Session header",
						slog.String("header", header),
						slog.String("error", err.Error()))
				}
				id = parsed
			}
			if id == "" {
				id = NewID()
			}

			if value, err := FormatHeader(id); err == nil {
				w.Header().Set(Header, value)
			}

			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}
