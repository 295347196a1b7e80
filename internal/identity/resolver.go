// Package identity resolves inbound credentials to stable principal names.
//
// A verified bearer token yields its subject claim. A missing token
// yields a day-scoped guest identity derived from the network origin,
// so repeat guest connections from one origin share a quota bucket
// until the calendar day rolls over. A present-but-invalid token is
// rejected outright.
package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GuestPrefix marks anonymous identities. Quota enforcement keys off it.
const GuestPrefix = "guest-"

// ErrInvalidCredential is returned when a token is present but fails
// verification. The transport must terminate the connection with a
// policy-violation status; no identity exists in this case.
var ErrInvalidCredential = errors.New("invalid credential")

// Resolver verifies bearer credentials against a configured HMAC key
// and synthesizes guest identities for credential-less connections.
type Resolver struct {
	secret    []byte
	algorithm string
	logger    *slog.Logger
	now       func() time.Time
}

// NewResolver creates a resolver. algorithm is the only accepted
// signing algorithm (e.g. "HS256"); tokens signed any other way are
// invalid regardless of key.
func NewResolver(secret, algorithm string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		secret:    []byte(secret),
		algorithm: algorithm,
		logger:    logger,
		now:       time.Now,
	}
}

// SetNow overrides the clock, for deterministic day boundaries in tests.
func (r *Resolver) SetNow(fn func() time.Time) {
	r.now = fn
}

// Resolve turns a connection's credential into an identity string.
//
// credential is the raw cookie value (an optional "Bearer " prefix is
// stripped). origin is the peer's network address, host part only.
// An empty credential yields a guest identity; an invalid one yields
// ErrInvalidCredential.
func (r *Resolver) Resolve(credential, origin string) (string, error) {
	credential = strings.TrimPrefix(credential, "Bearer ")

	if credential == "" {
		id := r.guestID(origin)
		r.logger.Debug("resolved guest identity", "identity", id)
		return id, nil
	}

	token, err := jwt.Parse(credential,
		func(t *jwt.Token) (any, error) { return r.secret, nil },
		jwt.WithValidMethods([]string{r.algorithm}),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		r.logger.Warn("credential verification failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		r.logger.Warn("credential has no subject claim")
		return "", fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}

	r.logger.Debug("resolved verified identity", "identity", subject)
	return subject, nil
}

// guestID builds the day-scoped anonymous identity for an origin.
// Dots in the origin are flattened so the identity stays a single
// token in logs and store keys.
func (r *Resolver) guestID(origin string) string {
	if origin == "" {
		origin = "unknown"
	}
	safe := strings.ReplaceAll(origin, ".", "_")
	day := r.now().Format("20060102")
	return fmt.Sprintf("%s%s-%s", GuestPrefix, safe, day)
}

// IsGuest reports whether an identity is anonymous.
func IsGuest(id string) bool {
	return strings.HasPrefix(id, GuestPrefix)
}
