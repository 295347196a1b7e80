package identity

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key"

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r := NewResolver(testSecret, "HS256", slog.Default())
	r.SetNow(func() time.Time {
		return time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	})
	return r
}

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestResolveGuestIdentity(t *testing.T) {
	r := newTestResolver(t)

	id, err := r.Resolve("", "192.168.1.50")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := "guest-192_168_1_50-20250615"
	if id != want {
		t.Errorf("guest identity = %q, want %q", id, want)
	}
	if !IsGuest(id) {
		t.Errorf("IsGuest(%q) = false, want true", id)
	}
}

func TestGuestIdentityStableWithinDay(t *testing.T) {
	r := newTestResolver(t)

	a, _ := r.Resolve("", "10.0.0.1")
	b, _ := r.Resolve("", "10.0.0.1")
	if a != b {
		t.Errorf("same origin same day: %q != %q", a, b)
	}

	other, _ := r.Resolve("", "10.0.0.2")
	if a == other {
		t.Errorf("different origins produced the same identity %q", a)
	}
}

func TestGuestIdentityChangesAcrossDays(t *testing.T) {
	r := NewResolver(testSecret, "HS256", slog.Default())

	day := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)
	r.SetNow(func() time.Time { return day })
	before, _ := r.Resolve("", "10.0.0.1")

	day = day.Add(2 * time.Minute) // crosses midnight
	after, _ := r.Resolve("", "10.0.0.1")

	if before == after {
		t.Errorf("identity did not change across day boundary: %q", before)
	}
}

func TestResolveVerifiedToken(t *testing.T) {
	r := newTestResolver(t)

	token := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "user-42"})

	tests := []struct {
		name       string
		credential string
	}{
		{"bare token", token},
		{"bearer prefix", "Bearer " + token},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.Resolve(tt.credential, "10.0.0.1")
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if id != "user-42" {
				t.Errorf("identity = %q, want user-42", id)
			}
			if IsGuest(id) {
				t.Errorf("verified identity %q classified as guest", id)
			}
		})
	}
}

func TestResolveRejectsBadCredentials(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name       string
		credential string
	}{
		{"garbage", "not-a-token"},
		{"wrong key", signToken(t, jwt.SigningMethodHS256, "other-secret", jwt.MapClaims{"sub": "user-42"})},
		{"wrong algorithm", signToken(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"sub": "user-42"})},
		{"missing subject", signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"aud": "mindviza"})},
		{"expired", signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "user-42",
			"exp": time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC).Unix(),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.credential, "10.0.0.1")
			if !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("err = %v, want ErrInvalidCredential", err)
			}
		})
	}
}
