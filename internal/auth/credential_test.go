package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": expiry.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestValidateGuest(t *testing.T) {
	now := time.Now()

	if err := Guest("G1").Validate(now); err != nil {
		t.Fatalf("valid guest credential rejected: %v", err)
	}

	if err := Guest("").Validate(now); !errors.Is(err, ErrNoCredential) {
		t.Errorf("empty guest id: got %v, want ErrNoCredential", err)
	}

	mixed := Credential{Mode: ModeGuest, GuestSessionID: "G1", Token: "tok"}
	if err := mixed.Validate(now); !errors.Is(err, ErrModeConflict) {
		t.Errorf("mixed credential: got %v, want ErrModeConflict", err)
	}
}

func TestValidateAuthenticated(t *testing.T) {
	now := time.Now()

	live := Authenticated(signedToken(t, now.Add(time.Hour)))
	if err := live.Validate(now); err != nil {
		t.Fatalf("live token rejected: %v", err)
	}

	expired := Authenticated(signedToken(t, now.Add(-time.Hour)))
	if err := expired.Validate(now); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token: got %v, want ErrTokenExpired", err)
	}

	garbage := Authenticated("not-a-jwt")
	if err := garbage.Validate(now); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("garbage token: got %v, want ErrMalformedToken", err)
	}

	mixed := Credential{Mode: ModeAuthenticated, Token: signedToken(t, now.Add(time.Hour)), GuestSessionID: "G1"}
	if err := mixed.Validate(now); !errors.Is(err, ErrModeConflict) {
		t.Errorf("mixed credential: got %v, want ErrModeConflict", err)
	}
}

func TestValidateNone(t *testing.T) {
	var c Credential
	if err := c.Validate(time.Now()); !errors.Is(err, ErrNoCredential) {
		t.Errorf("zero credential: got %v, want ErrNoCredential", err)
	}
}
