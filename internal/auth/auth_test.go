package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestService(t *testing.T, tokenDuration time.Duration) *Service {
	t.Helper()
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return NewService("test-secret", "operator", hash, tokenDuration)
}

func TestLoginAndValidate(t *testing.T) {
	svc := newTestService(t, time.Hour)

	pair, err := svc.Login("operator", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.TokenType != "Bearer" {
		t.Errorf("token pair malformed: %+v", pair)
	}
	if pair.ExpiresIn != int64(time.Hour.Seconds()) {
		t.Errorf("expires_in = %d, want %d", pair.ExpiresIn, int64(time.Hour.Seconds()))
	}

	claims, err := svc.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Username != "operator" {
		t.Errorf("claims username = %q, want operator", claims.Username)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t, time.Hour)

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "operator", "wrong"},
		{"wrong username", "admin", "correct-horse"},
		{"both wrong", "admin", "wrong"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Login(tc.username, tc.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Login(%q, %q) = %v, want ErrInvalidCredentials", tc.username, tc.password, err)
			}
		})
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := newTestService(t, time.Hour)

	if _, err := svc.ValidateToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: got %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	svc := newTestService(t, time.Hour)
	other := NewService("different-secret", "operator", "", time.Hour)

	pair, err := svc.Login("operator", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := other.ValidateToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign-secret token: got %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := newTestService(t, time.Hour)

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.ValidateToken(signed); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token: got %v, want ErrTokenExpired", err)
	}
}
