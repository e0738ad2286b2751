// Package auth implements single-operator authentication: one
// username/bcrypt-hash pair from config, HS256 JWTs for the dashboard.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

// Claims represents the JWT claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenPair is the login response payload.
type TokenPair struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Service issues and validates operator tokens.
type Service struct {
	secret        []byte
	username      string
	passwordHash  string
	tokenDuration time.Duration
}

func NewService(secret, username, passwordHash string, tokenDuration time.Duration) *Service {
	if tokenDuration <= 0 {
		tokenDuration = 24 * time.Hour
	}
	return &Service{
		secret:        []byte(secret),
		username:      username,
		passwordHash:  passwordHash,
		tokenDuration: tokenDuration,
	}
}

// Login checks the operator credentials and issues a token.
func (s *Service) Login(username, password string) (*TokenPair, error) {
	// Constant-time username compare; bcrypt handles the password.
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) != 1 {
		// Burn a bcrypt round anyway so the two failure modes take the
		// same time.
		_ = bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(username)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken: token,
		ExpiresIn:   int64(s.tokenDuration.Seconds()),
		TokenType:   "Bearer",
	}, nil
}

func (s *Service) generateToken(username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "breakout-trading-bot",
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates an access token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword hashes a password for the config file.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}
