// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the resolved identity of an authenticated caller.
type Session struct {
	UserID  string
	User    string
	IsAdmin bool
}

// SessionAuthenticator resolves the authenticated session from a request.
// Implementations validate auth (e.g. JWT) and yield the session identity.
type SessionAuthenticator interface {
	Session(r *http.Request) (*Session, error)
}

// JWTAuth authenticates requests with HMAC-signed bearer tokens. The `sub`
// claim is the user id; a session is admin when `sub` equals the configured
// admin subject.
type JWTAuth struct {
	secret       []byte
	adminSubject string
}

// NewJWTAuth creates a JWT authenticator.
func NewJWTAuth(secret, adminSubject string) *JWTAuth {
	return &JWTAuth{
		secret:       []byte(secret),
		adminSubject: adminSubject,
	}
}

// JWTClaims are the token claims used by the sync API.
type JWTClaims struct {
	Name string `json:"name,omitempty"` // display name
	jwt.RegisteredClaims
}

// GenerateToken issues a token for userID with the given display name.
func (j *JWTAuth) GenerateToken(userID, name string, expiration time.Duration) (string, error) {
	claims := &JWTClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "moviesync",
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates a token and returns its claims.
func (j *JWTAuth) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		if claims.Subject == "" {
			return nil, fmt.Errorf("missing sub (user ID) in token")
		}
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// Session implements SessionAuthenticator.
func (j *JWTAuth) Session(r *http.Request) (*Session, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header required")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, fmt.Errorf("bearer token required")
	}

	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	user := claims.Name
	if user == "" {
		user = claims.Subject
	}
	return &Session{
		UserID:  claims.Subject,
		User:    user,
		IsAdmin: j.adminSubject != "" && claims.Subject == j.adminSubject,
	}, nil
}
