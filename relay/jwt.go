// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BeTrashMonster/graceful-books-sub014/internal/auth"
)

// ClientAuthenticator resolves company scope and device identity from
// HTTP requests. The relay never interprets the scope beyond
// partitioning; it is an opaque tenant key minted by the auth layer.
type ClientAuthenticator interface {
	GetCompanyScope(r *http.Request) (string, error)
	GetDeviceID(r *http.Request) (string, error)
}

// JWTAuth handles HS256 JWT authentication.
type JWTAuth struct {
	secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// JWTClaims for multi-device sync: sub carries the company scope,
// did the device id.
type JWTClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// GenerateToken mints a token binding a company scope to one device.
func (j *JWTAuth) GenerateToken(companyScope, deviceID string, expiration time.Duration) (string, error) {
	claims := &JWTClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "graceful-books-relay",
			Subject:   companyScope,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken parses and validates a token, returning its claims.
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

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub (company scope) in token")
	}
	if claims.DeviceID == "" {
		return nil, fmt.Errorf("missing did (device id) in token")
	}
	return claims, nil
}

func (j *JWTAuth) GetCompanyScope(r *http.Request) (string, error) {
	claims, err := j.claimsFromRequest(r)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (j *JWTAuth) GetDeviceID(r *http.Request) (string, error) {
	claims, err := j.claimsFromRequest(r)
	if err != nil {
		return "", err
	}
	return claims.DeviceID, nil
}

// claimsFromRequest extracts the bearer token from the Authorization
// header, falling back to the access_token query parameter for the
// WebSocket endpoint (browser WS clients cannot set headers).
func (j *JWTAuth) claimsFromRequest(r *http.Request) (*JWTClaims, error) {
	tokenString := ""
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return nil, fmt.Errorf("bearer token required")
		}
	} else if qt := r.URL.Query().Get("access_token"); qt != "" {
		tokenString = qt
	} else {
		return nil, fmt.Errorf("authorization required")
	}

	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// Middleware authenticates the request and injects company scope and
// device id into the context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := j.claimsFromRequest(r)
		if err != nil {
			slog.Debug("JWT validation failed", "error", err, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(ErrorResponse{
				Error:     KindUnauthorized,
				Message:   "invalid or missing token",
				Retryable: false,
			})
			return
		}

		ctx := auth.SetCompanyScope(r.Context(), claims.Subject)
		ctx = auth.SetDeviceID(ctx, claims.DeviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
