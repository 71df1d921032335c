// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Iornfire12211221/KNG-sub000/internal/config"
)

const testSecret = "this_is_a_very_long_secret_key_for_testing_purposes_12345"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestIdentityValidator(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		token   string
		wantErr error
	}{
		{"matching token", "u1", "u1", nil},
		{"missing token", "u1", "", ErrMissingCredentials},
		{"missing user", "", "u1", ErrMissingCredentials},
		{"mismatch", "u1", "u2", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := IdentityValidator{}.Validate(tt.userID, tt.token)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			var authErr *AuthError
			if !errors.As(err, &authErr) || authErr.Reason == "" {
				t.Errorf("expected *AuthError with reason, got %T", err)
			}
		})
	}
}

func TestJWTValidator(t *testing.T) {
	v, err := NewJWTValidator(&config.AuthConfig{Mode: ModeJWT, JWTSecret: testSecret})
	if err != nil {
		t.Fatalf("NewJWTValidator: %v", err)
	}
	now := time.Now()

	tests := []struct {
		name    string
		userID  string
		token   string
		wantErr bool
		reason  string
	}{
		{
			name:   "valid subject",
			userID: "42",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
				Subject:   "42",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}),
		},
		{
			name:    "no expiry",
			userID:  "42",
			token:   signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{Subject: "42"}),
			wantErr: true,
			reason:  "token has no expiry",
		},
		{
			name:   "subject mismatch",
			userID: "43",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
				Subject:   "42",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}),
			wantErr: true,
			reason:  "token subject does not match user",
		},
		{
			name:   "expired",
			userID: "42",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
				Subject:   "42",
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			}),
			wantErr: true,
			reason:  "token expired",
		},
		{
			name:    "wrong secret",
			userID:  "42",
			token:   signToken(t, jwt.SigningMethodHS256, []byte("another_secret_that_is_long_enough_123"), jwt.RegisteredClaims{Subject: "42"}),
			wantErr: true,
		},
		{
			name:    "wrong algorithm",
			userID:  "42",
			token:   signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.RegisteredClaims{Subject: "42"}),
			wantErr: true,
		},
		{
			name:    "garbage",
			userID:  "42",
			token:   "not-a-jwt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.userID, tt.token)
			if !tt.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("error = %v, want ErrInvalidToken", err)
			}
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected *AuthError, got %T", err)
			}
			if tt.reason != "" && authErr.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", authErr.Reason, tt.reason)
			}
		})
	}
}

func TestNewValidator(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.AuthConfig
		wantType string
		wantErr  bool
	}{
		{"default", config.AuthConfig{}, "identity", false},
		{"identity", config.AuthConfig{Mode: ModeIdentity}, "identity", false},
		{"jwt", config.AuthConfig{Mode: ModeJWT, JWTSecret: testSecret}, "jwt", false},
		{"jwt without secret", config.AuthConfig{Mode: ModeJWT}, "", true},
		{"unknown", config.AuthConfig{Mode: "oidc"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewValidator(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			switch tt.wantType {
			case "identity":
				if _, ok := v.(IdentityValidator); !ok {
					t.Errorf("got %T, want IdentityValidator", v)
				}
			case "jwt":
				if _, ok := v.(*JWTValidator); !ok {
					t.Errorf("got %T, want *JWTValidator", v)
				}
			}
		})
	}
}
