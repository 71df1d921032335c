// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

// Package auth validates the credentials presented on the WebSocket handshake.
//
// The handshake carries a userId and a token as query parameters. A
// TokenValidator decides whether the token proves the claimed identity; a
// rejected handshake is closed with policy-violation (1008) and the
// connection is never registered.
package auth

import (
	"errors"
	"fmt"

	"github.com/Iornfire12211221/KNG-sub000/internal/config"
)

// Validator modes.
const (
	ModeIdentity = "identity"
	ModeJWT      = "jwt"
)

var (
	// ErrMissingCredentials is returned when userId or token is empty.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrInvalidToken is returned when the token does not prove the identity.
	ErrInvalidToken = errors.New("invalid token")
)

// AuthError is a rejected handshake. Reason is safe to send to the client in
// the close frame.
type AuthError struct {
	UserID string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth failed for %q: %s: %v", e.UserID, e.Reason, e.Err)
	}
	return fmt.Sprintf("auth failed for %q: %s", e.UserID, e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TokenValidator checks a handshake credential pair.
type TokenValidator interface {
	Validate(userID, token string) error
}

// IdentityValidator accepts a token equal to the user ID. It is a
// placeholder scheme for deployments where the edge already authenticated
// the user.
type IdentityValidator struct{}

// Validate implements TokenValidator.
func (IdentityValidator) Validate(userID, token string) error {
	if userID == "" || token == "" {
		return &AuthError{UserID: userID, Reason: "userId and token are required", Err: ErrMissingCredentials}
	}
	if token != userID {
		return &AuthError{UserID: userID, Reason: "token does not match user", Err: ErrInvalidToken}
	}
	return nil
}

// NewValidator builds the validator selected by cfg.Mode.
func NewValidator(cfg *config.AuthConfig) (TokenValidator, error) {
	switch cfg.Mode {
	case "", ModeIdentity:
		return IdentityValidator{}, nil
	case ModeJWT:
		return NewJWTValidator(cfg)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
