// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Iornfire12211221/KNG-sub000/internal/config"
)

// JWTValidator accepts HS256 tokens whose subject equals the user ID.
// Tokens are issued elsewhere and must carry an exp claim.
type JWTValidator struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewJWTValidator requires a non-empty secret.
func NewJWTValidator(cfg *config.AuthConfig) (*JWTValidator, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required when AUTH_MODE=jwt")
	}
	return &JWTValidator{
		secret: []byte(cfg.JWTSecret),
		leeway: cfg.JWTLeeway,
		now:    time.Now,
	}, nil
}

// Validate implements TokenValidator.
func (v *JWTValidator) Validate(userID, tokenString string) error {
	if userID == "" || tokenString == "" {
		return &AuthError{UserID: userID, Reason: "userId and token are required", Err: ErrMissingCredentials}
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		reason := "malformed or unsigned token"
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			reason = "token expired"
		case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			reason = "token has no expiry"
		}
		return &AuthError{UserID: userID, Reason: reason, Err: fmt.Errorf("%w: %w", ErrInvalidToken, err)}
	}
	if !token.Valid {
		return &AuthError{UserID: userID, Reason: "token not valid", Err: ErrInvalidToken}
	}
	if claims.Subject != userID {
		return &AuthError{UserID: userID, Reason: "token subject does not match user", Err: ErrInvalidToken}
	}
	return nil
}
