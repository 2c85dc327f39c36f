package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrInvalidToken indicates an access or refresh token failed validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidOTP indicates a password reset code that is unknown, expired
	// or already consumed.
	ErrInvalidOTP = errors.New("invalid or expired reset code")
)
