package auth

import "errors"

var (
	// ErrInvalidToken indicates the token failed validation for any reason:
	// malformed, expired, bad signature, wrong issuer or audience. Callers on
	// the authorization path treat it as "no identity", never as a failure.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrAccountDisabled    = errors.New("auth: account disabled")
)
