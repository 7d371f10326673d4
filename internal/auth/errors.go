package auth

import "errors"

var (
	ErrInvalidJWT           = errors.New("invalid JWT token")
	ErrAnonymousTokenStatus = errors.New("anonymous token endpoint returned non-2xx status")
	ErrEmptyAnonymousToken  = errors.New("anonymous token response has no token")
)
