package auth

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ParseJWTClaims decodes the payload segment of a JWT without verifying the signature.
func ParseJWTClaims(token string) (gjson.Result, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return gjson.Result{}, ErrInvalidJWT
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, ErrInvalidJWT
	}
	return gjson.ParseBytes(data), nil
}

// tokenExpiry returns the exp claim of an anonymous token, or the zero time
// when the token is opaque or carries no expiry.
func tokenExpiry(token string) time.Time {
	claims, err := ParseJWTClaims(token)
	if err != nil {
		return time.Time{}
	}
	exp := claims.Get("exp")
	if exp.Type != gjson.Number {
		return time.Time{}
	}
	return time.Unix(exp.Int(), 0)
}
