package auth

import (
	"errors"
	"fmt"
)

// AuthenticationError is returned when the auth backend rejects a login.
type AuthenticationError struct {
	Status  int
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// MalformedTokenError means the backend answered 2xx but the token it returned
// cannot be decoded. Distinct from a credential rejection.
type MalformedTokenError struct {
	Token string
}

func (e *MalformedTokenError) Error() string {
	return fmt.Sprintf("auth backend returned an undecodable token (len=%d)", len(e.Token))
}

// NetworkError wraps a transport failure: no HTTP response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }

// ErrSessionExpired is returned to callers that need a valid session when
// neither the stored token nor a refresh can provide one.
var ErrSessionExpired = errors.New("session expired")
