package token

import (
	"errors"
	"fmt"
)

// RequestError is a protocol failure from the identity provider: a non-2xx
// response to a token request. Status and body are surfaced verbatim and
// never retried automatically.
type RequestError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("token request failed (%d): %s", e.Status, e.Body)
}

// ErrInvalidPayload indicates a token endpoint responded successfully but
// the body was not parseable as a token response.
var ErrInvalidPayload = errors.New("invalid token response payload")

// ErrClientNotFound indicates the client listing under the application
// realm came back empty, usually because the user lacks admin privileges.
var ErrClientNotFound = errors.New(`keycloak client "eda" not found - check privileges`)
