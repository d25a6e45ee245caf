// Package gwerrors contains all common errors used by the gateway.
package gwerrors

import "fmt"

var ErrCredentialNotFound = fmt.Errorf("the credential cannot be found")
var ErrMissingCredentials = fmt.Errorf("the required credentials cannot be found")
var ErrSessionExpired = fmt.Errorf("the session is expired")
var ErrInvalidCredentialKey = fmt.Errorf("the credential key is not valid")
var ErrSessionNotFound = fmt.Errorf("the browser session cannot be found")
var ErrInvalidSessionID = fmt.Errorf("the session ID is not valid")
var ErrRequestBodyTooLarge = fmt.Errorf("the request body is too large")
