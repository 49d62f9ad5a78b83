// internal/registry/errors.go
package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Specific errors for registry operations. Conflicts reuse
// storage.ErrConnectionExists / storage.ErrConnectionNotFound.
var (
	ErrDisabledFeature = errors.New("operations on MongoDB connections are disabled")
	ErrNotConnected    = errors.New("connection is not in a connected state")
)

// ValidationError reports the fields of a connection spec that were missing
// or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid connection spec: %s", strings.Join(e.Fields, ", "))
}

// TransportError wraps a probe/connect/disconnect failure. The registry has
// already rolled the connection back to Disconnected by the time one of these
// reaches the caller.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
