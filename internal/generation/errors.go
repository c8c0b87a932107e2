package generation

import (
	"errors"
	"fmt"
)

// ErrMalformed marks a 2xx response whose body could not be understood.
var ErrMalformed = errors.New("malformed generation service response")

// ServiceError is returned for every failed generation service call.
// StatusCode is zero for transport failures.
type ServiceError struct {
	Route      string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation service %s: status %d: %s", e.Route, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("generation service %s: %s", e.Route, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func malformed(route string, cause error) error {
	return &ServiceError{
		Route:   route,
		Message: fmt.Sprintf("%v: %v", ErrMalformed, cause),
		Err:     ErrMalformed,
	}
}
