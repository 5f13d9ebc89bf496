package domain

import (
	"errors"
	"fmt"
)

// ErrAuthRequired is returned when a write is attempted without a session.
var ErrAuthRequired = errors.New("you must be logged in to post a weather report")

// ErrConfirmationRequired is returned by sign-up when the backend created the
// account but withheld a session until the email address is confirmed.
var ErrConfirmationRequired = errors.New("check your email to confirm your account")

// BackendError is a non-success response from the report backend.
type BackendError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: %d %s: %s", e.Status, e.StatusText, e.Body)
}

// AuthError carries the message the auth backend returned.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// GeocodingError wraps any failure to resolve coordinates to a place name.
type GeocodingError struct {
	Lat float64
	Lng float64
	Err error
}

func (e *GeocodingError) Error() string {
	return fmt.Sprintf("reverse geocode %.4f,%.4f: %v", e.Lat, e.Lng, e.Err)
}

func (e *GeocodingError) Unwrap() error { return e.Err }

// Geolocation error codes, as reported by device positioning APIs.
const (
	GeolocationPermissionDenied    = 1
	GeolocationPositionUnavailable = 2
	GeolocationTimeout             = 3
)

// GeolocationError is a failure from a device location provider.
type GeolocationError struct {
	Code    int
	Message string
}

func (e *GeolocationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("geolocation error code %d", e.Code)
	}
	return fmt.Sprintf("geolocation error code %d: %s", e.Code, e.Message)
}
