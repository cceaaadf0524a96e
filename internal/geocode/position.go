package geocode

import (
	"errors"
	"fmt"
)

// Browser GeolocationPositionError codes.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

var (
	ErrPermissionDenied    = errors.New("location permission denied; allow location access in the browser and try again")
	ErrPositionUnavailable = errors.New("current position is unavailable")
	ErrPositionTimeout     = errors.New("timed out while obtaining the current position")
	ErrPositionUnknown     = errors.New("could not obtain the current position")
)

// PositionError maps a browser geolocation error code to a user-facing error.
func PositionError(code int) error {
	switch code {
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodePositionUnavailable:
		return ErrPositionUnavailable
	case CodeTimeout:
		return ErrPositionTimeout
	}
	return fmt.Errorf("%w (code %d)", ErrPositionUnknown, code)
}
