package responses

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const maxAddressLength = 500

var (
	errInvalidLatitude  = errors.New("invalid latitude")
	errInvalidLongitude = errors.New("invalid longitude")
	errAddressTooLong   = errors.New("address too long")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

func validate(in SubmitInput) error {
	if math.IsNaN(in.Latitude) || in.Latitude < -90 || in.Latitude > 90 {
		return ValidationError{reason: fmt.Errorf("latitude must be between -90 and 90: %w", errInvalidLatitude)}
	}
	if math.IsNaN(in.Longitude) || in.Longitude < -180 || in.Longitude > 180 {
		return ValidationError{reason: fmt.Errorf("longitude must be between -180 and 180: %w", errInvalidLongitude)}
	}
	if len(strings.TrimSpace(in.Address)) > maxAddressLength {
		return ValidationError{reason: fmt.Errorf("address exceeds %d characters: %w", maxAddressLength, errAddressTooLong)}
	}
	return nil
}
