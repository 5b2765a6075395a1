package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bloodbridge/platform/pkg/common/models"
)

const maxUnits = 100

var (
	errInvalidBloodGroup = errors.New("invalid blood group")
	errInvalidUnits      = errors.New("invalid unit count")
	errInvalidUrgency    = errors.New("invalid urgency")
	errMissingHospital   = errors.New("missing hospital")
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

// normalize validates in and returns the canonical blood group and urgency.
func normalize(in Input) (models.BloodGroup, models.Urgency, error) {
	if strings.TrimSpace(in.HospitalID) == "" {
		return "", "", ValidationError{reason: fmt.Errorf("hospital identity required: %w", errMissingHospital)}
	}

	group, ok := models.ParseBloodGroup(in.BloodGroup)
	if !ok {
		return "", "", ValidationError{reason: fmt.Errorf("blood group '%s' not recognised: %w", in.BloodGroup, errInvalidBloodGroup)}
	}

	if in.Units < 1 || in.Units > maxUnits {
		return "", "", ValidationError{reason: fmt.Errorf("units must be between 1 and %d: %w", maxUnits, errInvalidUnits)}
	}

	urgency := models.UrgencyMedium
	if strings.TrimSpace(in.Urgency) != "" {
		u, ok := models.ParseUrgency(in.Urgency)
		if !ok {
			return "", "", ValidationError{reason: fmt.Errorf("urgency '%s' not supported: %w", in.Urgency, errInvalidUrgency)}
		}
		urgency = u
	}

	return group, urgency, nil
}
