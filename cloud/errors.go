package cloud

import "errors"

var (
	// ErrMalformedInput is returned when observation text does not hold whole
	// 4-tuples or an observation is not finite
	ErrMalformedInput = errors.New("malformed observation input")

	// ErrNoObservations is returned when the solver is handed an empty point set
	ErrNoObservations = errors.New("no observations")

	// ErrInvalidConfig is returned for solver settings that cannot describe a valid run
	ErrInvalidConfig = errors.New("invalid solver config")

	// ErrOutOfDomain is returned by Decode for a code outside the symbol domain
	ErrOutOfDomain = errors.New("code outside symbol domain")
)
