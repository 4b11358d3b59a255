package scheduling

import "errors"

var (
	// ErrValidation marks bad or missing input, rejected before any write.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an authorization failure or an illegal status
	// transition.
	ErrForbidden = errors.New("forbidden")

	// ErrNoPayer means a package was requested but neither a company nor a
	// patient user could be resolved to bill.
	ErrNoPayer = errors.New("no payer could be resolved")
)
