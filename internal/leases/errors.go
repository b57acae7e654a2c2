package leases

import "errors"

var (
	// ErrAlreadyHeld is returned by a Store when another holder has an active lease
	ErrAlreadyHeld = errors.New("seat is leased by another holder")

	// ErrLeaseDenied is what callers of the Manager see for a contested seat
	ErrLeaseDenied = errors.New("lease denied")
)
