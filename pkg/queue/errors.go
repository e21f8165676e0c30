package queue

import "errors"

// Queue-state errors surfaced to API callers.
var (
	// ErrNoEligibleCandidates means the shift opened with an empty
	// candidate list; the shift stays open with no active offer.
	ErrNoEligibleCandidates = errors.New("no eligible candidates for shift")

	// ErrActiveOffer means the shift already has a pending offer and a
	// new cycle cannot start.
	ErrActiveOffer = errors.New("shift already has an active offer")

	// ErrShiftNotOpen means the shift is filled or cancelled.
	ErrShiftNotOpen = errors.New("shift is not open for offers")

	// ErrOfferExpired means the response arrived at or after the
	// response window closed. The expiry sweep owns the transition.
	ErrOfferExpired = errors.New("offer response window has closed")

	// ErrOfferAlreadyResolved means the offer already reached a terminal
	// state; duplicate or late responses change nothing.
	ErrOfferAlreadyResolved = errors.New("offer already resolved")
)
