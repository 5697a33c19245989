package signature

import (
	"errors"
)

var (
	// ErrDuplicatedSigner is returned when an added signer has already
	// contributed a signature.
	ErrDuplicatedSigner = errors.New("signer has already added a signature")

	// ErrInsufficientSignatures is returned when aggregation is attempted
	// with no collected signatures.
	ErrInsufficientSignatures = errors.New("insufficient number of signatures collected")

	// ErrInvalidSignatureIncluded is returned when the aggregate does not
	// verify, which means at least one signature added via TrustedAdd was
	// invalid.
	ErrInvalidSignatureIncluded = errors.New("aggregate contains at least one invalid signature")

	// ErrInvalidSignerIndex is returned when a signer index is outside the
	// aggregator's key set.
	ErrInvalidSignerIndex = errors.New("signer index is out of range")
)
