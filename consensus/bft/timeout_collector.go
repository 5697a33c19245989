package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// OnTCCreated is the callback invoked exactly once when a collector has
// aggregated a quorum of timeouts into a TC.
type OnTCCreated func(tc *nimbus.TimeoutCertificate)

// OnPartialTCCreated is the callback invoked exactly once when the collected
// timeout weight for a round exceeds the timeout threshold (f by weight),
// proving at least one honest validator has abandoned the round.
type OnPartialTCCreated func(round uint64)

// TimeoutCollector collects the timeout objects for one round and aggregates
// them into a TC, analogously to vote collection.
//
// Safe for concurrent use.
type TimeoutCollector interface {
	// Round returns the round this collector is collecting timeouts for.
	Round() uint64

	// AddTimeout adds a timeout object to the collector. Duplicates from the
	// same signer are ignored (first-seen wins).
	// Expected errors during normal operation:
	//  - TimeoutForIncompatibleRoundError
	//  - model.InvalidTimeoutError for cryptographically invalid timeouts
	//  - model.DoubleTimeoutError for equivocating timeouts
	AddTimeout(timeout *model.TimeoutObject) error
}

// TimeoutProcessor verifies and accumulates timeouts for one round, building
// a TC once the quorum threshold is reached.
type TimeoutProcessor interface {
	// Process performs processing of a single timeout in a concurrency-safe
	// way.
	// Expected errors during normal operation:
	//  - TimeoutForIncompatibleRoundError
	//  - model.InvalidTimeoutError
	Process(timeout *model.TimeoutObject) error
}
