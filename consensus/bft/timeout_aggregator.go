package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
)

// TimeoutAggregator ingests timeout objects from the network, verifies them
// off the event loop on a worker pool, and aggregates them into timeout
// certificates. Constructed TCs and partial-TC signals are delivered back to
// the event loop via callbacks.
//
// Safe for concurrent use.
type TimeoutAggregator interface {
	// AddTimeout queues a timeout object for asynchronous processing.
	// Timeouts for rounds at or below the last pruned round are dropped
	// silently.
	AddTimeout(timeout *model.TimeoutObject)

	// PruneUpToRound discards all state for rounds strictly below the given
	// round. The pruning round is monotonically non-decreasing.
	PruneUpToRound(round uint64)

	// Start starts the aggregator's workers.
	Start()

	// Stop stops the workers and waits for in-flight timeouts to drain.
	Stop() error
}
