package module

import (
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Mempool supplies candidate transactions for block proposals. It is an
// external collaborator of the consensus engine: consensus only pulls
// batches, it never inspects or mutates the pool.
type Mempool interface {
	// PullTransactions returns up to maxBatchSize transactions, excluding
	// any whose id is in the exclude set (already included in an ancestor
	// block that is not yet committed). Called only by the current round's
	// leader while constructing a proposal.
	PullTransactions(maxBatchSize uint, exclude map[nimbus.Identifier]struct{}) []*nimbus.Transaction
}
