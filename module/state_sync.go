package module

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// StateSync is the escalation path for nodes that have fallen too far behind
// the certified chain to catch up block by block. Consensus hands off and
// resumes participation only after the local ledger height matches the
// target.
type StateSync interface {
	// Sync blocks until the local ledger has caught up to the block
	// certified by the target QC, and returns that block as the new
	// committed boundary: its certifying QC and execution state commitment,
	// all durably stored. Consensus re-anchors its in-memory state on the
	// returned block before resuming. Returns an error only if
	// synchronization is impossible; consensus participation stays suspended
	// in that case.
	Sync(target *nimbus.QuorumCertificate) (*model.CommittedBlock, error)
}
