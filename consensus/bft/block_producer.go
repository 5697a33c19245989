package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// BlockProducer assembles a new block proposal when this node is the round's
// leader: it pulls a transaction batch from the mempool, builds a block
// extending the newest QC, and signs it.
type BlockProducer interface {
	// MakeBlockProposal builds a signed proposal for the given round,
	// extending the block certified by newestQC. lastRoundTC must be the TC
	// for round curRound-1 if the previous round timed out, nil otherwise.
	MakeBlockProposal(curRound uint64, newestQC *nimbus.QuorumCertificate, lastRoundTC *nimbus.TimeoutCertificate) (*model.Proposal, error)

	// RecordPayload remembers the payload of an uncommitted block, so later
	// proposals can exclude its transactions from the mempool pull.
	RecordPayload(blockID nimbus.Identifier, payload *nimbus.Payload)
}
