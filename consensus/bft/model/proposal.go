package model

import (
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Proposal is a block proposal broadcast by the round's leader. Besides the
// block it carries the proposer's signature (which doubles as the proposer's
// vote) and, if the leader entered its round via a timeout, the TC proving it
// was allowed to skip ahead.
type Proposal struct {
	Block *Block
	// Payload is the transaction batch referenced by Block.PayloadHash.
	Payload *nimbus.Payload
	// LastRoundTC is only set if the previous round ended without a QC,
	// i.e. Block.QC.Round+1 < Block.Round.
	LastRoundTC *nimbus.TimeoutCertificate
	SigData     []byte
}

// ProposerVote extracts the proposer's vote from the proposal, so a leader
// never sends a separate Vote message for its own block.
func (p *Proposal) ProposerVote() *Vote {
	return &Vote{
		Round:    p.Block.Round,
		Epoch:    p.Block.Epoch,
		BlockID:  p.Block.BlockID,
		SignerID: p.Block.ProposerID,
		SigData:  p.SigData,
	}
}
