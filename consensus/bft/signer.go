package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Signer produces this node's cryptographic contributions to the protocol:
// votes, timeouts and proposal signatures. Signing happens with the node's
// staking key over domain-separated messages, so a vote can never be replayed
// as a timeout or vice versa.
//
// Safe for concurrent use.
type Signer interface {
	// CreateVote signs a vote for the given block.
	CreateVote(block *model.Block) (*model.Vote, error)

	// CreateTimeout signs a timeout for the given round, attesting the
	// newest QC this node knows.
	CreateTimeout(curRound uint64, newestQC *nimbus.QuorumCertificate, lastRoundTC *nimbus.TimeoutCertificate) (*model.TimeoutObject, error)

	// CreateProposal signs the given block as its proposer. The proposal's
	// signature doubles as the proposer's vote.
	CreateProposal(block *model.Block, payload *nimbus.Payload, lastRoundTC *nimbus.TimeoutCertificate) (*model.Proposal, error)
}

// Verifier checks cryptographic validity of individual signatures and of the
// aggregated signatures inside certificates. It does not check protocol
// rules (leader eligibility, round numbers); that is the Validator's job.
//
// Safe for concurrent use.
type Verifier interface {
	// VerifyVote checks the vote signature of the given validator over
	// (block ID, round).
	// Expected errors during normal operation:
	//  - model.ErrInvalidSignature if the signature does not verify
	VerifyVote(voter *nimbus.Validator, sigData []byte, blockID nimbus.Identifier, round uint64) error

	// VerifyQC checks the aggregated signature of the QC against the given
	// signers.
	// Expected errors during normal operation:
	//  - model.ErrInvalidSignature if the aggregated signature is invalid
	VerifyQC(signers nimbus.ValidatorList, sigData []byte, blockID nimbus.Identifier, round uint64) error

	// VerifyTimeout checks the timeout signature of the given validator over
	// (round, newest QC round).
	// Expected errors during normal operation:
	//  - model.ErrInvalidSignature if the signature does not verify
	VerifyTimeout(signer *nimbus.Validator, sigData []byte, round uint64, newestQCRound uint64) error

	// VerifyTC checks the aggregated signature of the TC against the given
	// signers and their reported newest-QC rounds.
	// Expected errors during normal operation:
	//  - model.ErrInvalidSignature if the aggregated signature is invalid
	VerifyTC(signers nimbus.ValidatorList, sigData []byte, round uint64, newestQCRounds []uint64) error
}
