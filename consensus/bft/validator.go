package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Validator checks inbound messages against the protocol rules: committee
// membership, leader eligibility, epoch tagging, certificate quorums and
// aggregated signatures. It is the message-ingestion boundary where
// ProtocolViolation errors are resolved: invalid messages are dropped, never
// crash the node.
//
// Safe for concurrent use.
type Validator interface {
	// ValidateProposal checks that the proposal is signed by the round's
	// designated leader, carries a valid QC, and, if the previous round
	// timed out, a valid TC for it.
	// Expected errors during normal operation:
	//  - model.InvalidProposalError
	ValidateProposal(proposal *model.Proposal) error

	// ValidateVote checks committee membership and the vote signature, and
	// returns the voting validator on success.
	// Expected errors during normal operation:
	//  - model.InvalidVoteError
	ValidateVote(vote *model.Vote) (*nimbus.Validator, error)

	// ValidateTimeout checks committee membership, the timeout signature,
	// and the embedded certificates.
	// Expected errors during normal operation:
	//  - model.InvalidTimeoutError
	ValidateTimeout(timeout *model.TimeoutObject) (*nimbus.Validator, error)

	// ValidateQC checks that the QC's distinct signers are committee members
	// whose combined weight reaches the quorum threshold, and verifies the
	// aggregated signature. A QC with a duplicated signer is invalid.
	// Expected errors during normal operation:
	//  - model.InvalidQCError
	ValidateQC(qc *nimbus.QuorumCertificate) error

	// ValidateTC checks the TC analogously, including the embedded newest QC.
	// Expected errors during normal operation:
	//  - model.InvalidTCError
	ValidateTC(tc *nimbus.TimeoutCertificate) error
}
