package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// SafetyData is the minimal state the safety rules persist to prevent this
// validator from equivocating, across crashes and restarts.
// HighestVotedRound is monotonically non-decreasing for the validator's
// lifetime; it is reset only on a verified epoch change.
type SafetyData struct {
	// Epoch is the epoch the rounds below belong to.
	Epoch uint64
	// HighestVotedRound is the highest round this validator has signed a
	// vote or timeout for.
	HighestVotedRound uint64
	// HighestQCRound is the round of the newest QC this validator is locked
	// on; proposals extending anything older are rejected.
	HighestQCRound uint64
	// LastCommittedRound is the round of the last block this validator has
	// durably committed.
	LastCommittedRound uint64
}

// SafetyRules is the strictly sequential, stateful guard deciding whether
// this validator may sign a vote or timeout. Its state is persisted _before_
// any signature leaves the node, so a crash between persist and send can
// never re-allow an equivocating signature after restart.
//
// SafetyRules is NOT safe for concurrent use; all calls are serialized by the
// event loop.
type SafetyRules interface {
	// ProduceVote decides whether to vote for the given proposal at the
	// current round.
	// Returns:
	//  - (vote, nil): the proposal is safe to vote for.
	//  - (nil, model.NoVoteError): voting would violate safety; the wrapped
	//    reason is one of model.ErrStaleRound, model.ErrStaleQC,
	//    model.ErrEpochMismatch. Expected during normal operation.
	// All other errors are unexpected and fatal: in particular, a failure to
	// persist the updated safety state halts voting entirely.
	ProduceVote(proposal *model.Proposal, curRound uint64) (*model.Vote, error)

	// ProduceTimeout decides whether to sign a timeout for the current
	// round. Signing a timeout raises HighestVotedRound to curRound, so no
	// vote can be produced for that round afterwards.
	// Returns:
	//  - (timeout, nil): it is safe to time out the round.
	//  - (nil, model.NoTimeoutError): timing out would violate safety.
	//    Expected during normal operation.
	// All other errors are unexpected and fatal.
	ProduceTimeout(curRound uint64, newestQC *nimbus.QuorumCertificate, lastRoundTC *nimbus.TimeoutCertificate) (*model.TimeoutObject, error)

	// CommitRound records that the given round is durably committed, which
	// advances LastCommittedRound. Stale rounds are ignored. An error means
	// the updated state could not be persisted and is fatal.
	CommitRound(round uint64) error
}
