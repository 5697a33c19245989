// Package safetyrules implements the voting guard of the consensus protocol.
// It is the only component allowed to hand the node's vote and timeout
// signatures out, and it persists its decision state before any signature
// leaves the node.
package safetyrules

import (
	"fmt"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// SafetyRules decides whether this validator may sign a vote or timeout for a
// proposal, following the locking discipline (highest voted round, highest QC
// round). State updates are persisted before the signed message is returned,
// so a crash between persist and send can never re-allow an equivocating
// signature.
//
// Not safe for concurrent use; all calls are serialized by the event loop.
type SafetyRules struct {
	signer     bft.Signer
	persister  bft.Persister
	committee  bft.Replicas
	safetyData *bft.SafetyData
}

var _ bft.SafetyRules = (*SafetyRules)(nil)

// New creates an instance of SafetyRules, restoring the persisted safety
// state. The persisted state must belong to the committee's epoch; epoch
// transitions write a fresh safety record before constructing SafetyRules.
func New(
	signer bft.Signer,
	persister bft.Persister,
	committee bft.Replicas,
) (*SafetyRules, error) {
	safetyData, err := persister.GetSafetyData()
	if err != nil {
		return nil, fmt.Errorf("could not recover safety data: %w", err)
	}
	if safetyData.Epoch != committee.Epoch() {
		return nil, model.NewConfigurationErrorf(
			"persisted safety data is for epoch %d, committee is for epoch %d",
			safetyData.Epoch, committee.Epoch(),
		)
	}
	return &SafetyRules{
		signer:     signer,
		persister:  persister,
		committee:  committee,
		safetyData: safetyData,
	}, nil
}

// ProduceVote runs the voting decision procedure for the proposal:
//  1. reject with ErrStaleRound if the block's round is at or below the
//     highest round this validator has already signed for
//  2. reject with ErrStaleQC if the block extends a QC older than the lock
//  3. reject with ErrEpochMismatch if the block belongs to another epoch
//  4. otherwise raise the lock state, persist it, and only then sign
//
// Returns model.NoVoteError for all safety rejections; these are expected
// during normal operation. All other errors are fatal.
func (r *SafetyRules) ProduceVote(proposal *model.Proposal, curRound uint64) (*model.Vote, error) {
	block := proposal.Block
	if block.Round != curRound {
		return nil, model.NewNoVoteErrorf("proposal for round %d, current round is %d", block.Round, curRound)
	}

	if block.Round <= r.safetyData.HighestVotedRound {
		return nil, model.NoVoteError{Err: model.ErrStaleRound}
	}
	if block.QC.Round < r.safetyData.HighestQCRound {
		return nil, model.NoVoteError{Err: model.ErrStaleQC}
	}
	if block.Epoch != r.safetyData.Epoch {
		return nil, model.NoVoteError{Err: model.ErrEpochMismatch}
	}

	// the round must have been entered legitimately: the block extends the
	// directly preceding round, or a TC proves the preceding round timed out
	err := validRoundEntry(block.Round, block.QC, proposal.LastRoundTC)
	if err != nil {
		return nil, model.NewNoVoteErrorf("proposal does not prove entry into round %d: %w", block.Round, err)
	}

	updated := *r.safetyData
	updated.HighestVotedRound = block.Round
	if block.QC.Round > updated.HighestQCRound {
		updated.HighestQCRound = block.QC.Round
	}
	err = r.persister.PutSafetyData(&updated)
	if err != nil {
		return nil, fmt.Errorf("could not persist safety data: %w", err)
	}
	r.safetyData = &updated

	vote, err := r.signer.CreateVote(block)
	if err != nil {
		return nil, fmt.Errorf("could not sign vote for block %v: %w", block.BlockID, err)
	}
	return vote, nil
}

// ProduceTimeout decides whether to sign a timeout for the current round.
// Signing raises HighestVotedRound to curRound, so no vote can be produced
// for the round afterwards. Re-signing a timeout for the same round is
// allowed (rebroadcast); the signature is deterministic.
//
// Returns model.NoTimeoutError if timing out would violate safety; expected
// during normal operation. All other errors are fatal.
func (r *SafetyRules) ProduceTimeout(curRound uint64, newestQC *nimbus.QuorumCertificate, lastRoundTC *nimbus.TimeoutCertificate) (*model.TimeoutObject, error) {
	if newestQC == nil {
		return nil, model.NewNoTimeoutErrorf("cannot time out round %d without a newest QC", curRound)
	}
	if newestQC.Epoch != r.safetyData.Epoch {
		return nil, model.NewNoTimeoutErrorf("QC from epoch %d cannot justify a timeout in epoch %d: %w",
			newestQC.Epoch, r.safetyData.Epoch, model.ErrEpochMismatch)
	}
	if curRound < r.safetyData.HighestVotedRound {
		return nil, model.NewNoTimeoutErrorf("round %d is below the highest signed round %d: %w",
			curRound, r.safetyData.HighestVotedRound, model.ErrStaleRound)
	}
	if curRound <= newestQC.Round {
		return nil, model.NewNoTimeoutErrorf("round %d already has a QC, no timeout needed", curRound)
	}
	err := validRoundEntry(curRound, newestQC, lastRoundTC)
	if err != nil {
		return nil, model.NewNoTimeoutErrorf("insufficient evidence for entry into round %d: %w", curRound, err)
	}

	if curRound > r.safetyData.HighestVotedRound {
		updated := *r.safetyData
		updated.HighestVotedRound = curRound
		err := r.persister.PutSafetyData(&updated)
		if err != nil {
			return nil, fmt.Errorf("could not persist safety data: %w", err)
		}
		r.safetyData = &updated
	}

	timeout, err := r.signer.CreateTimeout(curRound, newestQC, lastRoundTC)
	if err != nil {
		return nil, fmt.Errorf("could not sign timeout for round %d: %w", curRound, err)
	}
	return timeout, nil
}

// CommitRound records that the given round is durably committed. Stale
// updates are ignored. An error means the state could not be persisted.
func (r *SafetyRules) CommitRound(round uint64) error {
	if round <= r.safetyData.LastCommittedRound {
		return nil
	}
	updated := *r.safetyData
	updated.LastCommittedRound = round
	err := r.persister.PutSafetyData(&updated)
	if err != nil {
		return fmt.Errorf("could not persist safety data: %w", err)
	}
	r.safetyData = &updated
	return nil
}

// validRoundEntry checks that qc and tc together prove the round was entered
// legitimately: the QC certifies the directly preceding round, or a TC for
// the preceding round exists and the QC is at least as new as the quorum's
// reported newest QC.
func validRoundEntry(round uint64, qc *nimbus.QuorumCertificate, tc *nimbus.TimeoutCertificate) error {
	if qc.Round+1 == round {
		return nil
	}
	if tc == nil {
		return fmt.Errorf("QC is for round %d, and no TC for round %d is present", qc.Round, round-1)
	}
	if tc.Round+1 != round {
		return fmt.Errorf("TC is for round %d, expected round %d", tc.Round, round-1)
	}
	if qc.Round < tc.NewestQC.Round {
		return fmt.Errorf("QC at round %d is older than the TC's newest QC at round %d", qc.Round, tc.NewestQC.Round)
	}
	return nil
}
