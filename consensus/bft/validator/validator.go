// Package validator checks inbound consensus messages against the protocol
// rules before they reach the engine's state machine. Invalid messages are
// reported with sentinel errors and dropped by the caller; they never crash
// the node.
package validator

import (
	"errors"
	"fmt"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Validator implements bft.Validator using the epoch committee for
// membership and leader checks and a Verifier for the cryptographic checks.
type Validator struct {
	committee bft.Replicas
	verifier  bft.Verifier
}

var _ bft.Validator = (*Validator)(nil)

func New(committee bft.Replicas, verifier bft.Verifier) *Validator {
	return &Validator{
		committee: committee,
		verifier:  verifier,
	}
}

// ValidateQC checks epoch tagging, signer membership and distinctness, the
// quorum threshold, and the aggregated signature.
// Expected errors during normal operation:
//   - model.InvalidQCError
func (v *Validator) ValidateQC(qc *nimbus.QuorumCertificate) error {
	if qc.Epoch != v.committee.Epoch() {
		return model.NewInvalidQCErrorf(qc, "QC is for epoch %d, current epoch is %d: %w", qc.Epoch, v.committee.Epoch(), model.ErrEpochMismatch)
	}

	signers := make(nimbus.ValidatorList, 0, len(qc.SignerIDs))
	seen := make(map[nimbus.Identifier]struct{}, len(qc.SignerIDs))
	accumulatedWeight := uint64(0)
	for _, signerID := range qc.SignerIDs {
		if _, dup := seen[signerID]; dup {
			return model.NewInvalidQCErrorf(qc, "duplicated signer %v", signerID)
		}
		seen[signerID] = struct{}{}
		signer, err := v.committee.ValidatorByID(signerID)
		if err != nil {
			if model.IsInvalidSignerError(err) {
				return model.NewInvalidQCErrorf(qc, "invalid signer: %w", err)
			}
			return fmt.Errorf("could not look up signer %v: %w", signerID, err)
		}
		signers = append(signers, signer)
		accumulatedWeight += signer.Weight
	}
	if accumulatedWeight < v.committee.QuorumThreshold() {
		return model.NewInvalidQCErrorf(qc, "signers have insufficient weight %d (threshold %d)", accumulatedWeight, v.committee.QuorumThreshold())
	}

	err := v.verifier.VerifyQC(signers, qc.SigData, qc.BlockID, qc.Round)
	if err != nil {
		if errors.Is(err, model.ErrInvalidSignature) || model.IsInsufficientSignaturesError(err) {
			return model.NewInvalidQCErrorf(qc, "invalid aggregated signature: %w", err)
		}
		return fmt.Errorf("could not verify QC signature: %w", err)
	}
	return nil
}

// ValidateTC checks the TC analogously to ValidateQC, plus the consistency of
// the reported newest-QC rounds and the validity of the embedded QC.
// Expected errors during normal operation:
//   - model.InvalidTCError
func (v *Validator) ValidateTC(tc *nimbus.TimeoutCertificate) error {
	if tc.Epoch != v.committee.Epoch() {
		return model.NewInvalidTCErrorf(tc, "TC is for epoch %d, current epoch is %d: %w", tc.Epoch, v.committee.Epoch(), model.ErrEpochMismatch)
	}
	if len(tc.NewestQCRounds) != len(tc.SignerIDs) {
		return model.NewInvalidTCErrorf(tc, "%d signers but %d newest-QC rounds", len(tc.SignerIDs), len(tc.NewestQCRounds))
	}

	signers := make(nimbus.ValidatorList, 0, len(tc.SignerIDs))
	seen := make(map[nimbus.Identifier]struct{}, len(tc.SignerIDs))
	accumulatedWeight := uint64(0)
	for _, signerID := range tc.SignerIDs {
		if _, dup := seen[signerID]; dup {
			return model.NewInvalidTCErrorf(tc, "duplicated signer %v", signerID)
		}
		seen[signerID] = struct{}{}
		signer, err := v.committee.ValidatorByID(signerID)
		if err != nil {
			if model.IsInvalidSignerError(err) {
				return model.NewInvalidTCErrorf(tc, "invalid signer: %w", err)
			}
			return fmt.Errorf("could not look up signer %v: %w", signerID, err)
		}
		signers = append(signers, signer)
		accumulatedWeight += signer.Weight
	}
	if accumulatedWeight < v.committee.QuorumThreshold() {
		return model.NewInvalidTCErrorf(tc, "signers have insufficient weight %d (threshold %d)", accumulatedWeight, v.committee.QuorumThreshold())
	}

	// the newest QC attached must be exactly the newest one any contributor
	// reported, otherwise a malicious aggregator could suppress progress
	highestReported := uint64(0)
	for _, qcRound := range tc.NewestQCRounds {
		if qcRound > highestReported {
			highestReported = qcRound
		}
		if qcRound > tc.Round {
			return model.NewInvalidTCErrorf(tc, "signer reports newest QC at round %d above the TC round %d", qcRound, tc.Round)
		}
	}
	if highestReported != tc.NewestQC.Round {
		return model.NewInvalidTCErrorf(tc, "attached QC is for round %d, but the highest reported round is %d", tc.NewestQC.Round, highestReported)
	}

	err := v.verifier.VerifyTC(signers, tc.SigData, tc.Round, tc.NewestQCRounds)
	if err != nil {
		if errors.Is(err, model.ErrInvalidSignature) || model.IsInsufficientSignaturesError(err) {
			return model.NewInvalidTCErrorf(tc, "invalid aggregated signature: %w", err)
		}
		return fmt.Errorf("could not verify TC signature: %w", err)
	}

	err = v.ValidateQC(tc.NewestQC)
	if err != nil {
		if model.IsInvalidQCError(err) {
			return model.NewInvalidTCErrorf(tc, "embedded QC is invalid: %w", err)
		}
		return fmt.Errorf("could not validate embedded QC: %w", err)
	}
	return nil
}

// ValidateProposal checks leader eligibility, epoch tagging, payload
// integrity, the embedded certificates and the proposer's signature.
// Expected errors during normal operation:
//   - model.InvalidProposalError
func (v *Validator) ValidateProposal(proposal *model.Proposal) error {
	block := proposal.Block

	if block.Epoch != v.committee.Epoch() {
		return model.NewInvalidProposalErrorf(proposal, "block is for epoch %d, current epoch is %d: %w", block.Epoch, v.committee.Epoch(), model.ErrEpochMismatch)
	}

	leader, err := v.committee.LeaderForRound(block.Round)
	if err != nil {
		if errors.Is(err, model.ErrViewForUnknownEpoch) {
			return model.NewInvalidProposalErrorf(proposal, "block round %d precedes the epoch: %w", block.Round, err)
		}
		return fmt.Errorf("could not determine leader for round %d: %w", block.Round, err)
	}
	if leader != block.ProposerID {
		return model.NewInvalidProposalErrorf(proposal, "proposer %v is not the leader %v of round %d", block.ProposerID, leader, block.Round)
	}

	if proposal.Payload == nil {
		return model.NewInvalidProposalErrorf(proposal, "proposal has no payload")
	}
	if proposal.Payload.Hash() != block.PayloadHash {
		return model.NewInvalidProposalErrorf(proposal, "payload does not match the block's payload hash")
	}

	// entry evidence: the block either extends the directly preceding round,
	// or it carries a TC proving that round timed out
	if block.Round <= block.QC.Round {
		return model.NewInvalidProposalErrorf(proposal, "block round %d is not above its QC round %d", block.Round, block.QC.Round)
	}
	if block.Round == block.QC.Round+1 {
		if proposal.LastRoundTC != nil {
			return model.NewInvalidProposalErrorf(proposal, "proposal carries a TC although the previous round produced a QC")
		}
	} else {
		tc := proposal.LastRoundTC
		if tc == nil {
			return model.NewInvalidProposalErrorf(proposal, "no TC for round %d although the block skips it", block.Round-1)
		}
		if tc.Round != block.Round-1 {
			return model.NewInvalidProposalErrorf(proposal, "TC is for round %d, expected round %d", tc.Round, block.Round-1)
		}
		if block.QC.Round < tc.NewestQC.Round {
			return model.NewInvalidProposalErrorf(proposal, "block's QC at round %d is older than the TC's newest QC at round %d", block.QC.Round, tc.NewestQC.Round)
		}
		err = v.ValidateTC(tc)
		if err != nil {
			if model.IsInvalidTCError(err) {
				return model.NewInvalidProposalErrorf(proposal, "invalid TC: %w", err)
			}
			return fmt.Errorf("could not validate TC: %w", err)
		}
	}

	err = v.ValidateQC(block.QC)
	if err != nil {
		if model.IsInvalidQCError(err) {
			return model.NewInvalidProposalErrorf(proposal, "invalid QC: %w", err)
		}
		return fmt.Errorf("could not validate QC: %w", err)
	}

	// the proposer's signature doubles as its vote
	vote := proposal.ProposerVote()
	_, err = v.ValidateVote(vote)
	if err != nil {
		if model.IsInvalidVoteError(err) {
			return model.NewInvalidProposalErrorf(proposal, "invalid proposer signature: %w", err)
		}
		return fmt.Errorf("could not validate proposer signature: %w", err)
	}
	return nil
}

// ValidateVote checks committee membership, epoch tagging and the signature.
// Expected errors during normal operation:
//   - model.InvalidVoteError
func (v *Validator) ValidateVote(vote *model.Vote) (*nimbus.Validator, error) {
	if vote.Epoch != v.committee.Epoch() {
		return nil, model.NewInvalidVoteErrorf(vote, "vote is for epoch %d, current epoch is %d: %w", vote.Epoch, v.committee.Epoch(), model.ErrEpochMismatch)
	}
	voter, err := v.committee.ValidatorByID(vote.SignerID)
	if err != nil {
		if model.IsInvalidSignerError(err) {
			return nil, model.NewInvalidVoteErrorf(vote, "invalid signer: %w", err)
		}
		return nil, fmt.Errorf("could not look up voter %v: %w", vote.SignerID, err)
	}
	err = v.verifier.VerifyVote(voter, vote.SigData, vote.BlockID, vote.Round)
	if err != nil {
		if errors.Is(err, model.ErrInvalidSignature) {
			return nil, model.NewInvalidVoteErrorf(vote, "invalid signature: %w", err)
		}
		return nil, fmt.Errorf("could not verify vote signature: %w", err)
	}
	return voter, nil
}

// ValidateTimeout checks committee membership, epoch tagging, the embedded
// certificates and the timeout signature.
// Expected errors during normal operation:
//   - model.InvalidTimeoutError
func (v *Validator) ValidateTimeout(timeout *model.TimeoutObject) (*nimbus.Validator, error) {
	if timeout.Epoch != v.committee.Epoch() {
		return nil, model.NewInvalidTimeoutErrorf(timeout, "timeout is for epoch %d, current epoch is %d: %w", timeout.Epoch, v.committee.Epoch(), model.ErrEpochMismatch)
	}
	signer, err := v.committee.ValidatorByID(timeout.SignerID)
	if err != nil {
		if model.IsInvalidSignerError(err) {
			return nil, model.NewInvalidTimeoutErrorf(timeout, "invalid signer: %w", err)
		}
		return nil, fmt.Errorf("could not look up signer %v: %w", timeout.SignerID, err)
	}
	if timeout.NewestQC == nil {
		return nil, model.NewInvalidTimeoutErrorf(timeout, "timeout must carry a newest QC")
	}
	if timeout.Round <= timeout.NewestQC.Round {
		return nil, model.NewInvalidTimeoutErrorf(timeout, "timeout round %d is not above its newest QC round %d", timeout.Round, timeout.NewestQC.Round)
	}
	// entry evidence, analogous to proposals
	if timeout.NewestQC.Round+1 != timeout.Round {
		tc := timeout.LastRoundTC
		if tc == nil {
			return nil, model.NewInvalidTimeoutErrorf(timeout, "no TC for round %d although the timeout skips it", timeout.Round-1)
		}
		if tc.Round != timeout.Round-1 {
			return nil, model.NewInvalidTimeoutErrorf(timeout, "TC is for round %d, expected round %d", tc.Round, timeout.Round-1)
		}
		if timeout.NewestQC.Round < tc.NewestQC.Round {
			return nil, model.NewInvalidTimeoutErrorf(timeout, "newest QC at round %d is older than the TC's newest QC at round %d", timeout.NewestQC.Round, tc.NewestQC.Round)
		}
		err = v.ValidateTC(tc)
		if err != nil {
			if model.IsInvalidTCError(err) {
				return nil, model.NewInvalidTimeoutErrorf(timeout, "invalid TC: %w", err)
			}
			return nil, fmt.Errorf("could not validate TC: %w", err)
		}
	}

	err = v.verifier.VerifyTimeout(signer, timeout.SigData, timeout.Round, timeout.NewestQC.Round)
	if err != nil {
		if errors.Is(err, model.ErrInvalidSignature) {
			return nil, model.NewInvalidTimeoutErrorf(timeout, "invalid signature: %w", err)
		}
		return nil, fmt.Errorf("could not verify timeout signature: %w", err)
	}

	err = v.ValidateQC(timeout.NewestQC)
	if err != nil {
		if model.IsInvalidQCError(err) {
			return nil, model.NewInvalidTimeoutErrorf(timeout, "embedded QC is invalid: %w", err)
		}
		return nil, fmt.Errorf("could not validate embedded QC: %w", err)
	}
	return signer, nil
}
