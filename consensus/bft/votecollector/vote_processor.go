package votecollector

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	bftsig "github.com/nimbuschain/nimbus-go/consensus/bft/signature"
	"github.com/nimbuschain/nimbus-go/consensus/bft/verification"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	msig "github.com/nimbuschain/nimbus-go/module/signature"
)

// VerifyingVoteProcessor verifies votes for one specific block and
// accumulates their weight. The first vote crossing the quorum threshold
// triggers QC construction exactly once.
//
// Safe for concurrent use.
type VerifyingVoteProcessor struct {
	log               zerolog.Logger
	block             *model.Block
	validator         bft.Validator
	aggregator        *bftsig.WeightedSignatureAggregator
	onQCCreated       bft.OnQCCreated
	minRequiredWeight uint64
	done              atomic.Bool
}

var _ bft.VoteProcessor = (*VerifyingVoteProcessor)(nil)

// Status returns the processor status; a constructed processor is always
// verifying.
func (p *VerifyingVoteProcessor) Status() bft.VoteCollectorStatus {
	return bft.VoteCollectorStatusVerifying
}

// Block returns the block this processor aggregates votes for.
func (p *VerifyingVoteProcessor) Block() *model.Block {
	return p.block
}

// Process verifies the vote and adds its weight. Duplicates are ignored.
// Expected errors during normal operation:
//   - model.VoteForIncompatibleRoundError / model.VoteForIncompatibleBlockError
//   - model.InvalidVoteError for cryptographically invalid votes
func (p *VerifyingVoteProcessor) Process(vote *model.Vote) error {
	if vote.Round != p.block.Round {
		return model.VoteForIncompatibleRoundError
	}
	if vote.BlockID != p.block.BlockID {
		return model.VoteForIncompatibleBlockError
	}
	if p.done.Load() {
		return nil
	}
	_, err := p.validator.ValidateVote(vote)
	if err != nil {
		if model.IsInvalidVoteError(err) {
			return err
		}
		return fmt.Errorf("could not validate vote %v: %w", vote.ID(), err)
	}

	totalWeight, err := p.aggregator.TrustedAdd(vote.SignerID, vote.SigData)
	if err != nil {
		if model.IsDuplicatedSignerError(err) {
			return nil
		}
		return fmt.Errorf("could not aggregate vote %v: %w", vote.ID(), err)
	}
	p.log.Debug().
		Uint64("round", vote.Round).
		Uint64("total_weight", totalWeight).
		Uint64("required_weight", p.minRequiredWeight).
		Msg("vote aggregated")
	if totalWeight < p.minRequiredWeight {
		return nil
	}

	// only one goroutine assembles the certificate
	if !p.done.CompareAndSwap(false, true) {
		return nil
	}
	qc, err := p.buildQC()
	if err != nil {
		return fmt.Errorf("could not build QC for block %v: %w", p.block.BlockID, err)
	}
	p.onQCCreated(qc)
	return nil
}

func (p *VerifyingVoteProcessor) buildQC() (*nimbus.QuorumCertificate, error) {
	signerIDs, sigData, err := p.aggregator.Aggregate()
	if err != nil {
		return nil, fmt.Errorf("could not aggregate signatures: %w", err)
	}
	qc, err := nimbus.NewQuorumCertificate(nimbus.UntrustedQuorumCertificate{
		Epoch:     p.block.Epoch,
		Round:     p.block.Round,
		BlockID:   p.block.BlockID,
		SignerIDs: signerIDs,
		SigData:   sigData,
	})
	if err != nil {
		return nil, fmt.Errorf("could not construct QC: %w", err)
	}
	return qc, nil
}

// VoteProcessorFactory creates a VerifyingVoteProcessor for a proposal. The
// proposal must already have passed protocol validation.
type VoteProcessorFactory struct {
	committee   bft.Replicas
	validator   bft.Validator
	onQCCreated bft.OnQCCreated
}

func NewVoteProcessorFactory(committee bft.Replicas, validator bft.Validator, onQCCreated bft.OnQCCreated) *VoteProcessorFactory {
	return &VoteProcessorFactory{
		committee:   committee,
		validator:   validator,
		onQCCreated: onQCCreated,
	}
}

// Create instantiates a processor for the proposal's block and feeds the
// proposer's own vote into it. An invalid proposer vote is a sign that the
// proposal slipped through validation and is returned as an error.
func (f *VoteProcessorFactory) Create(log zerolog.Logger, proposal *model.Proposal) (*VerifyingVoteProcessor, error) {
	block := proposal.Block
	msg := verification.MakeVoteMessage(block.Round, block.BlockID)
	aggregator, err := bftsig.NewWeightedSignatureAggregator(f.committee.Validators(), msg, msig.ConsensusVoteTag)
	if err != nil {
		return nil, fmt.Errorf("could not create signature aggregator for block %v: %w", block.BlockID, err)
	}
	processor := &VerifyingVoteProcessor{
		log: log.With().
			Uint64("round", block.Round).
			Logger(),
		block:             block,
		validator:         f.validator,
		aggregator:        aggregator,
		onQCCreated:       f.onQCCreated,
		minRequiredWeight: f.committee.QuorumThreshold(),
	}
	err = processor.Process(proposal.ProposerVote())
	if err != nil {
		if errors.Is(err, model.VoteForIncompatibleBlockError) || errors.Is(err, model.VoteForIncompatibleRoundError) {
			return nil, fmt.Errorf("proposer vote does not match its own proposal: %w", err)
		}
		return nil, fmt.Errorf("could not process proposer vote for block %v: %w", block.BlockID, err)
	}
	return processor, nil
}
