package notifications

import (
	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// LogConsumer writes a structured log line for every notification. Expected
// events log at debug/info; Byzantine evidence logs at warn.
type LogConsumer struct {
	log zerolog.Logger
}

var _ bft.Consumer = (*LogConsumer)(nil)

func NewLogConsumer(log zerolog.Logger) *LogConsumer {
	return &LogConsumer{log: log}
}

func (lc *LogConsumer) OnEnteringRound(round uint64, leader nimbus.Identifier) {
	lc.log.Debug().
		Uint64("round", round).
		Hex("leader", leader[:]).
		Msg("entering round")
}

func (lc *LogConsumer) OnStartingTimeout(info model.TimerInfo) {
	lc.log.Debug().
		Uint64("round", info.Round).
		Dur("duration", info.Duration).
		Msg("starting round timeout")
}

func (lc *LogConsumer) OnLocalTimeout(round uint64) {
	lc.log.Debug().
		Uint64("round", round).
		Msg("local timeout fired")
}

func (lc *LogConsumer) OnPartialTimeoutCertificate(round uint64) {
	lc.log.Debug().
		Uint64("round", round).
		Msg("partial timeout certificate accumulated")
}

func (lc *LogConsumer) OnQCTriggeredRoundChange(qc *nimbus.QuorumCertificate, newRound uint64) {
	lc.log.Debug().
		Uint64("qc_round", qc.Round).
		Hex("qc_block_id", qc.BlockID[:]).
		Uint64("new_round", newRound).
		Msg("QC triggered round change")
}

func (lc *LogConsumer) OnTCTriggeredRoundChange(tc *nimbus.TimeoutCertificate, newRound uint64) {
	lc.log.Debug().
		Uint64("tc_round", tc.Round).
		Uint64("tc_newest_qc_round", tc.NewestQC.Round).
		Uint64("new_round", newRound).
		Msg("TC triggered round change")
}

func (lc *LogConsumer) OnReceiveProposal(curRound uint64, proposal *model.Proposal) {
	block := proposal.Block
	lc.log.Debug().
		Uint64("cur_round", curRound).
		Uint64("block_round", block.Round).
		Hex("block_id", block.BlockID[:]).
		Hex("proposer_id", block.ProposerID[:]).
		Uint64("qc_round", block.QC.Round).
		Msg("processing proposal")
}

func (lc *LogConsumer) OnProposingBlock(proposal *model.Proposal) {
	lc.log.Debug().
		Uint64("block_round", proposal.Block.Round).
		Hex("block_id", proposal.Block.BlockID[:]).
		Msg("proposing own block")
}

func (lc *LogConsumer) OnVoting(vote *model.Vote) {
	lc.log.Debug().
		Uint64("round", vote.Round).
		Hex("block_id", vote.BlockID[:]).
		Msg("voting for block")
}

func (lc *LogConsumer) OnBlockIncorporated(block *model.Block) {
	lc.log.Debug().
		Uint64("round", block.Round).
		Hex("block_id", block.BlockID[:]).
		Msg("block incorporated into tree")
}

func (lc *LogConsumer) OnQCConstructed(qc *nimbus.QuorumCertificate) {
	lc.log.Debug().
		Uint64("round", qc.Round).
		Hex("block_id", qc.BlockID[:]).
		Int("signers", len(qc.SignerIDs)).
		Msg("QC constructed from votes")
}

func (lc *LogConsumer) OnTCConstructed(tc *nimbus.TimeoutCertificate) {
	lc.log.Debug().
		Uint64("round", tc.Round).
		Int("signers", len(tc.SignerIDs)).
		Msg("TC constructed from timeouts")
}

func (lc *LogConsumer) OnBlockCommitted(block *model.CommittedBlock) {
	lc.log.Info().
		Uint64("round", block.Block.Round).
		Hex("block_id", block.Block.BlockID[:]).
		Hex("state_commitment", block.StateCommitment[:]).
		Msg("block committed")
}

func (lc *LogConsumer) OnEpochTransition(setup *nimbus.EpochSetup) {
	lc.log.Info().
		Uint64("epoch", setup.Counter).
		Uint64("first_round", setup.FirstRound).
		Int("committee_size", len(setup.Validators)).
		Msg("epoch transition")
}

func (lc *LogConsumer) OnDoubleProposeDetected(block *model.Block, alt *model.Block) {
	lc.log.Warn().
		Uint64("round", block.Round).
		Hex("block_id", block.BlockID[:]).
		Hex("alt_id", alt.BlockID[:]).
		Hex("proposer_id", block.ProposerID[:]).
		Msg("conflicting proposals detected")
}

func (lc *LogConsumer) OnDoubleVotingDetected(first *model.Vote, conflicting *model.Vote) {
	lc.log.Warn().
		Uint64("round", first.Round).
		Hex("first_block_id", first.BlockID[:]).
		Hex("conflicting_block_id", conflicting.BlockID[:]).
		Hex("voter_id", first.SignerID[:]).
		Msg("double voting detected")
}

func (lc *LogConsumer) OnDoubleTimeoutDetected(first *model.TimeoutObject, conflicting *model.TimeoutObject) {
	lc.log.Warn().
		Uint64("round", first.Round).
		Hex("signer_id", first.SignerID[:]).
		Msg("double timeout detected")
}

func (lc *LogConsumer) OnInvalidVoteDetected(err model.InvalidVoteError) {
	lc.log.Warn().
		Uint64("round", err.Round).
		Hex("vote_id", err.VoteID[:]).
		Msgf("invalid vote detected: %v", err.Err)
}

func (lc *LogConsumer) OnInvalidTimeoutDetected(err model.InvalidTimeoutError) {
	lc.log.Warn().
		Uint64("round", err.Round).
		Hex("timeout_id", err.TimeoutID[:]).
		Msgf("invalid timeout detected: %v", err.Err)
}
