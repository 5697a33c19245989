// Package eventhandler implements the round manager: the strictly
// single-threaded core of the consensus state machine. It reacts to
// proposals, certificates, local timeouts and sync info, one event at a
// time, and owns all Safety Rules decisions and Block Tree mutations.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/module"
)

// ChainCommitter finalizes the chain segments produced by the commit rule.
type ChainCommitter interface {
	CommitChain(committed []*model.CommittedBlock) error
}

// EventHandler orchestrates one validator's participation in consensus. All
// calls must be serialized by the event loop; the handler holds no locks.
//
// Proposals arriving for rounds ahead of the local round are cached and
// replayed once the round is entered. A QC certifying a block more than
// syncThreshold rounds ahead of the local round hands control to state sync.
type EventHandler struct {
	log               zerolog.Logger
	paceMaker         bft.PaceMaker
	blockProducer     bft.BlockProducer
	blockTree         bft.BlockTree
	safetyRules       bft.SafetyRules
	committer         ChainCommitter
	execution         module.ExecutionEngine
	committee         bft.Replicas
	communicator      bft.Communicator
	stateSync         module.StateSync
	voteAggregator    bft.VoteAggregator
	timeoutAggregator bft.TimeoutAggregator
	notifier          bft.Consumer
	syncThreshold     uint64

	// proposals for rounds this node has not entered yet, keyed by round
	pending map[uint64][]*model.Proposal
}

var _ bft.EventHandler = (*EventHandler)(nil)

func New(
	log zerolog.Logger,
	paceMaker bft.PaceMaker,
	blockProducer bft.BlockProducer,
	blockTree bft.BlockTree,
	safetyRules bft.SafetyRules,
	committer ChainCommitter,
	execution module.ExecutionEngine,
	committee bft.Replicas,
	communicator bft.Communicator,
	stateSync module.StateSync,
	voteAggregator bft.VoteAggregator,
	timeoutAggregator bft.TimeoutAggregator,
	notifier bft.Consumer,
	syncThreshold uint64,
) (*EventHandler, error) {
	if syncThreshold == 0 {
		return nil, model.NewConfigurationErrorf("sync threshold must be positive")
	}
	return &EventHandler{
		log:               log.With().Str("component", "event_handler").Logger(),
		paceMaker:         paceMaker,
		blockProducer:     blockProducer,
		blockTree:         blockTree,
		safetyRules:       safetyRules,
		committer:         committer,
		execution:         execution,
		committee:         committee,
		communicator:      communicator,
		stateSync:         stateSync,
		voteAggregator:    voteAggregator,
		timeoutAggregator: timeoutAggregator,
		notifier:          notifier,
		syncThreshold:     syncThreshold,
		pending:           make(map[uint64][]*model.Proposal),
	}, nil
}

// Start arms the pacemaker's deadline timers and enters the current round,
// proposing if this node is its leader.
func (e *EventHandler) Start(ctx context.Context) error {
	e.paceMaker.Start(ctx)
	return e.startCurrentRound()
}

// TimeoutChannel returns the pacemaker's deadline channel for the current
// round.
func (e *EventHandler) TimeoutChannel() <-chan time.Time {
	return e.paceMaker.TimeoutChannel()
}

// OnReceiveProposal processes a validated block proposal. The certificates
// embedded in the proposal stand on their own and are processed first; they
// may fast-forward the local round. Proposals for rounds not yet entered are
// cached, proposals for earlier rounds are incorporated without voting.
func (e *EventHandler) OnReceiveProposal(proposal *model.Proposal) error {
	block := proposal.Block
	curRound := e.paceMaker.CurRound()
	e.notifier.OnReceiveProposal(curRound, proposal)
	log := e.log.With().
		Uint64("cur_round", curRound).
		Uint64("block_round", block.Round).
		Hex("block_id", block.BlockID[:]).
		Logger()

	if block.Round <= e.blockTree.CommittedRound() {
		log.Debug().Msg("dropping proposal at or below the committed round")
		// the proposer is behind the committed chain; answer with the
		// newest certificates so it can catch up
		syncInfo, sErr := model.NewSyncInfo(e.paceMaker.NewestQC(), e.paceMaker.LastRoundTC())
		if sErr == nil {
			sErr = e.communicator.SendSyncInfo(syncInfo, block.ProposerID)
			if sErr != nil {
				log.Warn().Err(sErr).Msg("could not send sync info to lagging proposer")
			}
		}
		return nil
	}

	advancedQC, err := e.processQC(block.QC)
	if err != nil {
		return fmt.Errorf("could not process QC embedded in proposal %v: %w", block.BlockID, err)
	}
	advancedTC, err := e.processTC(proposal.LastRoundTC)
	if err != nil {
		return fmt.Errorf("could not process TC embedded in proposal %v: %w", block.BlockID, err)
	}
	if advancedQC || advancedTC {
		err = e.startCurrentRound()
		if err != nil {
			return fmt.Errorf("could not start round after certificate fast-forward: %w", err)
		}
	}

	curRound = e.paceMaker.CurRound()
	switch {
	case block.Round > curRound:
		if block.Round > curRound+e.syncThreshold {
			// the proposal's QC was within reach, the block itself is not;
			// once the gap closes the leader's rebroadcast or sync covers it
			log.Debug().Msg("dropping proposal too far ahead of the local round")
			return nil
		}
		e.pending[block.Round] = append(e.pending[block.Round], proposal)
		log.Debug().Msg("caching proposal for a future round")
		return nil
	case block.Round < curRound:
		// an earlier-round fork can still gather a QC; incorporate it, but
		// the voting opportunity has passed
		_, err = e.incorporateProposal(proposal)
		return err
	}
	return e.processProposalForCurrentRound(proposal)
}

// OnQCConstructed processes a QC assembled by the local vote aggregator.
func (e *EventHandler) OnQCConstructed(qc *nimbus.QuorumCertificate) error {
	e.notifier.OnQCConstructed(qc)
	e.log.Debug().
		Uint64("qc_round", qc.Round).
		Hex("block_id", qc.BlockID[:]).
		Msg("QC constructed from collected votes")

	advanced, err := e.processQC(qc)
	if err != nil {
		return fmt.Errorf("could not process constructed QC for round %d: %w", qc.Round, err)
	}
	if !advanced {
		return nil
	}
	return e.startCurrentRound()
}

// OnTCConstructed processes a TC assembled by the local timeout aggregator.
func (e *EventHandler) OnTCConstructed(tc *nimbus.TimeoutCertificate) error {
	e.notifier.OnTCConstructed(tc)
	e.log.Debug().
		Uint64("tc_round", tc.Round).
		Uint64("newest_qc_round", tc.NewestQC.Round).
		Msg("TC constructed from collected timeouts")

	advanced, err := e.processTC(tc)
	if err != nil {
		return fmt.Errorf("could not process constructed TC for round %d: %w", tc.Round, err)
	}
	if !advanced {
		return nil
	}
	return e.startCurrentRound()
}

// OnLocalTimeout processes the expiry of the current round's deadline: sign a
// timeout object and broadcast it. The pacemaker re-arms the channel for
// rebroadcast; the timeout signature is deterministic, so rebroadcasts are
// bit-identical and never count as equivocation.
func (e *EventHandler) OnLocalTimeout() error {
	curRound := e.paceMaker.CurRound()
	e.notifier.OnLocalTimeout(curRound)

	timeout, err := e.safetyRules.ProduceTimeout(curRound, e.paceMaker.NewestQC(), e.paceMaker.LastRoundTC())
	if err != nil {
		if model.IsNoTimeoutError(err) {
			e.log.Warn().Err(err).Uint64("round", curRound).Msg("not permitted to time out round")
			return nil
		}
		return fmt.Errorf("could not produce timeout for round %d: %w", curRound, err)
	}

	e.log.Debug().Uint64("round", curRound).Msg("broadcasting timeout")
	err = e.communicator.BroadcastTimeout(timeout)
	if err != nil {
		e.log.Warn().Err(err).Msg("could not broadcast timeout")
	}
	// our own contribution counts towards the partial and full TC
	e.timeoutAggregator.AddTimeout(timeout)
	return nil
}

// OnPartialTimeoutCertificate processes the accumulation of f+1 timeout
// weight for a round: if it is the current round, the pacemaker fires the
// local timeout immediately.
func (e *EventHandler) OnPartialTimeoutCertificate(round uint64) error {
	e.paceMaker.OnPartialTimeoutCertificate(round)
	return nil
}

// OnReceiveSyncInfo processes a peer's newest certificates, which may
// fast-forward the local round or escalate to state sync.
func (e *EventHandler) OnReceiveSyncInfo(syncInfo *model.SyncInfo) error {
	advancedQC, err := e.processQC(syncInfo.HighestQC)
	if err != nil {
		return fmt.Errorf("could not process QC from sync info: %w", err)
	}
	advancedTC, err := e.processTC(syncInfo.HighestTC)
	if err != nil {
		return fmt.Errorf("could not process TC from sync info: %w", err)
	}
	if !advancedQC && !advancedTC {
		return nil
	}
	return e.startCurrentRound()
}

// startCurrentRound enters the pacemaker's current round: replays cached
// proposals for the round and, if this node is the round's leader, builds and
// broadcasts a proposal.
func (e *EventHandler) startCurrentRound() error {
	curRound := e.paceMaker.CurRound()
	leader, err := e.committee.LeaderForRound(curRound)
	if err != nil {
		return fmt.Errorf("could not determine leader for round %d: %w", curRound, err)
	}
	e.notifier.OnEnteringRound(curRound, leader)
	e.log.Info().
		Uint64("round", curRound).
		Hex("leader", leader[:]).
		Msg("entering round")

	for round := range e.pending {
		if round < curRound {
			delete(e.pending, round)
		}
	}
	replay := e.pending[curRound]
	delete(e.pending, curRound)
	for _, proposal := range replay {
		err = e.processProposalForCurrentRound(proposal)
		if err != nil {
			return fmt.Errorf("could not replay cached proposal %v: %w", proposal.Block.BlockID, err)
		}
		if e.paceMaker.CurRound() != curRound {
			// a replayed proposal can never fast-forward the round; its
			// certificates were processed when it was cached
			return fmt.Errorf("round advanced from %d to %d while replaying cached proposals", curRound, e.paceMaker.CurRound())
		}
	}

	if leader != e.committee.Self() {
		return nil
	}
	return e.proposeForCurrentRound(curRound)
}

// proposeForCurrentRound builds, signs and broadcasts this node's proposal as
// the round's leader. The proposal embeds the proposer's vote, so the safety
// state is raised and persisted before the proposal leaves the node.
func (e *EventHandler) proposeForCurrentRound(curRound uint64) error {
	newestQC := e.paceMaker.NewestQC()
	lastRoundTC := e.paceMaker.LastRoundTC()
	if newestQC.Round+1 != curRound && lastRoundTC == nil {
		return fmt.Errorf("leader of round %d has no entry evidence: newest QC is for round %d and no TC is known", curRound, newestQC.Round)
	}
	proposal, err := e.blockProducer.MakeBlockProposal(curRound, newestQC, lastRoundTC)
	if err != nil {
		return fmt.Errorf("could not build proposal for round %d: %w", curRound, err)
	}

	// the embedded proposer signature doubles as this node's vote for the
	// round; it must not leave the node unless voting is safe
	_, err = e.safetyRules.ProduceVote(proposal, curRound)
	if err != nil {
		if model.IsNoVoteError(err) {
			e.log.Warn().Err(err).Uint64("round", curRound).Msg("refusing to propose: voting for own proposal is not safe")
			return nil
		}
		return fmt.Errorf("could not vote for own proposal in round %d: %w", curRound, err)
	}

	e.notifier.OnProposingBlock(proposal)
	e.log.Info().
		Uint64("round", curRound).
		Hex("block_id", proposal.Block.BlockID[:]).
		Msg("proposing block")
	err = e.communicator.BroadcastProposal(proposal, e.paceMaker.BlockRateDelay())
	if err != nil {
		e.log.Warn().Err(err).Msg("could not broadcast proposal")
	}

	_, err = e.incorporateProposal(proposal)
	return err
}

// processProposalForCurrentRound incorporates the proposal into the block
// tree and, if the safety rules permit, votes for it. The vote goes to the
// next round's leader, who aggregates the round's votes into a QC.
func (e *EventHandler) processProposalForCurrentRound(proposal *model.Proposal) error {
	block := proposal.Block
	curRound := e.paceMaker.CurRound()

	ok, err := e.incorporateProposal(proposal)
	if err != nil {
		return err
	}
	if !ok {
		// without a speculative execution result we cannot attest to the
		// block's state commitment
		return nil
	}

	vote, err := e.safetyRules.ProduceVote(proposal, curRound)
	if err != nil {
		if model.IsNoVoteError(err) {
			e.log.Debug().Err(err).
				Uint64("round", block.Round).
				Hex("block_id", block.BlockID[:]).
				Msg("not voting for proposal")
			return nil
		}
		return fmt.Errorf("could not produce vote for block %v: %w", block.BlockID, err)
	}
	e.notifier.OnVoting(vote)

	nextLeader, err := e.committee.LeaderForRound(curRound + 1)
	if err != nil {
		return fmt.Errorf("could not determine leader for round %d: %w", curRound+1, err)
	}
	if nextLeader == e.committee.Self() {
		e.voteAggregator.AddVote(vote)
		return nil
	}
	err = e.communicator.SendVote(vote, nextLeader)
	if err != nil {
		e.log.Warn().Err(err).Hex("recipient", nextLeader[:]).Msg("could not send vote")
	}
	return nil
}

// incorporateProposal speculatively executes the block and adds it to the
// block tree. It returns whether the block is now part of the tree; a missing
// parent or a failed execution means the block cannot be voted for, which is
// expected during normal operation and not an error.
func (e *EventHandler) incorporateProposal(proposal *model.Proposal) (bool, error) {
	block := proposal.Block
	if _, known := e.blockTree.GetBlock(block.BlockID); known {
		return true, nil
	}
	parentState, known := e.blockTree.GetStateCommitment(block.QC.BlockID)
	if !known {
		e.log.Debug().
			Uint64("round", block.Round).
			Hex("block_id", block.BlockID[:]).
			Hex("parent_id", block.QC.BlockID[:]).
			Msg("cannot incorporate proposal: parent not in block tree")
		return false, nil
	}

	// the embedded QC may newly certify the parent, which can move commits
	_, err := e.processQC(block.QC)
	if err != nil {
		return false, fmt.Errorf("could not incorporate parent QC of block %v: %w", block.BlockID, err)
	}

	stateCommitment, err := e.execution.SpeculativelyExecute(block, proposal.Payload, parentState)
	if err != nil {
		e.log.Warn().Err(err).
			Uint64("round", block.Round).
			Hex("block_id", block.BlockID[:]).
			Msg("speculative execution failed, cannot vote for block")
		return false, nil
	}

	err = e.blockTree.AddBlock(block, stateCommitment)
	if err != nil {
		if model.IsInvalidQCError(err) {
			e.log.Warn().Err(err).Hex("block_id", block.BlockID[:]).Msg("proposal inconsistent with its parent")
			return false, nil
		}
		var missingParent model.MissingParentError
		if errors.As(err, &missingParent) {
			return false, nil
		}
		return false, fmt.Errorf("could not add block %v to the block tree: %w", block.BlockID, err)
	}
	e.blockProducer.RecordPayload(block.BlockID, proposal.Payload)
	e.notifier.OnBlockIncorporated(block)

	err = e.voteAggregator.AddBlock(proposal)
	if err != nil {
		return false, fmt.Errorf("could not hand proposal %v to the vote aggregator: %w", block.BlockID, err)
	}
	return true, nil
}

// processQC incorporates the QC into the block tree, applies any resulting
// commits and notifies the pacemaker. It returns whether the local round
// advanced. A QC certifying a block more than syncThreshold rounds ahead of
// the local round escalates to state sync; on success the protocol state is
// re-anchored at the synced boundary before the QC is processed.
func (e *EventHandler) processQC(qc *nimbus.QuorumCertificate) (bool, error) {
	if qc == nil {
		return false, nil
	}

	if _, known := e.blockTree.GetBlock(qc.BlockID); !known && qc.Round > e.paceMaker.CurRound()+e.syncThreshold {
		e.log.Warn().
			Uint64("qc_round", qc.Round).
			Uint64("cur_round", e.paceMaker.CurRound()).
			Msg("local chain is too far behind the certified chain, handing off to state sync")
		boundary, err := e.stateSync.Sync(qc)
		if err != nil {
			return false, fmt.Errorf("state sync towards round %d failed: %w", qc.Round, err)
		}
		err = e.resumeFromSyncedBoundary(boundary)
		if err != nil {
			return false, fmt.Errorf("could not resume consensus after state sync to round %d: %w", boundary.Block.Round, err)
		}
	}

	committed, err := e.blockTree.AddQC(qc)
	if err != nil {
		return false, fmt.Errorf("could not incorporate QC for round %d: %w", qc.Round, err)
	}
	if len(committed) > 0 {
		err = e.committer.CommitChain(committed)
		if err != nil {
			return false, fmt.Errorf("could not commit chain segment: %w", err)
		}
		committedRound := e.blockTree.CommittedRound()
		e.voteAggregator.PruneUpToRound(committedRound + 1)
		e.timeoutAggregator.PruneUpToRound(committedRound + 1)
	}

	newRound, err := e.paceMaker.ProcessQC(qc)
	if err != nil {
		return false, fmt.Errorf("pacemaker could not process QC for round %d: %w", qc.Round, err)
	}
	return newRound != nil, nil
}

// resumeFromSyncedBoundary re-anchors the in-memory protocol state on the
// committed boundary delivered by state sync: the block tree restarts at the
// boundary, the safety watermark advances to it and the aggregators drop all
// state for rounds the chain has moved past. The boundary's blocks were
// committed by their proposers' committees, not by this node, so no commit
// notifications are emitted for them.
func (e *EventHandler) resumeFromSyncedBoundary(boundary *model.CommittedBlock) error {
	err := e.blockTree.Reanchor(boundary)
	if err != nil {
		return fmt.Errorf("could not reanchor block tree at synced block %v: %w", boundary.Block.BlockID, err)
	}
	err = e.safetyRules.CommitRound(boundary.Block.Round)
	if err != nil {
		return fmt.Errorf("could not advance safety state to synced round %d: %w", boundary.Block.Round, err)
	}
	committedRound := e.blockTree.CommittedRound()
	e.voteAggregator.PruneUpToRound(committedRound + 1)
	e.timeoutAggregator.PruneUpToRound(committedRound + 1)
	e.log.Info().
		Uint64("committed_round", committedRound).
		Hex("block_id", boundary.Block.BlockID[:]).
		Msg("state sync complete, consensus re-anchored at synced boundary")
	return nil
}

// processTC feeds the TC and its embedded newest QC into the protocol state.
// It returns whether the local round advanced. Accepts nil input.
func (e *EventHandler) processTC(tc *nimbus.TimeoutCertificate) (bool, error) {
	if tc == nil {
		return false, nil
	}
	advancedQC, err := e.processQC(tc.NewestQC)
	if err != nil {
		return false, fmt.Errorf("could not process newest QC embedded in TC for round %d: %w", tc.Round, err)
	}
	newRound, err := e.paceMaker.ProcessTC(tc)
	if err != nil {
		return false, fmt.Errorf("pacemaker could not process TC for round %d: %w", tc.Round, err)
	}
	return advancedQC || newRound != nil, nil
}
