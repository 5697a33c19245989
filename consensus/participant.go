// Package consensus assembles a full consensus participant for one epoch:
// storage, safety rules, pacemaker, block tree, aggregators, event handler
// and event loop, wired together and recovered from durable state.
//
// An epoch change is a barrier: the participant for the old epoch is shut
// down and a new one is built from the next epoch's setup. No component is
// shared across epochs except the database.
package consensus

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/blockproducer"
	"github.com/nimbuschain/nimbus-go/consensus/bft/committees"
	"github.com/nimbuschain/nimbus-go/consensus/bft/committer"
	"github.com/nimbuschain/nimbus-go/consensus/bft/commitrule"
	"github.com/nimbuschain/nimbus-go/consensus/bft/eventhandler"
	"github.com/nimbuschain/nimbus-go/consensus/bft/eventloop"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/pacemaker"
	"github.com/nimbuschain/nimbus-go/consensus/bft/pacemaker/timeout"
	"github.com/nimbuschain/nimbus-go/consensus/bft/persister"
	"github.com/nimbuschain/nimbus-go/consensus/bft/safetyrules"
	"github.com/nimbuschain/nimbus-go/consensus/bft/timeoutaggregator"
	"github.com/nimbuschain/nimbus-go/consensus/bft/validator"
	"github.com/nimbuschain/nimbus-go/consensus/bft/verification"
	"github.com/nimbuschain/nimbus-go/consensus/bft/voteaggregator"
	"github.com/nimbuschain/nimbus-go/consensus/bft/votecollector"
	"github.com/nimbuschain/nimbus-go/consensus/recovery"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/module"
	bstorage "github.com/nimbuschain/nimbus-go/storage/badger"
)

// Config carries the node-operator tunables of a participant.
type Config struct {
	// ChainID isolates the consensus state of different chains sharing a
	// database.
	ChainID string
	// Timeout parameterizes the pacemaker's round deadlines and backoff.
	Timeout timeout.Config
	// MaxBatchSize caps the number of transactions pulled into one block.
	MaxBatchSize uint
	// SyncThreshold is the number of rounds the certified chain may be
	// ahead of the local round before consensus hands off to state sync.
	SyncThreshold uint64
}

// DefaultConfig returns the configuration used in production deployments.
func DefaultConfig() Config {
	return Config{
		ChainID:       "main",
		Timeout:       timeout.NewDefaultConfig(),
		MaxBatchSize:  500,
		SyncThreshold: 30,
	}
}

// Participant is one validator's running consensus engine for one epoch. The
// Submit methods form the ingestion boundary for network messages: they
// validate (or hand off to validating components) and never crash on
// malformed input.
type Participant struct {
	log               zerolog.Logger
	epoch             uint64
	committee         bft.Replicas
	validator         bft.Validator
	loop              *eventloop.EventLoop
	voteAggregator    bft.VoteAggregator
	timeoutAggregator bft.TimeoutAggregator
}

// NewParticipant wires a consensus participant for the given epoch,
// recovering all durable state from the database. The database must have
// been bootstrapped (or transitioned) for this epoch beforehand.
func NewParticipant(
	log zerolog.Logger,
	me module.Local,
	setup *nimbus.EpochSetup,
	db *badger.DB,
	mempool module.Mempool,
	execution module.ExecutionEngine,
	stateSync module.StateSync,
	communicator bft.Communicator,
	cfg Config,
	extraConsumers ...bft.Consumer,
) (*Participant, error) {
	log = log.With().Str("chain", cfg.ChainID).Uint64("epoch", setup.Counter).Logger()

	committee, err := committees.NewCommittee(setup, me.NodeID())
	if err != nil {
		return nil, fmt.Errorf("could not build committee: %w", err)
	}
	commitRule, err := commitrule.ForPolicy(setup.CommitPolicy)
	if err != nil {
		return nil, fmt.Errorf("could not select commit rule: %w", err)
	}

	blocks := bstorage.NewBlocks(db)
	persist := persister.New(db, cfg.ChainID)
	recovered, err := recovery.RecoverState(log, blocks, persist, commitRule)
	if err != nil {
		return nil, fmt.Errorf("could not recover consensus state: %w", err)
	}
	if recovered.SafetyData.Epoch != setup.Counter {
		return nil, fmt.Errorf("persisted state is for epoch %d, setup is for epoch %d (epoch transition not applied?)",
			recovered.SafetyData.Epoch, setup.Counter)
	}

	notifier := CreateNotifier(log, extraConsumers...)
	signer := verification.NewSigner(me)
	protocolValidator := validator.New(committee, verification.NewVerifier())

	safetyRules, err := safetyrules.New(signer, persist, committee)
	if err != nil {
		return nil, fmt.Errorf("could not initialize safety rules: %w", err)
	}
	paceMaker, err := pacemaker.New(timeout.NewController(cfg.Timeout), notifier, persist)
	if err != nil {
		return nil, fmt.Errorf("could not initialize pacemaker: %w", err)
	}
	blockProducer, err := blockproducer.New(log, committee, signer, mempool, recovered.BlockTree, cfg.MaxBatchSize)
	if err != nil {
		return nil, fmt.Errorf("could not initialize block producer: %w", err)
	}
	chainCommitter := committer.New(log, blocks, execution, safetyRules, recovered.BlockTree, notifier)

	// the event loop exists only after the handler, which needs the
	// aggregators, whose construction callbacks feed the loop; the closures
	// below resolve the cycle and fire only once the loop runs
	var loop *eventloop.EventLoop

	voteFactory := votecollector.NewVoteProcessorFactory(committee, protocolValidator, func(qc *nimbus.QuorumCertificate) {
		loop.OnQCConstructed(qc)
	})
	lowestRetained := recovered.BlockTree.CommittedRound() + 1
	voteAggregator, err := voteaggregator.New(log, notifier, voteFactory, lowestRetained)
	if err != nil {
		return nil, fmt.Errorf("could not initialize vote aggregator: %w", err)
	}
	timeoutAggregator, err := timeoutaggregator.New(
		log,
		notifier,
		committee,
		protocolValidator,
		func(round uint64) { loop.OnPartialTimeoutCertificate(round) },
		func(tc *nimbus.TimeoutCertificate) { loop.OnTCConstructed(tc) },
		lowestRetained,
	)
	if err != nil {
		return nil, fmt.Errorf("could not initialize timeout aggregator: %w", err)
	}

	handler, err := eventhandler.New(
		log,
		paceMaker,
		blockProducer,
		recovered.BlockTree,
		safetyRules,
		chainCommitter,
		execution,
		committee,
		communicator,
		stateSync,
		voteAggregator,
		timeoutAggregator,
		notifier,
		cfg.SyncThreshold,
	)
	if err != nil {
		return nil, fmt.Errorf("could not initialize event handler: %w", err)
	}
	loop = eventloop.New(log, handler)

	return &Participant{
		log:               log,
		epoch:             setup.Counter,
		committee:         committee,
		validator:         protocolValidator,
		loop:              loop,
		voteAggregator:    voteAggregator,
		timeoutAggregator: timeoutAggregator,
	}, nil
}

// Run starts the aggregators and the event loop, and blocks until the
// context is cancelled or the engine fails. The engine is fail-stop: a
// returned error means this node must not continue participating.
func (p *Participant) Run(ctx context.Context) error {
	p.voteAggregator.Start()
	p.timeoutAggregator.Start()

	var errs *multierror.Error
	if err := p.loop.Run(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := p.voteAggregator.Stop(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("could not stop vote aggregator: %w", err))
	}
	if err := p.timeoutAggregator.Stop(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("could not stop timeout aggregator: %w", err))
	}
	return errs.ErrorOrNil()
}

// SubmitProposal ingests a block proposal received from the network. Invalid
// proposals are dropped here; their votes are retained by the aggregator
// only as equivocation evidence.
func (p *Participant) SubmitProposal(proposal *model.Proposal) {
	if proposal.Block.Epoch != p.epoch {
		p.log.Debug().
			Uint64("proposal_epoch", proposal.Block.Epoch).
			Msg("dropping proposal from another epoch")
		return
	}
	err := p.validator.ValidateProposal(proposal)
	if err != nil {
		if model.IsInvalidProposalError(err) {
			p.log.Warn().Err(err).
				Hex("block_id", proposal.Block.BlockID[:]).
				Hex("proposer", proposal.Block.ProposerID[:]).
				Msg("dropping invalid proposal")
			err = p.voteAggregator.InvalidBlock(proposal)
			if err != nil {
				p.log.Error().Err(err).Msg("could not register invalid proposal")
			}
			return
		}
		p.log.Error().Err(err).Msg("unexpected error validating proposal")
		return
	}
	p.loop.SubmitProposal(proposal)
}

// SubmitVote ingests a vote received from the network. Verification happens
// on the vote aggregator's workers, off the event loop.
func (p *Participant) SubmitVote(vote *model.Vote) {
	p.voteAggregator.AddVote(vote)
}

// SubmitTimeout ingests a timeout object received from the network.
func (p *Participant) SubmitTimeout(timeoutObject *model.TimeoutObject) {
	p.timeoutAggregator.AddTimeout(timeoutObject)
}

// SubmitSyncInfo ingests a peer's newest certificates.
func (p *Participant) SubmitSyncInfo(syncInfo *model.SyncInfo) {
	p.loop.SubmitSyncInfo(syncInfo)
}
