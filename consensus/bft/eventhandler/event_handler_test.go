package eventhandler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/blocktree"
	"github.com/nimbuschain/nimbus-go/consensus/bft/commitrule"
	"github.com/nimbuschain/nimbus-go/consensus/bft/committees"
	"github.com/nimbuschain/nimbus-go/consensus/bft/helper"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/notifications"
	"github.com/nimbuschain/nimbus-go/consensus/bft/pacemaker"
	"github.com/nimbuschain/nimbus-go/consensus/bft/pacemaker/timeout"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// memPersister keeps the pacemaker's liveness state in memory.
type memPersister struct {
	livenessData *bft.LivenessData
}

func (p *memPersister) GetSafetyData() (*bft.SafetyData, error) { panic("not used") }
func (p *memPersister) PutSafetyData(*bft.SafetyData) error     { panic("not used") }

func (p *memPersister) GetLivenessData() (*bft.LivenessData, error) {
	data := *p.livenessData
	return &data, nil
}

func (p *memPersister) PutLivenessData(livenessData *bft.LivenessData) error {
	data := *livenessData
	p.livenessData = &data
	return nil
}

// fakeSafetyRules signs everything once per round without the locking rules;
// those are covered by the safetyrules package tests.
type fakeSafetyRules struct {
	selfID       nimbus.Identifier
	highestVoted uint64
	refuse       bool
	votes        []*model.Vote
	timeouts     []*model.TimeoutObject
	committed    []uint64
}

func (f *fakeSafetyRules) ProduceVote(proposal *model.Proposal, curRound uint64) (*model.Vote, error) {
	if f.refuse || proposal.Block.Round != curRound || proposal.Block.Round <= f.highestVoted {
		return nil, model.NewNoVoteErrorf("refusing to vote for round %d", proposal.Block.Round)
	}
	f.highestVoted = proposal.Block.Round
	vote := helper.MakeVote(
		helper.WithVoteBlock(proposal.Block),
		helper.WithVoteSigner(f.selfID),
	)
	f.votes = append(f.votes, vote)
	return vote, nil
}

func (f *fakeSafetyRules) ProduceTimeout(curRound uint64, newestQC *nimbus.QuorumCertificate, lastRoundTC *nimbus.TimeoutCertificate) (*model.TimeoutObject, error) {
	if f.refuse {
		return nil, model.NewNoTimeoutErrorf("refusing to time out round %d", curRound)
	}
	if curRound > f.highestVoted {
		f.highestVoted = curRound
	}
	timeoutObject := helper.MakeTimeoutObject(
		helper.WithTimeoutRound(curRound),
		helper.WithTimeoutNewestQC(newestQC),
		helper.WithTimeoutLastRoundTC(lastRoundTC),
		helper.WithTimeoutSigner(f.selfID),
	)
	f.timeouts = append(f.timeouts, timeoutObject)
	return timeoutObject, nil
}

func (f *fakeSafetyRules) CommitRound(round uint64) error {
	f.committed = append(f.committed, round)
	return nil
}

// fakeCommitter records commit batches and prunes the tree the way the real
// committer does.
type fakeCommitter struct {
	tree    bft.BlockTree
	batches [][]*model.CommittedBlock
}

func (f *fakeCommitter) CommitChain(committed []*model.CommittedBlock) error {
	if len(committed) == 0 {
		return nil
	}
	f.batches = append(f.batches, committed)
	return f.tree.Prune(committed[len(committed)-1].Block.BlockID)
}

// fakeExecution hands out fresh state commitments, failing for marked blocks.
type fakeExecution struct {
	failOn map[nimbus.Identifier]struct{}
}

func (f *fakeExecution) SpeculativelyExecute(block *model.Block, payload *nimbus.Payload, parentState nimbus.StateCommitment) (nimbus.StateCommitment, error) {
	if _, fail := f.failOn[block.BlockID]; fail {
		return nimbus.DummyStateCommitment, fmt.Errorf("transaction aborted")
	}
	return helper.MakeStateCommitment(), nil
}

func (f *fakeExecution) Commit(blockID nimbus.Identifier, state nimbus.StateCommitment) error {
	return nil
}

// fakeCommunicator records outbound traffic.
type fakeCommunicator struct {
	proposals []*model.Proposal
	votes     []*model.Vote
	timeouts  []*model.TimeoutObject
	syncInfos []*model.SyncInfo
}

func (f *fakeCommunicator) BroadcastProposal(proposal *model.Proposal, delay time.Duration) error {
	f.proposals = append(f.proposals, proposal)
	return nil
}

func (f *fakeCommunicator) SendVote(vote *model.Vote, recipientID nimbus.Identifier) error {
	f.votes = append(f.votes, vote)
	return nil
}

func (f *fakeCommunicator) BroadcastTimeout(timeoutObject *model.TimeoutObject) error {
	f.timeouts = append(f.timeouts, timeoutObject)
	return nil
}

func (f *fakeCommunicator) SendSyncInfo(syncInfo *model.SyncInfo, recipientID nimbus.Identifier) error {
	f.syncInfos = append(f.syncInfos, syncInfo)
	return nil
}

// fakeBlockProducer builds unsigned proposals with empty payloads.
type fakeBlockProducer struct {
	proposerID nimbus.Identifier
	payloads   map[nimbus.Identifier]*nimbus.Payload
}

func (f *fakeBlockProducer) MakeBlockProposal(curRound uint64, newestQC *nimbus.QuorumCertificate, lastRoundTC *nimbus.TimeoutCertificate) (*model.Proposal, error) {
	payload := &nimbus.Payload{}
	block := model.NewBlock(curRound, 1, f.proposerID, newestQC, payload.Hash(), time.Now().UTC())
	return &model.Proposal{
		Block:       block,
		Payload:     payload,
		LastRoundTC: lastRoundTC,
		SigData:     helper.MakeSigData(),
	}, nil
}

func (f *fakeBlockProducer) RecordPayload(blockID nimbus.Identifier, payload *nimbus.Payload) {
	f.payloads[blockID] = payload
}

type fakeVoteAggregator struct {
	votes     []*model.Vote
	proposals []*model.Proposal
	pruned    uint64
}

func (f *fakeVoteAggregator) AddVote(vote *model.Vote) { f.votes = append(f.votes, vote) }

func (f *fakeVoteAggregator) AddBlock(p *model.Proposal) error {
	f.proposals = append(f.proposals, p)
	return nil
}

func (f *fakeVoteAggregator) InvalidBlock(p *model.Proposal) error { return nil }
func (f *fakeVoteAggregator) PruneUpToRound(round uint64)          { f.pruned = round }
func (f *fakeVoteAggregator) Start()                               {}
func (f *fakeVoteAggregator) Stop() error                          { return nil }

type fakeTimeoutAggregator struct {
	timeouts []*model.TimeoutObject
	pruned   uint64
}

func (f *fakeTimeoutAggregator) AddTimeout(t *model.TimeoutObject) { f.timeouts = append(f.timeouts, t) }
func (f *fakeTimeoutAggregator) PruneUpToRound(round uint64)       { f.pruned = round }
func (f *fakeTimeoutAggregator) Start()                            {}
func (f *fakeTimeoutAggregator) Stop() error                       { return nil }

// fakeStateSync resolves sync targets from a preconfigured set of certified
// blocks, standing in for a ledger download.
type fakeStateSync struct {
	targets    []*nimbus.QuorumCertificate
	boundaries map[nimbus.Identifier]*model.CommittedBlock
	err        error
}

func (f *fakeStateSync) Sync(target *nimbus.QuorumCertificate) (*model.CommittedBlock, error) {
	f.targets = append(f.targets, target)
	if f.err != nil {
		return nil, f.err
	}
	boundary, ok := f.boundaries[target.BlockID]
	if !ok {
		return nil, fmt.Errorf("no chain data for block %v", target.BlockID)
	}
	return boundary, nil
}

// recordingConsumer captures round entries and proposal broadcasts.
type recordingConsumer struct {
	notifications.NoopConsumer
	enteredRounds []uint64
	voted         []*model.Vote
	incorporated  []*model.Block
}

func (c *recordingConsumer) OnEnteringRound(round uint64, leader nimbus.Identifier) {
	c.enteredRounds = append(c.enteredRounds, round)
}

func (c *recordingConsumer) OnVoting(vote *model.Vote) {
	c.voted = append(c.voted, vote)
}

func (c *recordingConsumer) OnBlockIncorporated(block *model.Block) {
	c.incorporated = append(c.incorporated, block)
}

func TestEventHandler(t *testing.T) {
	suite.Run(t, new(EventHandlerSuite))
}

// EventHandlerSuite drives the handler through protocol scenarios with a real
// pacemaker and block tree. The local node is the leader of round 12; the
// root block is committed at round 10 and the node starts in round 11.
type EventHandlerSuite struct {
	suite.Suite

	committee  bft.Replicas
	paceMaker  *pacemaker.ActivePaceMaker
	tree       bft.BlockTree
	root       *model.CommittedBlock
	safety     *fakeSafetyRules
	committer  *fakeCommitter
	execution  *fakeExecution
	comm       *fakeCommunicator
	producer   *fakeBlockProducer
	voteAgg    *fakeVoteAggregator
	timeoutAgg *fakeTimeoutAggregator
	stateSync  *fakeStateSync
	consumer   *recordingConsumer
	handler    *EventHandler
	cancel     context.CancelFunc
}

func (s *EventHandlerSuite) SetupTest() {
	validators := helper.MakeValidatorList(4)
	setup := helper.MakeEpochSetup(validators)

	// pick the leader of round 12 as the local node
	probe, err := committees.NewCommittee(setup, validators[0].NodeID)
	s.Require().NoError(err)
	selfID, err := probe.LeaderForRound(12)
	s.Require().NoError(err)
	committee, err := committees.NewCommittee(setup, selfID)
	s.Require().NoError(err)
	s.committee = committee

	rootBlock := helper.MakeBlock(helper.WithBlockRound(10))
	s.root = &model.CommittedBlock{
		Block:           rootBlock,
		CertifyingQC:    helper.MakeQC(helper.WithQCBlock(rootBlock)),
		StateCommitment: helper.MakeStateCommitment(),
	}
	s.tree, err = blocktree.NewBlockTree(s.root, commitrule.NewThreeChain())
	s.Require().NoError(err)

	cfg, err := timeout.NewConfig(200*time.Millisecond, time.Second, 1.5, 2, 100*time.Millisecond, 0)
	s.Require().NoError(err)
	persister := &memPersister{livenessData: &bft.LivenessData{
		Epoch:        1,
		CurrentRound: 11,
		NewestQC:     s.root.CertifyingQC,
	}}
	s.paceMaker, err = pacemaker.New(timeout.NewController(cfg), notifications.NewNoopConsumer(), persister)
	s.Require().NoError(err)

	s.safety = &fakeSafetyRules{selfID: selfID}
	s.committer = &fakeCommitter{tree: s.tree}
	s.execution = &fakeExecution{failOn: make(map[nimbus.Identifier]struct{})}
	s.comm = &fakeCommunicator{}
	s.producer = &fakeBlockProducer{proposerID: selfID, payloads: make(map[nimbus.Identifier]*nimbus.Payload)}
	s.voteAgg = &fakeVoteAggregator{}
	s.timeoutAgg = &fakeTimeoutAggregator{}
	s.stateSync = &fakeStateSync{boundaries: make(map[nimbus.Identifier]*model.CommittedBlock)}
	s.consumer = &recordingConsumer{}

	s.handler, err = New(
		zerolog.Nop(),
		s.paceMaker,
		s.producer,
		s.tree,
		s.safety,
		s.committer,
		s.execution,
		s.committee,
		s.comm,
		s.stateSync,
		s.voteAgg,
		s.timeoutAgg,
		s.consumer,
		10,
	)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.Require().NoError(s.handler.Start(ctx))
}

func (s *EventHandlerSuite) TearDownTest() {
	s.cancel()
}

// childProposal builds a proposal extending the parent in the next round,
// signed by that round's designated leader.
func (s *EventHandlerSuite) childProposal(parent *model.Block) *model.Proposal {
	round := parent.Round + 1
	leader, err := s.committee.LeaderForRound(round)
	s.Require().NoError(err)
	payload := &nimbus.Payload{}
	block := model.NewBlock(round, 1, leader, helper.MakeQC(helper.WithQCBlock(parent)), payload.Hash(), time.Now().UTC())
	return &model.Proposal{
		Block:   block,
		Payload: payload,
		SigData: helper.MakeSigData(),
	}
}

func (s *EventHandlerSuite) TestStartAsReplicaDoesNotPropose() {
	s.Require().Equal(uint64(11), s.paceMaker.CurRound())
	s.Require().Equal([]uint64{11}, s.consumer.enteredRounds)
	s.Require().Empty(s.comm.proposals)
}

func (s *EventHandlerSuite) TestVotesForCurrentRoundProposal() {
	proposal := s.childProposal(s.root.Block)
	s.Require().NoError(s.handler.OnReceiveProposal(proposal))

	_, inTree := s.tree.GetBlock(proposal.Block.BlockID)
	s.Require().True(inTree)
	s.Require().Len(s.voteAgg.proposals, 1)
	s.Require().Len(s.consumer.voted, 1)

	// the next round's leader is this node, so the vote stays local
	s.Require().Len(s.voteAgg.votes, 1)
	s.Require().Empty(s.comm.votes)
	s.Require().Equal(proposal.Block.BlockID, s.voteAgg.votes[0].BlockID)
}

func (s *EventHandlerSuite) TestQCConstructedAdvancesRoundAndProposes() {
	proposal := s.childProposal(s.root.Block)
	s.Require().NoError(s.handler.OnReceiveProposal(proposal))

	qc := helper.MakeQC(helper.WithQCBlock(proposal.Block))
	s.Require().NoError(s.handler.OnQCConstructed(qc))

	s.Require().Equal(uint64(12), s.paceMaker.CurRound())
	s.Require().Contains(s.consumer.enteredRounds, uint64(12))
	s.Require().Len(s.comm.proposals, 1)

	own := s.comm.proposals[0]
	s.Require().Equal(uint64(12), own.Block.Round)
	s.Require().Equal(qc.BlockID, own.Block.ParentID())
	s.Require().Nil(own.LastRoundTC)

	// the own proposal is incorporated and its payload retained for
	// duplicate exclusion in later rounds
	_, inTree := s.tree.GetBlock(own.Block.BlockID)
	s.Require().True(inTree)
	s.Require().Contains(s.producer.payloads, own.Block.BlockID)
}

func (s *EventHandlerSuite) TestTCConstructedAdvancesRoundWithLastRoundTC() {
	tc := helper.MakeTC(
		helper.WithTCRound(11),
		helper.WithTCNewestQC(s.root.CertifyingQC),
	)
	s.Require().NoError(s.handler.OnTCConstructed(tc))

	s.Require().Equal(uint64(12), s.paceMaker.CurRound())
	s.Require().Len(s.comm.proposals, 1)
	s.Require().Equal(tc, s.comm.proposals[0].LastRoundTC)
	s.Require().Equal(s.root.Block.BlockID, s.comm.proposals[0].Block.ParentID())
}

func (s *EventHandlerSuite) TestLocalTimeoutBroadcastsTimeout() {
	s.Require().NoError(s.handler.OnLocalTimeout())

	s.Require().Len(s.comm.timeouts, 1)
	s.Require().Len(s.timeoutAgg.timeouts, 1)
	s.Require().Equal(uint64(11), s.comm.timeouts[0].Round)
	s.Require().Equal(s.root.CertifyingQC, s.comm.timeouts[0].NewestQC)

	// a safety refusal is expected behavior, not an error
	s.safety.refuse = true
	s.Require().NoError(s.handler.OnLocalTimeout())
	s.Require().Len(s.comm.timeouts, 1)
	s.Require().Len(s.timeoutAgg.timeouts, 1)
}

func (s *EventHandlerSuite) TestPartialTimeoutCertificateFiresTimeoutChannel() {
	s.Require().NoError(s.handler.OnPartialTimeoutCertificate(11))
	select {
	case <-s.handler.TimeoutChannel():
	case <-time.After(time.Second):
		s.FailNow("timeout channel did not fire after partial TC")
	}
}

func (s *EventHandlerSuite) TestCommitsThroughChainOfCertifiedBlocks() {
	// round 11: external proposal, this node votes
	b11 := s.childProposal(s.root.Block)
	s.Require().NoError(s.handler.OnReceiveProposal(b11))

	// round 12: the QC over b11 makes this node leader, it proposes b12
	s.Require().NoError(s.handler.OnQCConstructed(helper.MakeQC(helper.WithQCBlock(b11.Block))))
	s.Require().Len(s.comm.proposals, 1)
	b12 := s.comm.proposals[0]

	// rounds 13 and 14: external proposals extending the chain; the QC for
	// round 13 embedded in b14 completes a 3-chain over b11
	b13 := s.childProposal(b12.Block)
	s.Require().NoError(s.handler.OnReceiveProposal(b13))
	s.Require().Empty(s.committer.batches)

	b14 := s.childProposal(b13.Block)
	s.Require().NoError(s.handler.OnReceiveProposal(b14))

	s.Require().Len(s.committer.batches, 1)
	s.Require().Len(s.committer.batches[0], 1)
	s.Require().Equal(b11.Block.BlockID, s.committer.batches[0][0].Block.BlockID)
	s.Require().Equal(uint64(11), s.tree.CommittedRound())

	// per-round state below the committed round is dropped
	s.Require().Equal(uint64(12), s.voteAgg.pruned)
	s.Require().Equal(uint64(12), s.timeoutAgg.pruned)

	// certifying b14 commits the next block in the chain
	s.Require().NoError(s.handler.OnQCConstructed(helper.MakeQC(helper.WithQCBlock(b14.Block))))
	s.Require().Len(s.committer.batches, 2)
	s.Require().Equal(b12.Block.BlockID, s.committer.batches[1][0].Block.BlockID)
	s.Require().Equal(uint64(12), s.tree.CommittedRound())
	s.Require().Equal(uint64(15), s.paceMaker.CurRound())
}

func (s *EventHandlerSuite) TestExecutionFailureMeansNoVote() {
	proposal := s.childProposal(s.root.Block)
	s.execution.failOn[proposal.Block.BlockID] = struct{}{}

	s.Require().NoError(s.handler.OnReceiveProposal(proposal))

	_, inTree := s.tree.GetBlock(proposal.Block.BlockID)
	s.Require().False(inTree)
	s.Require().Empty(s.voteAgg.votes)
	s.Require().Empty(s.comm.votes)
	s.Require().Empty(s.voteAgg.proposals)
}

func (s *EventHandlerSuite) TestProposalAtCommittedRoundIgnored() {
	stale := helper.MakeProposal(helper.WithProposalBlock(
		helper.MakeBlock(helper.WithBlockRound(10)),
	))
	s.Require().NoError(s.handler.OnReceiveProposal(stale))

	_, inTree := s.tree.GetBlock(stale.Block.BlockID)
	s.Require().False(inTree)
	s.Require().Empty(s.consumer.voted)
	s.Require().Equal(uint64(11), s.paceMaker.CurRound())

	// the lagging proposer is answered with the newest certificates
	s.Require().Len(s.comm.syncInfos, 1)
	s.Require().Equal(s.root.CertifyingQC, s.comm.syncInfos[0].HighestQC)
}

func (s *EventHandlerSuite) TestFutureProposalCachedUntilRoundEntered() {
	b11 := s.childProposal(s.root.Block)
	s.Require().NoError(s.handler.OnReceiveProposal(b11))

	// a proposal for round 14 arrives while its ancestors for rounds 12 and
	// 13 are still missing; its QC certifies b11 and advances the round,
	// the block itself has to wait
	payload := &nimbus.Payload{}
	leader14, err := s.committee.LeaderForRound(14)
	s.Require().NoError(err)
	b14Block := model.NewBlock(14, 1, leader14, helper.MakeQC(helper.WithQCBlock(b11.Block)), payload.Hash(), time.Now().UTC())
	b14 := &model.Proposal{Block: b14Block, Payload: payload, SigData: helper.MakeSigData()}

	s.Require().NoError(s.handler.OnReceiveProposal(b14))
	s.Require().Equal(uint64(12), s.paceMaker.CurRound())
	_, inTree := s.tree.GetBlock(b14Block.BlockID)
	s.Require().False(inTree)

	// this node proposed for round 12; a TC chain brings us to round 14,
	// where the cached proposal is replayed
	s.Require().Len(s.comm.proposals, 1)
	b12 := s.comm.proposals[0]
	tc := helper.MakeTC(
		helper.WithTCRound(13),
		helper.WithTCNewestQC(helper.MakeQC(helper.WithQCBlock(b12.Block))),
	)
	s.Require().NoError(s.handler.OnTCConstructed(tc))

	s.Require().Equal(uint64(14), s.paceMaker.CurRound())
	_, inTree = s.tree.GetBlock(b14Block.BlockID)
	s.Require().True(inTree)

	// votes were sent for b11 on receipt and for b14 on replay
	s.Require().Len(s.consumer.voted, 2)
}

// registerSyncedChain makes the fake state sync able to resolve the given
// round: it returns the certified block the sync would download, registered
// as the boundary for its certifying QC.
func (s *EventHandlerSuite) registerSyncedChain(round uint64) *model.CommittedBlock {
	block := helper.MakeBlock(helper.WithBlockRound(round))
	boundary := &model.CommittedBlock{
		Block:           block,
		CertifyingQC:    helper.MakeQC(helper.WithQCBlock(block)),
		StateCommitment: helper.MakeStateCommitment(),
	}
	s.stateSync.boundaries[block.BlockID] = boundary
	return boundary
}

func (s *EventHandlerSuite) TestFarAheadQCEscalatesToStateSync() {
	boundary := s.registerSyncedChain(30)
	syncInfo := &model.SyncInfo{HighestQC: boundary.CertifyingQC}
	s.Require().NoError(s.handler.OnReceiveSyncInfo(syncInfo))

	s.Require().Equal([]*nimbus.QuorumCertificate{boundary.CertifyingQC}, s.stateSync.targets)
	s.Require().Equal(uint64(31), s.paceMaker.CurRound())

	s.stateSync.err = fmt.Errorf("no sync peers")
	far := &model.SyncInfo{HighestQC: helper.MakeQC(helper.WithQCRound(60))}
	s.Require().Error(s.handler.OnReceiveSyncInfo(far))
}

// TestConsensusResumesAfterStateSync covers the tail end of the escalation:
// once the sync delivers the certified boundary, the block tree is
// re-anchored there and the node participates in the rounds that follow.
func (s *EventHandlerSuite) TestConsensusResumesAfterStateSync() {
	boundary := s.registerSyncedChain(30)
	s.Require().NoError(s.handler.OnReceiveSyncInfo(&model.SyncInfo{HighestQC: boundary.CertifyingQC}))
	s.Require().Equal(uint64(31), s.paceMaker.CurRound())

	// the tree restarts at the synced block; stale aggregator state is gone
	s.Require().Equal(uint64(30), s.tree.CommittedRound())
	s.Require().Equal(boundary.Block.BlockID, s.tree.CommittedBlockID())
	s.Require().Equal([]uint64{30}, s.safety.committed)
	s.Require().Equal(uint64(31), s.voteAgg.pruned)
	s.Require().Equal(uint64(31), s.timeoutAgg.pruned)

	// a proposal extending the synced boundary is incorporated and voted on
	proposal := s.childProposal(boundary.Block)
	s.Require().NoError(s.handler.OnReceiveProposal(proposal))

	_, inTree := s.tree.GetBlock(proposal.Block.BlockID)
	s.Require().True(inTree)
	s.Require().Len(s.voteAgg.proposals, 1)
	s.Require().Len(s.consumer.voted, 1)
	s.Require().Equal(proposal.Block.BlockID, s.consumer.voted[0].BlockID)
}

func (s *EventHandlerSuite) TestNearbyQCDoesNotTriggerStateSync() {
	b11 := s.childProposal(s.root.Block)
	s.Require().NoError(s.handler.OnReceiveProposal(b11))
	s.Require().NoError(s.handler.OnQCConstructed(helper.MakeQC(helper.WithQCBlock(b11.Block))))

	s.Require().Empty(s.stateSync.targets)
}
