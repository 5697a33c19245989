package voteaggregator

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/committees"
	"github.com/nimbuschain/nimbus-go/consensus/bft/helper"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/notifications"
	"github.com/nimbuschain/nimbus-go/consensus/bft/validator"
	"github.com/nimbuschain/nimbus-go/consensus/bft/verification"
	"github.com/nimbuschain/nimbus-go/consensus/bft/votecollector"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/module/local"
)

// recordingConsumer captures misbehaviour notifications for assertions.
type recordingConsumer struct {
	notifications.NoopConsumer
	lock           sync.Mutex
	doubleProposes [][2]*model.Block
	doubleVotes    [][2]*model.Vote
	invalidVotes   []model.InvalidVoteError
}

func (c *recordingConsumer) OnDoubleProposeDetected(block, alt *model.Block) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.doubleProposes = append(c.doubleProposes, [2]*model.Block{block, alt})
}

func (c *recordingConsumer) OnDoubleVotingDetected(first, conflicting *model.Vote) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.doubleVotes = append(c.doubleVotes, [2]*model.Vote{first, conflicting})
}

func (c *recordingConsumer) OnInvalidVoteDetected(err model.InvalidVoteError) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.invalidVotes = append(c.invalidVotes, err)
}

func (c *recordingConsumer) counts() (int, int, int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.doubleProposes), len(c.doubleVotes), len(c.invalidVotes)
}

type VoteAggregatorSuite struct {
	suite.Suite
	validators nimbus.ValidatorList
	signers    map[nimbus.Identifier]*verification.Signer
	committee  bft.Replicas

	consumer   *recordingConsumer
	qcCreated  *atomic.Int32
	qcs        chan *nimbus.QuorumCertificate
	aggregator *VoteAggregator
}

func TestVoteAggregator(t *testing.T) {
	suite.Run(t, new(VoteAggregatorSuite))
}

func (s *VoteAggregatorSuite) SetupSuite() {
	validators, privateKeys, err := helper.MakeStakedCommittee(4)
	s.Require().NoError(err)
	s.validators = validators

	s.signers = make(map[nimbus.Identifier]*verification.Signer, len(validators))
	for i, v := range validators {
		me, err := local.New(v.NodeID, privateKeys[i])
		s.Require().NoError(err)
		s.signers[v.NodeID] = verification.NewSigner(me)
	}

	setup := helper.MakeEpochSetup(validators)
	s.committee, err = committees.NewCommittee(setup, validators[0].NodeID)
	s.Require().NoError(err)
}

func (s *VoteAggregatorSuite) SetupTest() {
	s.consumer = &recordingConsumer{}
	s.qcCreated = atomic.NewInt32(0)
	s.qcs = make(chan *nimbus.QuorumCertificate, 8)
	factory := votecollector.NewVoteProcessorFactory(
		s.committee,
		validator.New(s.committee, verification.NewVerifier()),
		func(qc *nimbus.QuorumCertificate) {
			s.qcCreated.Inc()
			s.qcs <- qc
		},
	)
	aggregator, err := New(zerolog.Nop(), s.consumer, factory, 1)
	s.Require().NoError(err)
	s.aggregator = aggregator
	s.aggregator.Start()
}

func (s *VoteAggregatorSuite) TearDownTest() {
	s.Require().NoError(s.aggregator.Stop())
}

// proposalAt builds a signed proposal by the round's leader, extending a
// certified block one round below it.
func (s *VoteAggregatorSuite) proposalAt(round uint64) *model.Proposal {
	parentLeader, err := s.committee.LeaderForRound(round - 1)
	s.Require().NoError(err)
	payload := nimbus.EmptyPayload()
	parent := model.NewBlock(round-1, 1, parentLeader, nil, payload.Hash(), time.Now().UTC())
	parentQC := s.buildQCDirect(parent)

	leader, err := s.committee.LeaderForRound(round)
	s.Require().NoError(err)
	block := model.NewBlock(round, 1, leader, parentQC, payload.Hash(), time.Now().UTC())
	proposal, err := s.signers[leader].CreateProposal(block, payload, nil)
	s.Require().NoError(err)
	return proposal
}

// buildQCDirect assembles a QC through a standalone collector, bypassing the
// aggregator under test.
func (s *VoteAggregatorSuite) buildQCDirect(block *model.Block) *nimbus.QuorumCertificate {
	var qc *nimbus.QuorumCertificate
	factory := votecollector.NewVoteProcessorFactory(
		s.committee,
		validator.New(s.committee, verification.NewVerifier()),
		func(built *nimbus.QuorumCertificate) { qc = built },
	)
	collector := votecollector.NewVoteCollector(zerolog.Nop(), block.Round, factory)
	proposal, err := s.signers[block.ProposerID].CreateProposal(block, nimbus.EmptyPayload(), nil)
	s.Require().NoError(err)
	s.Require().NoError(collector.ProcessBlock(proposal))
	for _, v := range s.validators {
		if v.NodeID == block.ProposerID {
			continue
		}
		vote, err := s.signers[v.NodeID].CreateVote(block)
		s.Require().NoError(err)
		s.Require().NoError(collector.AddVote(vote))
	}
	s.Require().NotNil(qc)
	return qc
}

func (s *VoteAggregatorSuite) awaitQC() *nimbus.QuorumCertificate {
	select {
	case qc := <-s.qcs:
		return qc
	case <-time.After(5 * time.Second):
		s.FailNow("no QC built in time")
		return nil
	}
}

// TestVotesBeforeAndAfterProposal checks votes arriving both before and after
// the proposal still produce exactly one QC.
func (s *VoteAggregatorSuite) TestVotesBeforeAndAfterProposal() {
	proposal := s.proposalAt(10)
	block := proposal.Block

	early := s.voteBy(s.nonProposer(block, nimbus.ZeroID), block)
	s.aggregator.AddVote(early)

	s.Require().NoError(s.aggregator.AddBlock(proposal))

	late := s.voteBy(s.nonProposer(block, early.SignerID), block)
	s.aggregator.AddVote(late)

	qc := s.awaitQC()
	s.Require().Equal(block.BlockID, qc.BlockID)
	s.Require().Equal(int32(1), s.qcCreated.Load())
}

// TestDuplicateVoteEnqueuedOnce checks the dedup cache drops a replayed vote
// before it reaches a worker.
func (s *VoteAggregatorSuite) TestDuplicateVoteEnqueuedOnce() {
	proposal := s.proposalAt(11)
	block := proposal.Block
	s.Require().NoError(s.aggregator.AddBlock(proposal))

	vote := s.voteBy(s.nonProposer(block, nimbus.ZeroID), block)
	s.aggregator.AddVote(vote)
	s.aggregator.AddVote(vote)
	s.Require().NoError(s.aggregator.Stop())

	// proposer + one distinct voter: below the 3-signer quorum
	s.Require().Equal(int32(0), s.qcCreated.Load())
}

// TestDoubleProposeReported checks a second proposal for an occupied round is
// reported and the first proposal keeps collecting.
func (s *VoteAggregatorSuite) TestDoubleProposeReported() {
	proposal := s.proposalAt(12)
	block := proposal.Block
	s.Require().NoError(s.aggregator.AddBlock(proposal))

	leader := block.ProposerID
	other := model.NewBlock(block.Round, 1, leader, block.QC, nimbus.EmptyPayload().Hash(), time.Now().UTC().Add(time.Second))
	conflicting, err := s.signers[leader].CreateProposal(other, nimbus.EmptyPayload(), nil)
	s.Require().NoError(err)
	s.Require().NoError(s.aggregator.AddBlock(conflicting))

	proposes, _, _ := s.consumer.counts()
	s.Require().Equal(1, proposes)

	// the original proposal still reaches quorum
	for _, v := range s.validators {
		if v.NodeID == leader {
			continue
		}
		s.aggregator.AddVote(s.voteBy(v.NodeID, block))
	}
	s.awaitQC()
}

// TestDoubleVoteReported checks equivocating votes surface through the
// notifier.
func (s *VoteAggregatorSuite) TestDoubleVoteReported() {
	proposal := s.proposalAt(13)
	block := proposal.Block
	s.Require().NoError(s.aggregator.AddBlock(proposal))

	voter := s.nonProposer(block, nimbus.ZeroID)
	s.aggregator.AddVote(s.voteBy(voter, block))
	s.aggregator.AddVote(helper.MakeVote(helper.WithVoteRound(block.Round), helper.WithVoteSigner(voter)))
	s.Require().NoError(s.aggregator.Stop())

	_, doubles, _ := s.consumer.counts()
	s.Require().Equal(1, doubles)
}

// TestInvalidVoteReported checks a vote failing signature verification is
// reported through the notifier.
func (s *VoteAggregatorSuite) TestInvalidVoteReported() {
	proposal := s.proposalAt(14)
	block := proposal.Block
	s.Require().NoError(s.aggregator.AddBlock(proposal))

	honest := s.voteBy(s.nonProposer(block, nimbus.ZeroID), block)
	forged := &model.Vote{
		Round:    honest.Round,
		Epoch:    honest.Epoch,
		BlockID:  honest.BlockID,
		SignerID: s.nonProposer(block, honest.SignerID),
		SigData:  honest.SigData,
	}
	s.aggregator.AddVote(forged)
	s.Require().NoError(s.aggregator.Stop())

	_, _, invalids := s.consumer.counts()
	s.Require().Equal(1, invalids)
}

// TestInvalidBlockBlocksQC checks votes for an invalidated proposal never
// form a QC.
func (s *VoteAggregatorSuite) TestInvalidBlockBlocksQC() {
	proposal := s.proposalAt(15)
	block := proposal.Block
	s.Require().NoError(s.aggregator.InvalidBlock(proposal))

	for _, v := range s.validators {
		s.aggregator.AddVote(s.voteBy(v.NodeID, block))
	}
	s.Require().NoError(s.aggregator.AddBlock(proposal))
	s.Require().NoError(s.aggregator.Stop())
	s.Require().Equal(int32(0), s.qcCreated.Load())
}

// TestPruning checks votes for pruned rounds are dropped and the pruning
// round never regresses.
func (s *VoteAggregatorSuite) TestPruning() {
	proposal := s.proposalAt(20)
	block := proposal.Block
	s.Require().NoError(s.aggregator.AddBlock(proposal))

	s.aggregator.PruneUpToRound(21)
	for _, v := range s.validators {
		if v.NodeID == block.ProposerID {
			continue
		}
		s.aggregator.AddVote(s.voteBy(v.NodeID, block))
	}
	s.Require().NoError(s.aggregator.Stop())
	s.Require().Equal(int32(0), s.qcCreated.Load())

	// pruning backwards is a no-op
	s.aggregator.PruneUpToRound(5)
	s.aggregator.lock.RLock()
	retained := s.aggregator.lowestRetainedRound
	s.aggregator.lock.RUnlock()
	s.Require().Equal(uint64(21), retained)
}

func (s *VoteAggregatorSuite) voteBy(signerID nimbus.Identifier, block *model.Block) *model.Vote {
	vote, err := s.signers[signerID].CreateVote(block)
	s.Require().NoError(err)
	return vote
}

// nonProposer returns a committee member that is neither the proposer nor the
// excluded node.
func (s *VoteAggregatorSuite) nonProposer(block *model.Block, exclude nimbus.Identifier) nimbus.Identifier {
	for _, v := range s.validators {
		if v.NodeID != block.ProposerID && v.NodeID != exclude {
			return v.NodeID
		}
	}
	panic("committee too small")
}
