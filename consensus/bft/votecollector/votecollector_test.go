package votecollector

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/committees"
	"github.com/nimbuschain/nimbus-go/consensus/bft/helper"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/validator"
	"github.com/nimbuschain/nimbus-go/consensus/bft/verification"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/module/local"
)

func TestVotesCache_AddVote(t *testing.T) {
	cache := NewVotesCache(7)

	vote := helper.MakeVote(helper.WithVoteRound(7))
	require.NoError(t, cache.AddVote(vote))

	// same vote again
	require.ErrorIs(t, cache.AddVote(vote), ErrRepeatedVote)

	// same signer, different block in the same round
	conflicting := helper.MakeVote(helper.WithVoteRound(7), helper.WithVoteSigner(vote.SignerID))
	err := cache.AddVote(conflicting)
	require.True(t, model.IsDoubleVoteError(err))

	// wrong round
	otherRound := helper.MakeVote(helper.WithVoteRound(8))
	require.ErrorIs(t, cache.AddVote(otherRound), model.VoteForIncompatibleRoundError)
}

func TestVotesCache_All(t *testing.T) {
	cache := NewVotesCache(3)
	votes := make([]*model.Vote, 0, 5)
	for i := 0; i < 5; i++ {
		vote := helper.MakeVote(helper.WithVoteRound(3))
		votes = append(votes, vote)
		require.NoError(t, cache.AddVote(vote))
	}
	require.ElementsMatch(t, votes, cache.All())
}

// VoteCollectorSuite exercises the vote processor and the collector state
// machine against votes signed with real BLS keys.
type VoteCollectorSuite struct {
	suite.Suite
	validators nimbus.ValidatorList
	signers    map[nimbus.Identifier]*verification.Signer
	committee  bft.Replicas
	factory    *VoteProcessorFactory

	qcs     []*nimbus.QuorumCertificate
	created *atomic.Int32
}

func TestVoteCollector(t *testing.T) {
	suite.Run(t, new(VoteCollectorSuite))
}

func (s *VoteCollectorSuite) SetupSuite() {
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

func (s *VoteCollectorSuite) SetupTest() {
	s.qcs = nil
	s.created = atomic.NewInt32(0)
	s.factory = NewVoteProcessorFactory(
		s.committee,
		validator.New(s.committee, verification.NewVerifier()),
		func(qc *nimbus.QuorumCertificate) {
			s.created.Inc()
			s.qcs = append(s.qcs, qc)
		},
	)
}

// proposalAt builds a signed proposal by the designated leader of the round,
// extending a certified block at round-1.
func (s *VoteCollectorSuite) proposalAt(round uint64) *model.Proposal {
	parentLeader, err := s.committee.LeaderForRound(round - 1)
	s.Require().NoError(err)
	payload := nimbus.EmptyPayload()
	parent := model.NewBlock(round-1, 1, parentLeader, nil, payload.Hash(), time.Now().UTC())
	parentQC := s.buildQC(parent)

	leader, err := s.committee.LeaderForRound(round)
	s.Require().NoError(err)
	block := model.NewBlock(round, 1, leader, parentQC, payload.Hash(), time.Now().UTC())
	proposal, err := s.signers[leader].CreateProposal(block, payload, nil)
	s.Require().NoError(err)
	return proposal
}

func (s *VoteCollectorSuite) buildQC(block *model.Block) *nimbus.QuorumCertificate {
	collector := NewVoteCollector(zerolog.Nop(), block.Round, s.factory)
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
	s.Require().NotEmpty(s.qcs)
	qc := s.qcs[len(s.qcs)-1]
	s.Require().Equal(block.BlockID, qc.BlockID)
	return qc
}

func (s *VoteCollectorSuite) voteBy(signerID nimbus.Identifier, block *model.Block) *model.Vote {
	vote, err := s.signers[signerID].CreateVote(block)
	s.Require().NoError(err)
	return vote
}

// TestQCBuiltExactlyOnce feeds all votes for a proposal and checks the QC
// callback fires exactly once, at the quorum threshold, with a QC that passes
// full validation.
func (s *VoteCollectorSuite) TestQCBuiltExactlyOnce() {
	proposal := s.proposalAt(10)
	block := proposal.Block
	s.created.Store(0)
	s.qcs = nil

	collector := NewVoteCollector(zerolog.Nop(), block.Round, s.factory)
	s.Require().Equal(bft.VoteCollectorStatusCaching, collector.Status())
	s.Require().NoError(collector.ProcessBlock(proposal))
	s.Require().Equal(bft.VoteCollectorStatusVerifying, collector.Status())

	// proposer vote alone: 100 of 267 required weight
	s.Require().Equal(int32(0), s.created.Load())

	for _, v := range s.validators {
		if v.NodeID == block.ProposerID {
			continue
		}
		s.Require().NoError(collector.AddVote(s.voteBy(v.NodeID, block)))
	}
	s.Require().Equal(int32(1), s.created.Load())

	protocolValidator := validator.New(s.committee, verification.NewVerifier())
	err := protocolValidator.ValidateQC(s.qcs[0])
	s.Require().NoError(err)
}

// TestCachedVotesReplayed caches votes before the proposal arrives and checks
// the QC is built during replay.
func (s *VoteCollectorSuite) TestCachedVotesReplayed() {
	proposal := s.proposalAt(11)
	block := proposal.Block
	s.created.Store(0)
	s.qcs = nil

	collector := NewVoteCollector(zerolog.Nop(), block.Round, s.factory)
	for _, v := range s.validators {
		if v.NodeID == block.ProposerID {
			continue
		}
		s.Require().NoError(collector.AddVote(s.voteBy(v.NodeID, block)))
	}
	s.Require().Equal(int32(0), s.created.Load())

	s.Require().NoError(collector.ProcessBlock(proposal))
	s.Require().Equal(int32(1), s.created.Load())
	s.Require().Equal(block.BlockID, s.qcs[0].BlockID)
}

// TestDuplicateVoteIgnored checks a repeated vote neither errors nor double
// counts.
func (s *VoteCollectorSuite) TestDuplicateVoteIgnored() {
	proposal := s.proposalAt(12)
	block := proposal.Block
	s.created.Store(0)

	collector := NewVoteCollector(zerolog.Nop(), block.Round, s.factory)
	s.Require().NoError(collector.ProcessBlock(proposal))

	voter := s.nonProposer(block)
	vote := s.voteBy(voter, block)
	s.Require().NoError(collector.AddVote(vote))
	s.Require().NoError(collector.AddVote(vote))
	// 2 of 4 validators: still below quorum
	s.Require().Equal(int32(0), s.created.Load())
}

// TestDoubleVoteDetected checks equivocating votes surface as
// DoubleVoteError in both caching and verifying state.
func (s *VoteCollectorSuite) TestDoubleVoteDetected() {
	proposal := s.proposalAt(13)
	block := proposal.Block

	collector := NewVoteCollector(zerolog.Nop(), block.Round, s.factory)
	voter := s.nonProposer(block)
	s.Require().NoError(collector.AddVote(s.voteBy(voter, block)))

	conflicting := helper.MakeVote(helper.WithVoteRound(block.Round), helper.WithVoteSigner(voter))
	err := collector.AddVote(conflicting)
	s.Require().True(model.IsDoubleVoteError(err))

	s.Require().NoError(collector.ProcessBlock(proposal))
	err = collector.AddVote(conflicting)
	s.Require().True(model.IsDoubleVoteError(err))
}

// TestInvalidVoteRejected checks a vote with a signature not matching its
// claimed signer is rejected in the verifying state.
func (s *VoteCollectorSuite) TestInvalidVoteRejected() {
	proposal := s.proposalAt(14)
	block := proposal.Block

	collector := NewVoteCollector(zerolog.Nop(), block.Round, s.factory)
	s.Require().NoError(collector.ProcessBlock(proposal))

	honest := s.voteBy(s.nonProposer(block), block)
	forged := &model.Vote{
		Round:    honest.Round,
		Epoch:    honest.Epoch,
		BlockID:  honest.BlockID,
		SignerID: s.otherNonProposer(block, honest.SignerID),
		SigData:  honest.SigData,
	}
	err := collector.AddVote(forged)
	s.Require().True(model.IsInvalidVoteError(err))
}

// TestWrongRoundAndBlock checks the incompatibility sentinels.
func (s *VoteCollectorSuite) TestWrongRoundAndBlock() {
	proposal := s.proposalAt(15)
	block := proposal.Block

	collector := NewVoteCollector(zerolog.Nop(), block.Round, s.factory)
	s.Require().NoError(collector.ProcessBlock(proposal))

	wrongRound := helper.MakeVote(helper.WithVoteRound(block.Round + 1))
	s.Require().ErrorIs(collector.AddVote(wrongRound), model.VoteForIncompatibleRoundError)

	wrongBlock := helper.MakeVote(helper.WithVoteRound(block.Round))
	s.Require().ErrorIs(collector.AddVote(wrongBlock), model.VoteForIncompatibleBlockError)
}

// TestMarkInvalid checks an invalidated collector keeps caching votes but
// never builds a QC and refuses to start verifying.
func (s *VoteCollectorSuite) TestMarkInvalid() {
	proposal := s.proposalAt(16)
	block := proposal.Block
	s.created.Store(0)

	collector := NewVoteCollector(zerolog.Nop(), block.Round, s.factory)
	collector.MarkInvalid()
	s.Require().Equal(bft.VoteCollectorStatusInvalid, collector.Status())

	for _, v := range s.validators {
		vote := s.voteBy(v.NodeID, block)
		s.Require().NoError(collector.AddVote(vote))
	}
	s.Require().NoError(collector.ProcessBlock(proposal))
	s.Require().Equal(bft.VoteCollectorStatusInvalid, collector.Status())
	s.Require().Equal(int32(0), s.created.Load())
}

// TestRepeatedProcessBlock checks the transition is idempotent for the same
// block and rejects a conflicting one.
func (s *VoteCollectorSuite) TestRepeatedProcessBlock() {
	proposal := s.proposalAt(17)
	collector := NewVoteCollector(zerolog.Nop(), proposal.Block.Round, s.factory)
	s.Require().NoError(collector.ProcessBlock(proposal))
	s.Require().NoError(collector.ProcessBlock(proposal))

	leader := proposal.Block.ProposerID
	other := model.NewBlock(proposal.Block.Round, 1, leader, proposal.Block.QC, nimbus.EmptyPayload().Hash(), time.Now().UTC().Add(time.Second))
	conflicting, err := s.signers[leader].CreateProposal(other, nimbus.EmptyPayload(), nil)
	s.Require().NoError(err)
	s.Require().Error(collector.ProcessBlock(conflicting))
}

func (s *VoteCollectorSuite) nonProposer(block *model.Block) nimbus.Identifier {
	for _, v := range s.validators {
		if v.NodeID != block.ProposerID {
			return v.NodeID
		}
	}
	panic("committee consists of a single proposer")
}

func (s *VoteCollectorSuite) otherNonProposer(block *model.Block, exclude nimbus.Identifier) nimbus.Identifier {
	for _, v := range s.validators {
		if v.NodeID != block.ProposerID && v.NodeID != exclude {
			return v.NodeID
		}
	}
	panic("committee too small")
}
