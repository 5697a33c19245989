package blockproducer

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/blocktree"
	"github.com/nimbuschain/nimbus-go/consensus/bft/commitrule"
	"github.com/nimbuschain/nimbus-go/consensus/bft/committees"
	"github.com/nimbuschain/nimbus-go/consensus/bft/helper"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/validator"
	"github.com/nimbuschain/nimbus-go/consensus/bft/verification"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/module/local"
)

// fakeMempool records pull arguments and serves a canned batch.
type fakeMempool struct {
	batch       []*nimbus.Transaction
	lastMax     uint
	lastExclude map[nimbus.Identifier]struct{}
}

func (m *fakeMempool) PullTransactions(maxBatchSize uint, exclude map[nimbus.Identifier]struct{}) []*nimbus.Transaction {
	m.lastMax = maxBatchSize
	m.lastExclude = exclude
	return m.batch
}

type BlockProducerSuite struct {
	suite.Suite
	validators nimbus.ValidatorList
	committee  bft.Replicas
	signer     *verification.Signer
	mempool    *fakeMempool
	tree       bft.BlockTree
	root       *model.CommittedBlock
	producer   *BlockProducer
}

func TestBlockProducer(t *testing.T) {
	suite.Run(t, new(BlockProducerSuite))
}

func (s *BlockProducerSuite) SetupTest() {
	validators, privateKeys, err := helper.MakeStakedCommittee(4)
	s.Require().NoError(err)
	s.validators = validators

	// this node is validators[0]: with round-robin from round 1 it leads
	// rounds 1, 5, 9, 13, ...
	me, err := local.New(validators[0].NodeID, privateKeys[0])
	s.Require().NoError(err)
	s.signer = verification.NewSigner(me)

	setup := helper.MakeEpochSetup(validators)
	s.committee, err = committees.NewCommittee(setup, validators[0].NodeID)
	s.Require().NoError(err)

	rootBlock := helper.MakeBlock(helper.WithBlockRound(12))
	s.root = &model.CommittedBlock{
		Block:           rootBlock,
		CertifyingQC:    helper.MakeQC(helper.WithQCBlock(rootBlock)),
		StateCommitment: helper.MakeStateCommitment(),
	}
	s.tree, err = blocktree.NewBlockTree(s.root, commitrule.NewThreeChain())
	s.Require().NoError(err)

	s.mempool = &fakeMempool{}
	s.producer, err = New(zerolog.Nop(), s.committee, s.signer, s.mempool, s.tree, 50)
	s.Require().NoError(err)
}

func transactions(n int) []*nimbus.Transaction {
	txs := make([]*nimbus.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, &nimbus.Transaction{
			Script: []byte{byte(i)},
			Nonce:  uint64(i),
			Payer:  helper.MakeIdentifier(),
		})
	}
	return txs
}

// TestProposalExtendsNewestQC checks the built proposal carries the batch,
// references the QC, and passes full protocol validation.
func (s *BlockProducerSuite) TestProposalExtendsNewestQC() {
	s.mempool.batch = transactions(3)

	proposal, err := s.producer.MakeBlockProposal(13, s.root.CertifyingQC, nil)
	s.Require().NoError(err)
	s.Require().Equal(uint64(13), proposal.Block.Round)
	s.Require().Equal(s.root.Block.BlockID, proposal.Block.QC.BlockID)
	s.Require().Equal(s.validators[0].NodeID, proposal.Block.ProposerID)
	s.Require().Equal(proposal.Payload.Hash(), proposal.Block.PayloadHash)
	s.Require().Len(proposal.Payload.Transactions, 3)
	s.Require().Equal(uint(50), s.mempool.lastMax)
	s.Require().Empty(s.mempool.lastExclude)

	// the proposer vote must verify under this node's staking key
	protocolValidator := validator.New(s.committee, verification.NewVerifier())
	_, err = protocolValidator.ValidateVote(proposal.ProposerVote())
	s.Require().NoError(err)
}

// TestPendingTransactionsExcluded checks transactions of uncommitted
// ancestors are excluded from the next pull.
func (s *BlockProducerSuite) TestPendingTransactionsExcluded() {
	pending := transactions(2)
	pendingPayload := &nimbus.Payload{Transactions: pending}
	rootBlock, ok := s.tree.GetBlock(s.tree.CommittedBlockID())
	s.Require().True(ok)
	child := helper.MakeBlock(helper.WithParentBlock(rootBlock), helper.WithBlockRound(13))
	s.Require().NoError(s.tree.AddBlock(child, helper.MakeStateCommitment()))
	s.producer.RecordPayload(child.BlockID, pendingPayload)

	childQC := helper.MakeQC(helper.WithQCBlock(child))
	_, err := s.tree.AddQC(childQC)
	s.Require().NoError(err)

	s.mempool.batch = nil
	// round 17 is ours again
	_, err = s.producer.MakeBlockProposal(17, childQC, nil)
	s.Require().NoError(err)
	s.Require().Len(s.mempool.lastExclude, 2)
	for _, tx := range pending {
		s.Require().Contains(s.mempool.lastExclude, tx.ID())
	}
}

// TestNotLeader checks the producer refuses rounds led by someone else.
func (s *BlockProducerSuite) TestNotLeader() {
	_, err := s.producer.MakeBlockProposal(14, s.root.CertifyingQC, nil)
	s.Require().Error(err)
}

func TestZeroBatchSizeRejected(t *testing.T) {
	_, err := New(zerolog.Nop(), nil, nil, nil, nil, 0)
	require.Error(t, err)
}
