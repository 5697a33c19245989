package blocktree

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/nimbuschain/nimbus-go/consensus/bft/commitrule"
	"github.com/nimbuschain/nimbus-go/consensus/bft/helper"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

func TestBlockTree(t *testing.T) {
	suite.Run(t, new(BlockTreeSuite))
}

type BlockTreeSuite struct {
	suite.Suite
	root *model.CommittedBlock
	tree *BlockTree
}

func (s *BlockTreeSuite) SetupTest() {
	rootBlock := helper.MakeBlock(helper.WithBlockRound(10))
	s.root = &model.CommittedBlock{
		Block:           rootBlock,
		CertifyingQC:    helper.MakeQC(helper.WithQCBlock(rootBlock)),
		StateCommitment: nimbus.DummyStateCommitment,
	}
	tree, err := NewBlockTree(s.root, commitrule.NewThreeChain())
	s.Require().NoError(err)
	s.tree = tree
}

// extend creates a child of the given parent at the given round and adds it.
func (s *BlockTreeSuite) extend(parent *model.Block, round uint64) *model.Block {
	block := helper.MakeBlock(helper.WithBlockRound(round), helper.WithParentBlock(parent))
	s.Require().NoError(s.tree.AddBlock(block, nimbus.DummyStateCommitment))
	return block
}

func (s *BlockTreeSuite) TestAddBlock() {
	block := s.extend(s.root.Block, 11)

	got, ok := s.tree.GetBlock(block.BlockID)
	s.Require().True(ok)
	s.Require().Equal(block, got)
	s.Require().Equal([]*model.Block{block}, s.tree.GetBlocksForRound(11))

	// duplicate insertion is a no-op
	s.Require().NoError(s.tree.AddBlock(block, nimbus.DummyStateCommitment))
	s.Require().Len(s.tree.GetBlocksForRound(11), 1)
}

func (s *BlockTreeSuite) TestAddBlockAtOrBelowRootIsIgnored() {
	stale := helper.MakeBlock(helper.WithBlockRound(9))
	s.Require().NoError(s.tree.AddBlock(stale, nimbus.DummyStateCommitment))
	_, ok := s.tree.GetBlock(stale.BlockID)
	s.Require().False(ok)
}

func (s *BlockTreeSuite) TestAddBlockMissingParent() {
	orphan := helper.MakeBlock(helper.WithBlockRound(12))
	err := s.tree.AddBlock(orphan, nimbus.DummyStateCommitment)
	s.Require().True(model.IsMissingParentError(err))
}

func (s *BlockTreeSuite) TestAddBlockInconsistentQC() {
	// QC references the root block but claims the wrong round
	block := helper.MakeBlock(helper.WithBlockRound(16), helper.WithParentBlock(s.root.Block))
	block.QC.Round = s.root.Block.Round + 5
	err := s.tree.AddBlock(block, nimbus.DummyStateCommitment)
	s.Require().True(model.IsInvalidQCError(err))

	// block round not above its QC round
	b11 := s.extend(s.root.Block, 11)
	sibling := helper.MakeBlock(helper.WithBlockRound(11), helper.WithParentBlock(b11))
	err = s.tree.AddBlock(sibling, nimbus.DummyStateCommitment)
	s.Require().True(model.IsInvalidQCError(err))
}

func (s *BlockTreeSuite) TestNewestQCTracking() {
	s.Require().Equal(s.root.CertifyingQC, s.tree.NewestQC())

	b11 := s.extend(s.root.Block, 11)
	s.Require().Equal(s.root.CertifyingQC, s.tree.NewestQC(), "a second QC for the root round does not advance the tracker")

	qc11 := helper.MakeQC(helper.WithQCBlock(b11))
	_, err := s.tree.AddQC(qc11)
	s.Require().NoError(err)
	s.Require().Equal(qc11, s.tree.NewestQC())
}

func (s *BlockTreeSuite) TestThreeChainCommit() {
	b11 := s.extend(s.root.Block, 11)
	b12 := s.extend(b11, 12)
	b13 := s.extend(b12, 13)

	// no commit yet: b11 is certified by b12's QC, b12 by b13's QC, but the
	// 3-chain on top of b11 completes only once b13 is certified
	qc13 := helper.MakeQC(helper.WithQCBlock(b13))
	committed, err := s.tree.AddQC(qc13)
	s.Require().NoError(err)
	s.Require().Len(committed, 1)
	s.Require().Equal(b11, committed[0].Block)
	s.Require().Equal(b12.QC, committed[0].CertifyingQC)
	s.Require().Equal(nimbus.DummyStateCommitment, committed[0].StateCommitment)
}

func (s *BlockTreeSuite) TestCommitReturnsFullChainAscending() {
	// rounds 11..15 in one chain; certifying the block at round 15 completes
	// the 3-chain over round 13, committing rounds 11, 12, 13 at once
	b11 := s.extend(s.root.Block, 11)
	b12 := s.extend(b11, 12)
	b13 := s.extend(b12, 13)
	b14 := s.extend(b13, 14)
	b15 := s.extend(b14, 15)

	committed, err := s.tree.AddQC(helper.MakeQC(helper.WithQCBlock(b15)))
	s.Require().NoError(err)
	s.Require().Len(committed, 3)
	s.Require().Equal(b11, committed[0].Block)
	s.Require().Equal(b12, committed[1].Block)
	s.Require().Equal(b13, committed[2].Block)
	s.Require().Equal(b14.QC, committed[2].CertifyingQC)
}

func (s *BlockTreeSuite) TestRoundGapPreventsCommit() {
	b11 := s.extend(s.root.Block, 11)
	b12 := s.extend(b11, 12)
	b14 := s.extend(b12, 14) // gap: round 13 timed out

	committed, err := s.tree.AddQC(helper.MakeQC(helper.WithQCBlock(b14)))
	s.Require().NoError(err)
	s.Require().Empty(committed)
}

func (s *BlockTreeSuite) TestConflictingQCsAreByzantineEvidence() {
	b11 := s.extend(s.root.Block, 11)
	b11fork := s.extend(s.root.Block, 11)
	s.Require().NotEqual(b11.BlockID, b11fork.BlockID)

	_, err := s.tree.AddQC(helper.MakeQC(helper.WithQCBlock(b11)))
	s.Require().NoError(err)
	_, err = s.tree.AddQC(helper.MakeQC(helper.WithQCBlock(b11fork)))
	s.Require().True(model.IsByzantineThresholdExceededError(err))
}

func (s *BlockTreeSuite) TestQCForUnknownBlockIgnored() {
	committed, err := s.tree.AddQC(helper.MakeQC(helper.WithQCRound(5)))
	s.Require().NoError(err)
	s.Require().Empty(committed)
}

func (s *BlockTreeSuite) TestPathFromRoot() {
	b11 := s.extend(s.root.Block, 11)
	b12 := s.extend(b11, 12)

	path, err := s.tree.PathFromRoot(b12.BlockID)
	s.Require().NoError(err)
	s.Require().Equal([]*model.Block{b11, b12}, path)

	_, err = s.tree.PathFromRoot(helper.MakeIdentifier())
	s.Require().Error(err)
}

func (s *BlockTreeSuite) TestPrune() {
	b11 := s.extend(s.root.Block, 11)
	b11fork := s.extend(s.root.Block, 11)
	b12 := s.extend(b11, 12)

	// b11 becomes certified via b12's embedded QC, so it is a valid new root
	s.Require().NoError(s.tree.Prune(b11.BlockID))

	s.Require().Equal(b11.BlockID, s.tree.CommittedBlockID())
	s.Require().Equal(uint64(11), s.tree.CommittedRound())

	_, ok := s.tree.GetBlock(s.root.Block.BlockID)
	s.Require().False(ok, "old root is discarded")
	_, ok = s.tree.GetBlock(b11fork.BlockID)
	s.Require().False(ok, "competing branch is discarded")
	_, ok = s.tree.GetBlock(b12.BlockID)
	s.Require().True(ok, "descendants of the new root survive")

	// pruning to an uncertified or unknown block fails
	s.Require().Error(s.tree.Prune(b12.BlockID))
	s.Require().Error(s.tree.Prune(helper.MakeIdentifier()))
}

func (s *BlockTreeSuite) TestReanchorAtUnknownBlock() {
	stale := s.extend(s.root.Block, 11)

	syncedBlock := helper.MakeBlock(helper.WithBlockRound(30))
	synced := &model.CommittedBlock{
		Block:           syncedBlock,
		CertifyingQC:    helper.MakeQC(helper.WithQCBlock(syncedBlock)),
		StateCommitment: helper.MakeStateCommitment(),
	}
	s.Require().NoError(s.tree.Reanchor(synced))

	s.Require().Equal(syncedBlock.BlockID, s.tree.CommittedBlockID())
	s.Require().Equal(uint64(30), s.tree.CommittedRound())
	s.Require().Equal(synced.CertifyingQC, s.tree.NewestQC())
	_, ok := s.tree.GetBlock(stale.BlockID)
	s.Require().False(ok, "blocks below the synced boundary are discarded")

	// the tree accepts children of the new root, as after a fresh start
	state, ok := s.tree.GetStateCommitment(syncedBlock.BlockID)
	s.Require().True(ok)
	s.Require().Equal(synced.StateCommitment, state)
	child := s.extend(syncedBlock, 31)
	_, ok = s.tree.GetBlock(child.BlockID)
	s.Require().True(ok)
}

func (s *BlockTreeSuite) TestReanchorAtKnownBlockKeepsSubtree() {
	b11 := s.extend(s.root.Block, 11)
	b11fork := s.extend(s.root.Block, 11)
	b12 := s.extend(b11, 12)

	synced := &model.CommittedBlock{
		Block:           b11,
		CertifyingQC:    helper.MakeQC(helper.WithQCBlock(b11)),
		StateCommitment: nimbus.DummyStateCommitment,
	}
	s.Require().NoError(s.tree.Reanchor(synced))

	s.Require().Equal(b11.BlockID, s.tree.CommittedBlockID())
	_, ok := s.tree.GetBlock(b12.BlockID)
	s.Require().True(ok, "descendants of the synced block survive")
	_, ok = s.tree.GetBlock(b11fork.BlockID)
	s.Require().False(ok)
}

func (s *BlockTreeSuite) TestReanchorRejectsInvalidBoundary() {
	// current root: no-op
	s.Require().NoError(s.tree.Reanchor(s.root))
	s.Require().Equal(s.root.Block.BlockID, s.tree.CommittedBlockID())

	// below the committed round
	oldBlock := helper.MakeBlock(helper.WithBlockRound(9))
	old := &model.CommittedBlock{
		Block:        oldBlock,
		CertifyingQC: helper.MakeQC(helper.WithQCBlock(oldBlock)),
	}
	s.Require().Error(s.tree.Reanchor(old))

	// missing or mismatched certifying QC
	newBlock := helper.MakeBlock(helper.WithBlockRound(30))
	s.Require().Error(s.tree.Reanchor(&model.CommittedBlock{Block: newBlock}))
	s.Require().Error(s.tree.Reanchor(&model.CommittedBlock{
		Block:        newBlock,
		CertifyingQC: helper.MakeQC(),
	}))
}

func TestNewBlockTreeRejectsInvalidRoot(t *testing.T) {
	rootBlock := helper.MakeBlock(helper.WithBlockRound(10))

	t.Run("missing certifying QC", func(t *testing.T) {
		root := &model.CommittedBlock{Block: rootBlock}
		_, err := NewBlockTree(root, commitrule.NewThreeChain())
		require.Error(t, err)
	})
	t.Run("QC for a different block", func(t *testing.T) {
		root := &model.CommittedBlock{Block: rootBlock, CertifyingQC: helper.MakeQC()}
		_, err := NewBlockTree(root, commitrule.NewThreeChain())
		require.Error(t, err)
	})
}
