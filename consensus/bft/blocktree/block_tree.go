// Package blocktree maintains the in-memory tree of speculative blocks rooted
// at the last committed block. Incorporating quorum certificates resolves
// forks and, through the configured commit rule, determines which blocks
// become final.
package blocktree

import (
	"fmt"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// vertex is one block in the tree, together with the artifacts the protocol
// accumulates for it: the speculative execution result and, once known, the
// QC certifying the block.
type vertex struct {
	block           *model.Block
	stateCommitment nimbus.StateCommitment
	certifyingQC    *nimbus.QuorumCertificate
	children        nimbus.IdentifierList
}

// BlockTree implements bft.BlockTree. Mutations are serialized by the event
// loop, so the struct holds no lock.
type BlockTree struct {
	commitRule bft.CommitRule

	vertices map[nimbus.Identifier]*vertex
	byRound  map[uint64][]*vertex
	// qcForRound records which block gathered a QC in each round. Two QCs for
	// different blocks in one round prove a Byzantine supermajority.
	qcForRound map[uint64]nimbus.Identifier

	rootID    nimbus.Identifier
	rootRound uint64
	newestQC  *nimbus.QuorumCertificate
}

var _ bft.BlockTree = (*BlockTree)(nil)

// NewBlockTree anchors a tree at the given committed root. The root must
// carry its certifying QC; bootstrapping and recovery provide one even for
// the genesis block.
func NewBlockTree(root *model.CommittedBlock, commitRule bft.CommitRule) (*BlockTree, error) {
	if root.CertifyingQC == nil {
		return nil, model.NewConfigurationErrorf("root block %v has no certifying QC", root.Block.BlockID)
	}
	if root.CertifyingQC.BlockID != root.Block.BlockID || root.CertifyingQC.Round != root.Block.Round {
		return nil, model.NewConfigurationErrorf("root QC does not certify the root block")
	}
	rootVertex := &vertex{
		block:           root.Block,
		stateCommitment: root.StateCommitment,
		certifyingQC:    root.CertifyingQC,
	}
	tree := &BlockTree{
		commitRule: commitRule,
		vertices:   map[nimbus.Identifier]*vertex{root.Block.BlockID: rootVertex},
		byRound:    map[uint64][]*vertex{root.Block.Round: {rootVertex}},
		qcForRound: map[uint64]nimbus.Identifier{root.Block.Round: root.Block.BlockID},
		rootID:     root.Block.BlockID,
		rootRound:  root.Block.Round,
		newestQC:   root.CertifyingQC,
	}
	return tree, nil
}

// AddBlock inserts the block with its speculative execution result. The
// block's embedded QC is incorporated as the parent's certifying QC. Blocks
// at or below the committed round are ignored; duplicates are a no-op.
// Expected errors during normal operation:
//   - model.MissingParentError if the parent is not in the tree
//   - model.InvalidQCError if the embedded QC is inconsistent with the parent
//   - model.ByzantineThresholdExceededError if the embedded QC conflicts with
//     a known QC for the same round
func (t *BlockTree) AddBlock(block *model.Block, stateCommitment nimbus.StateCommitment) error {
	if block.Round <= t.rootRound {
		return nil
	}
	if _, ok := t.vertices[block.BlockID]; ok {
		return nil
	}
	parent, ok := t.vertices[block.ParentID()]
	if !ok {
		return model.MissingParentError{
			Round:    block.Round,
			BlockID:  block.BlockID,
			ParentID: block.ParentID(),
		}
	}
	if block.QC.Round != parent.block.Round {
		return model.NewInvalidQCErrorf(block.QC, "QC round %d does not match parent round %d", block.QC.Round, parent.block.Round)
	}
	if block.Round <= block.QC.Round {
		return model.NewInvalidQCErrorf(block.QC, "block round %d must exceed the QC round %d", block.Round, block.QC.Round)
	}

	err := t.incorporateQC(block.QC, parent)
	if err != nil {
		return fmt.Errorf("could not incorporate embedded QC of block %v: %w", block.BlockID, err)
	}

	v := &vertex{
		block:           block,
		stateCommitment: stateCommitment,
	}
	t.vertices[block.BlockID] = v
	t.byRound[block.Round] = append(t.byRound[block.Round], v)
	parent.children = append(parent.children, block.BlockID)
	return nil
}

// AddQC incorporates a certificate for a block already in the tree and runs
// the commit rule. It returns the blocks that became committed, in ascending
// round order. A QC for a pruned or unknown block is ignored without error.
// Expected errors during normal operation:
//   - model.ByzantineThresholdExceededError if the QC conflicts with a known
//     QC for the same round
func (t *BlockTree) AddQC(qc *nimbus.QuorumCertificate) ([]*model.CommittedBlock, error) {
	v, ok := t.vertices[qc.BlockID]
	if !ok {
		if existingID, known := t.qcForRound[qc.Round]; known && existingID != qc.BlockID && qc.Round > t.rootRound {
			return nil, model.ByzantineThresholdExceededError{
				Evidence: fmt.Sprintf("conflicting QCs in round %d: block %v and block %v", qc.Round, existingID, qc.BlockID),
			}
		}
		return nil, nil
	}
	alreadyCertified := v.certifyingQC != nil
	err := t.incorporateQC(qc, v)
	if err != nil {
		return nil, err
	}
	if alreadyCertified {
		return nil, nil
	}

	certified := model.CertifiedBlock{Block: v.block, CertifyingQC: qc}
	target, ok := t.commitRule.CommitTarget(&certified, t)
	if !ok || target.Round <= t.rootRound {
		return nil, nil
	}
	return t.committedChain(certified.Block, target)
}

// incorporateQC records the QC on the certified vertex, checks for
// round-level conflicts and advances the newest-QC tracker.
func (t *BlockTree) incorporateQC(qc *nimbus.QuorumCertificate, certified *vertex) error {
	if existingID, ok := t.qcForRound[qc.Round]; ok {
		if existingID != qc.BlockID {
			return model.ByzantineThresholdExceededError{
				Evidence: fmt.Sprintf("conflicting QCs in round %d: block %v and block %v", qc.Round, existingID, qc.BlockID),
			}
		}
	} else {
		t.qcForRound[qc.Round] = qc.BlockID
	}
	if certified.certifyingQC == nil {
		certified.certifyingQC = qc
	}
	if qc.Round > t.newestQC.Round {
		t.newestQC = qc
	}
	return nil
}

// committedChain assembles the committed blocks from the current root
// (exclusive) up to target (inclusive), in ascending round order. Each block
// is paired with the QC certifying it: the QC embedded in its successor on
// the path from the freshly certified block.
func (t *BlockTree) committedChain(from *model.Block, target *model.Block) ([]*model.CommittedBlock, error) {
	// descend from the certified block to the root, remembering each block's
	// certifying QC as we pass its child
	certQC := make(map[nimbus.Identifier]*nimbus.QuorumCertificate)
	cursor := from
	for cursor.BlockID != t.rootID {
		parentID := cursor.ParentID()
		certQC[parentID] = cursor.QC
		parent, ok := t.vertices[parentID]
		if !ok {
			return nil, fmt.Errorf("broken ancestry: block %v not in tree", parentID)
		}
		cursor = parent.block
	}

	var committed []*model.CommittedBlock
	cursor = target
	for cursor.BlockID != t.rootID {
		v := t.vertices[cursor.BlockID]
		committed = append(committed, &model.CommittedBlock{
			Block:           cursor,
			CertifyingQC:    certQC[cursor.BlockID],
			StateCommitment: v.stateCommitment,
		})
		cursor = t.vertices[cursor.ParentID()].block
	}
	// reverse into ascending round order
	for i, j := 0, len(committed)-1; i < j; i, j = i+1, j-1 {
		committed[i], committed[j] = committed[j], committed[i]
	}
	return committed, nil
}

// GetBlock returns the block with the given id, if it is in the tree.
func (t *BlockTree) GetBlock(blockID nimbus.Identifier) (*model.Block, bool) {
	v, ok := t.vertices[blockID]
	if !ok {
		return nil, false
	}
	return v.block, true
}

// GetStateCommitment returns the speculative execution result of the block
// with the given id, if the block is in the tree.
func (t *BlockTree) GetStateCommitment(blockID nimbus.Identifier) (nimbus.StateCommitment, bool) {
	v, ok := t.vertices[blockID]
	if !ok {
		return nimbus.DummyStateCommitment, false
	}
	return v.stateCommitment, true
}

// GetBlocksForRound returns all blocks proposed for the given round.
func (t *BlockTree) GetBlocksForRound(round uint64) []*model.Block {
	verts := t.byRound[round]
	blocks := make([]*model.Block, 0, len(verts))
	for _, v := range verts {
		blocks = append(blocks, v.block)
	}
	return blocks
}

// PathFromRoot returns the blocks on the path from the committed root
// (exclusive) to the given block (inclusive), in ascending round order.
func (t *BlockTree) PathFromRoot(blockID nimbus.Identifier) ([]*model.Block, error) {
	v, ok := t.vertices[blockID]
	if !ok {
		return nil, fmt.Errorf("block %v not in tree", blockID)
	}
	var path []*model.Block
	cursor := v.block
	for cursor.BlockID != t.rootID {
		path = append(path, cursor)
		parent, ok := t.vertices[cursor.ParentID()]
		if !ok {
			return nil, fmt.Errorf("broken ancestry: block %v not in tree", cursor.ParentID())
		}
		cursor = parent.block
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Prune makes the given block the new root and discards every block outside
// its subtree. The new root must be certified.
func (t *BlockTree) Prune(newRootID nimbus.Identifier) error {
	newRoot, ok := t.vertices[newRootID]
	if !ok {
		return fmt.Errorf("cannot prune to unknown block %v", newRootID)
	}
	if newRoot.certifyingQC == nil {
		return fmt.Errorf("cannot prune to uncertified block %v", newRootID)
	}
	if newRootID == t.rootID {
		return nil
	}

	// keep the new root and its descendants
	kept := make(map[nimbus.Identifier]*vertex, len(t.vertices))
	queue := []nimbus.Identifier{newRootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		v := t.vertices[id]
		kept[id] = v
		queue = append(queue, v.children...)
	}

	byRound := make(map[uint64][]*vertex, len(t.byRound))
	for _, v := range kept {
		byRound[v.block.Round] = append(byRound[v.block.Round], v)
	}
	for round := range t.qcForRound {
		if round < newRoot.block.Round {
			delete(t.qcForRound, round)
		}
	}

	t.vertices = kept
	t.byRound = byRound
	t.rootID = newRootID
	t.rootRound = newRoot.block.Round
	return nil
}

// Reanchor re-roots the tree at a committed block delivered by state sync.
// If the block is already in the tree, its subtree is preserved and the rest
// pruned; otherwise every current block is discarded and the tree restarts at
// the new root. Re-anchoring at the current root is a no-op.
func (t *BlockTree) Reanchor(root *model.CommittedBlock) error {
	if root.CertifyingQC == nil {
		return model.NewConfigurationErrorf("new root block %v has no certifying QC", root.Block.BlockID)
	}
	if root.CertifyingQC.BlockID != root.Block.BlockID || root.CertifyingQC.Round != root.Block.Round {
		return model.NewConfigurationErrorf("new root QC does not certify the new root block")
	}
	if root.Block.BlockID == t.rootID {
		return nil
	}
	if root.Block.Round <= t.rootRound {
		return fmt.Errorf("cannot reanchor from committed round %d back to round %d", t.rootRound, root.Block.Round)
	}

	if v, ok := t.vertices[root.Block.BlockID]; ok {
		if v.certifyingQC == nil {
			err := t.incorporateQC(root.CertifyingQC, v)
			if err != nil {
				return err
			}
		}
		return t.Prune(root.Block.BlockID)
	}

	rootVertex := &vertex{
		block:           root.Block,
		stateCommitment: root.StateCommitment,
		certifyingQC:    root.CertifyingQC,
	}
	t.vertices = map[nimbus.Identifier]*vertex{root.Block.BlockID: rootVertex}
	t.byRound = map[uint64][]*vertex{root.Block.Round: {rootVertex}}
	t.qcForRound = map[uint64]nimbus.Identifier{root.Block.Round: root.Block.BlockID}
	t.rootID = root.Block.BlockID
	t.rootRound = root.Block.Round
	if root.CertifyingQC.Round > t.newestQC.Round {
		t.newestQC = root.CertifyingQC
	}
	return nil
}

// CommittedRound returns the round of the current root.
func (t *BlockTree) CommittedRound() uint64 {
	return t.rootRound
}

// CommittedBlockID returns the identifier of the current root.
func (t *BlockTree) CommittedBlockID() nimbus.Identifier {
	return t.rootID
}

// NewestQC returns the QC with the highest round incorporated so far.
func (t *BlockTree) NewestQC() *nimbus.QuorumCertificate {
	return t.newestQC
}
