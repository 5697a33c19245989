package commitrule

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
)

// TwoChain is the Jolteon/DiemBFT commit rule: block B is committed once its
// child C is certified and round(C) = round(B)+1. The shorter chain is sound
// because round changes carry timeout certificates proving the newest QC of a
// supermajority.
type TwoChain struct{}

var _ bft.CommitRule = (*TwoChain)(nil)

func NewTwoChain() *TwoChain {
	return &TwoChain{}
}

// CommitTarget returns the parent of the certified block if parent and child
// sit on contiguous rounds.
func (r *TwoChain) CommitTarget(certified *model.CertifiedBlock, blocks bft.BlockRetriever) (*model.Block, bool) {
	c := certified.Block
	b, ok := blocks.GetBlock(c.ParentID())
	if !ok {
		return nil, false
	}
	if c.Round != b.Round+1 {
		return nil, false
	}
	return b, true
}
