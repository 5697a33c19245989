// Package commitrule implements the pluggable finalization rules. Given a
// freshly certified block, a rule decides which ancestor (if any) becomes
// committed. Which rule is in force is fixed by the epoch configuration.
package commitrule

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
)

// ThreeChain is the classic HotStuff commit rule: block B is committed once
// the chain B <- C <- D exists with round(C) = round(B)+1 and
// round(D) = round(C)+1, and D is certified. Contiguous rounds prove no
// timeout interleaved, so no conflicting block can ever gather a quorum.
type ThreeChain struct{}

var _ bft.CommitRule = (*ThreeChain)(nil)

func NewThreeChain() *ThreeChain {
	return &ThreeChain{}
}

// CommitTarget returns the grandparent of the certified block if the three
// blocks sit on contiguous rounds.
func (r *ThreeChain) CommitTarget(certified *model.CertifiedBlock, blocks bft.BlockRetriever) (*model.Block, bool) {
	d := certified.Block
	c, ok := blocks.GetBlock(d.ParentID())
	if !ok {
		return nil, false
	}
	b, ok := blocks.GetBlock(c.ParentID())
	if !ok {
		return nil, false
	}
	if c.Round != b.Round+1 || d.Round != c.Round+1 {
		return nil, false
	}
	return b, true
}
