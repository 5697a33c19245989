// Package verification implements the cryptographic layer of the consensus
// protocol: producing votes, timeouts and proposals (Signer) and checking
// individual as well as aggregated signatures (Verifier).
package verification

import (
	"fmt"

	"github.com/onflow/crypto/hash"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/module"
	msig "github.com/nimbuschain/nimbus-go/module/signature"
)

// Signer creates this node's signed consensus messages with its staking key.
type Signer struct {
	me            module.Local
	voteHasher    hash.Hasher
	timeoutHasher hash.Hasher
}

var _ bft.Signer = (*Signer)(nil)

// NewSigner instantiates a Signer around the node's local key object.
func NewSigner(me module.Local) *Signer {
	return &Signer{
		me:            me,
		voteHasher:    msig.NewBLSHasher(msig.ConsensusVoteTag),
		timeoutHasher: msig.NewBLSHasher(msig.ConsensusTimeoutTag),
	}
}

// CreateVote signs a vote for the given block.
func (s *Signer) CreateVote(block *model.Block) (*model.Vote, error) {
	msg := MakeVoteMessage(block.Round, block.BlockID)
	sig, err := s.me.Sign(msg, s.voteHasher)
	if err != nil {
		return nil, fmt.Errorf("could not sign vote for block %v: %w", block.BlockID, err)
	}
	vote, err := model.NewVote(model.UntrustedVote{
		Round:    block.Round,
		Epoch:    block.Epoch,
		BlockID:  block.BlockID,
		SignerID: s.me.NodeID(),
		SigData:  sig,
	})
	if err != nil {
		return nil, fmt.Errorf("could not construct vote: %w", err)
	}
	return vote, nil
}

// CreateTimeout signs a timeout object for the given round.
func (s *Signer) CreateTimeout(curRound uint64, newestQC *nimbus.QuorumCertificate, lastRoundTC *nimbus.TimeoutCertificate) (*model.TimeoutObject, error) {
	msg := MakeTimeoutMessage(curRound, newestQC.Round)
	sig, err := s.me.Sign(msg, s.timeoutHasher)
	if err != nil {
		return nil, fmt.Errorf("could not sign timeout for round %d: %w", curRound, err)
	}
	timeout := &model.TimeoutObject{
		Round:       curRound,
		Epoch:       newestQC.Epoch,
		NewestQC:    newestQC,
		LastRoundTC: lastRoundTC,
		SignerID:    s.me.NodeID(),
		SigData:     sig,
	}
	return timeout, nil
}

// CreateProposal signs the given block as its proposer. The signature is the
// proposer's vote for its own block.
func (s *Signer) CreateProposal(block *model.Block, payload *nimbus.Payload, lastRoundTC *nimbus.TimeoutCertificate) (*model.Proposal, error) {
	if block.ProposerID != s.me.NodeID() {
		return nil, fmt.Errorf("cannot sign proposal for someone else's block (proposer %v)", block.ProposerID)
	}
	vote, err := s.CreateVote(block)
	if err != nil {
		return nil, fmt.Errorf("could not create proposer vote: %w", err)
	}
	proposal := &model.Proposal{
		Block:       block,
		Payload:     payload,
		LastRoundTC: lastRoundTC,
		SigData:     vote.SigData,
	}
	return proposal, nil
}
