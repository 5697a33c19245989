package helper

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

func MakeVote(options ...func(*model.Vote)) *model.Vote {
	vote := model.Vote{
		Round:    rand64() % 1000000,
		Epoch:    1,
		BlockID:  MakeIdentifier(),
		SignerID: MakeIdentifier(),
		SigData:  MakeSigData(),
	}
	for _, option := range options {
		option(&vote)
	}
	return &vote
}

func WithVoteRound(round uint64) func(*model.Vote) {
	return func(vote *model.Vote) {
		vote.Round = round
	}
}

func WithVoteBlock(block *model.Block) func(*model.Vote) {
	return func(vote *model.Vote) {
		vote.Round = block.Round
		vote.Epoch = block.Epoch
		vote.BlockID = block.BlockID
	}
}

func WithVoteSigner(signerID nimbus.Identifier) func(*model.Vote) {
	return func(vote *model.Vote) {
		vote.SignerID = signerID
	}
}

func MakeProposal(options ...func(*model.Proposal)) *model.Proposal {
	proposal := model.Proposal{
		Block:   MakeBlock(),
		Payload: nimbus.EmptyPayload(),
		SigData: MakeSigData(),
	}
	for _, option := range options {
		option(&proposal)
	}
	return &proposal
}

func WithProposalBlock(block *model.Block) func(*model.Proposal) {
	return func(proposal *model.Proposal) {
		proposal.Block = block
	}
}

func WithProposalLastRoundTC(tc *nimbus.TimeoutCertificate) func(*model.Proposal) {
	return func(proposal *model.Proposal) {
		proposal.LastRoundTC = tc
	}
}
