// Package notifications provides Consumer implementations: a no-op consumer,
// a logging consumer and a pubsub distributor fanning notifications out to
// multiple subscribers.
package notifications

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// NoopConsumer ignores all notifications. Embed it to implement only a
// subset of the Consumer interface.
type NoopConsumer struct{}

var _ bft.Consumer = (*NoopConsumer)(nil)

func NewNoopConsumer() *NoopConsumer {
	return &NoopConsumer{}
}

func (*NoopConsumer) OnEnteringRound(uint64, nimbus.Identifier)                  {}
func (*NoopConsumer) OnStartingTimeout(model.TimerInfo)                          {}
func (*NoopConsumer) OnLocalTimeout(uint64)                                      {}
func (*NoopConsumer) OnPartialTimeoutCertificate(uint64)                         {}
func (*NoopConsumer) OnQCTriggeredRoundChange(*nimbus.QuorumCertificate, uint64) {}
func (*NoopConsumer) OnTCTriggeredRoundChange(*nimbus.TimeoutCertificate, uint64) {
}
func (*NoopConsumer) OnReceiveProposal(uint64, *model.Proposal)                {}
func (*NoopConsumer) OnProposingBlock(*model.Proposal)                         {}
func (*NoopConsumer) OnVoting(*model.Vote)                                     {}
func (*NoopConsumer) OnBlockIncorporated(*model.Block)                         {}
func (*NoopConsumer) OnQCConstructed(*nimbus.QuorumCertificate)                {}
func (*NoopConsumer) OnTCConstructed(*nimbus.TimeoutCertificate)               {}
func (*NoopConsumer) OnBlockCommitted(*model.CommittedBlock)                   {}
func (*NoopConsumer) OnEpochTransition(*nimbus.EpochSetup)                     {}
func (*NoopConsumer) OnDoubleProposeDetected(*model.Block, *model.Block)       {}
func (*NoopConsumer) OnDoubleVotingDetected(*model.Vote, *model.Vote)          {}
func (*NoopConsumer) OnDoubleTimeoutDetected(*model.TimeoutObject, *model.TimeoutObject) {
}
func (*NoopConsumer) OnInvalidVoteDetected(model.InvalidVoteError)       {}
func (*NoopConsumer) OnInvalidTimeoutDetected(model.InvalidTimeoutError) {}
