// Package pubsub fans consensus notifications out to dynamically registered
// consumers.
package pubsub

import (
	"sync"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Distributor distributes every notification to all registered consumers.
// Safe for concurrent use; registration may happen while notifications flow.
type Distributor struct {
	consumers []bft.Consumer
	lock      sync.RWMutex
}

var _ bft.Consumer = (*Distributor)(nil)

func NewDistributor() *Distributor {
	return &Distributor{}
}

// AddConsumer registers a consumer for all subsequent notifications.
func (d *Distributor) AddConsumer(consumer bft.Consumer) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.consumers = append(d.consumers, consumer)
}

func (d *Distributor) OnEnteringRound(round uint64, leader nimbus.Identifier) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnEnteringRound(round, leader)
	}
}

func (d *Distributor) OnStartingTimeout(info model.TimerInfo) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnStartingTimeout(info)
	}
}

func (d *Distributor) OnLocalTimeout(round uint64) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnLocalTimeout(round)
	}
}

func (d *Distributor) OnPartialTimeoutCertificate(round uint64) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnPartialTimeoutCertificate(round)
	}
}

func (d *Distributor) OnQCTriggeredRoundChange(qc *nimbus.QuorumCertificate, newRound uint64) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnQCTriggeredRoundChange(qc, newRound)
	}
}

func (d *Distributor) OnTCTriggeredRoundChange(tc *nimbus.TimeoutCertificate, newRound uint64) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnTCTriggeredRoundChange(tc, newRound)
	}
}

func (d *Distributor) OnReceiveProposal(curRound uint64, proposal *model.Proposal) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnReceiveProposal(curRound, proposal)
	}
}

func (d *Distributor) OnProposingBlock(proposal *model.Proposal) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnProposingBlock(proposal)
	}
}

func (d *Distributor) OnVoting(vote *model.Vote) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnVoting(vote)
	}
}

func (d *Distributor) OnBlockIncorporated(block *model.Block) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnBlockIncorporated(block)
	}
}

func (d *Distributor) OnQCConstructed(qc *nimbus.QuorumCertificate) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnQCConstructed(qc)
	}
}

func (d *Distributor) OnTCConstructed(tc *nimbus.TimeoutCertificate) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnTCConstructed(tc)
	}
}

func (d *Distributor) OnBlockCommitted(block *model.CommittedBlock) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnBlockCommitted(block)
	}
}

func (d *Distributor) OnEpochTransition(setup *nimbus.EpochSetup) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnEpochTransition(setup)
	}
}

func (d *Distributor) OnDoubleProposeDetected(block *model.Block, alt *model.Block) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnDoubleProposeDetected(block, alt)
	}
}

func (d *Distributor) OnDoubleVotingDetected(first *model.Vote, conflicting *model.Vote) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnDoubleVotingDetected(first, conflicting)
	}
}

func (d *Distributor) OnDoubleTimeoutDetected(first *model.TimeoutObject, conflicting *model.TimeoutObject) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnDoubleTimeoutDetected(first, conflicting)
	}
}

func (d *Distributor) OnInvalidVoteDetected(err model.InvalidVoteError) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnInvalidVoteDetected(err)
	}
}

func (d *Distributor) OnInvalidTimeoutDetected(err model.InvalidTimeoutError) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, consumer := range d.consumers {
		consumer.OnInvalidTimeoutDetected(err)
	}
}
