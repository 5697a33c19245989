// Package pacemaker implements the round state machine: it tracks the
// current round and its deadline, and advances the round whenever a quorum
// or timeout certificate proves the network has moved on. Round transitions
// are persisted before they take effect, so a restart resumes in the round
// the node was in.
package pacemaker

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/pacemaker/timeout"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// ActivePaceMaker implements bft.PaceMaker. It is driven exclusively by the
// event loop; no internal locking.
type ActivePaceMaker struct {
	ctx            context.Context
	timeoutControl *timeout.Controller
	notifier       bft.Consumer
	persister      bft.Persister
	livenessData   *bft.LivenessData
	started        bool
}

var _ bft.PaceMaker = (*ActivePaceMaker)(nil)

// New creates an ActivePaceMaker, restoring the persisted round state.
func New(
	timeoutController *timeout.Controller,
	notifier bft.Consumer,
	persister bft.Persister,
) (*ActivePaceMaker, error) {
	livenessData, err := persister.GetLivenessData()
	if err != nil {
		return nil, fmt.Errorf("could not recover liveness data: %w", err)
	}
	if livenessData.CurrentRound < 1 {
		return nil, model.NewConfigurationErrorf("current round must be at least 1")
	}
	if livenessData.NewestQC == nil {
		return nil, model.NewConfigurationErrorf("liveness data must carry a newest QC")
	}
	return &ActivePaceMaker{
		timeoutControl: timeoutController,
		notifier:       notifier,
		persister:      persister,
		livenessData:   livenessData,
	}, nil
}

// CurRound returns the current round.
func (p *ActivePaceMaker) CurRound() uint64 {
	return p.livenessData.CurrentRound
}

// NewestQC returns the QC with the highest round known to the pacemaker.
func (p *ActivePaceMaker) NewestQC() *nimbus.QuorumCertificate {
	return p.livenessData.NewestQC
}

// LastRoundTC returns the TC that ended the previous round, or nil if the
// previous round produced a QC.
func (p *ActivePaceMaker) LastRoundTC() *nimbus.TimeoutCertificate {
	return p.livenessData.LastRoundTC
}

// TimeoutChannel returns the channel of the current round's deadline.
func (p *ActivePaceMaker) TimeoutChannel() <-chan time.Time {
	return p.timeoutControl.Channel()
}

// BlockRateDelay returns the broadcast delay for this node's own proposals.
func (p *ActivePaceMaker) BlockRateDelay() time.Duration {
	return p.timeoutControl.BlockRateDelay()
}

// ProcessQC advances the round to qc.Round+1 if the QC is newer than the
// current round, and shrinks the timeout backoff. A QC for an older round
// still updates the newest-QC tracker.
func (p *ActivePaceMaker) ProcessQC(qc *nimbus.QuorumCertificate) (*model.NewRoundEvent, error) {
	if qc == nil {
		return nil, nil
	}
	if qc.Round < p.livenessData.CurrentRound {
		err := p.updateNewestQC(qc)
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	newRound := qc.Round + 1
	updated := *p.livenessData
	updated.CurrentRound = newRound
	updated.LastRoundTC = nil
	if qc.Round > updated.NewestQC.Round {
		updated.NewestQC = qc
	}
	err := p.persister.PutLivenessData(&updated)
	if err != nil {
		return nil, fmt.Errorf("could not persist liveness data: %w", err)
	}
	p.livenessData = &updated

	p.timeoutControl.OnProgressBeforeTimeout()
	p.notifier.OnQCTriggeredRoundChange(qc, newRound)
	p.startRound()
	return &model.NewRoundEvent{Round: newRound}, nil
}

// ProcessTC advances the round to tc.Round+1 if the TC is newer than the
// current round, and grows the timeout backoff. Accepts nil input.
func (p *ActivePaceMaker) ProcessTC(tc *nimbus.TimeoutCertificate) (*model.NewRoundEvent, error) {
	if tc == nil {
		return nil, nil
	}
	if tc.Round < p.livenessData.CurrentRound {
		err := p.updateNewestQC(tc.NewestQC)
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	newRound := tc.Round + 1
	updated := *p.livenessData
	updated.CurrentRound = newRound
	updated.LastRoundTC = tc
	if tc.NewestQC.Round > updated.NewestQC.Round {
		updated.NewestQC = tc.NewestQC
	}
	err := p.persister.PutLivenessData(&updated)
	if err != nil {
		return nil, fmt.Errorf("could not persist liveness data: %w", err)
	}
	p.livenessData = &updated

	p.timeoutControl.OnTimeout()
	p.notifier.OnTCTriggeredRoundChange(tc, newRound)
	p.startRound()
	return &model.NewRoundEvent{Round: newRound}, nil
}

// OnPartialTimeoutCertificate fires the local timeout immediately if the
// partial TC is for the current round: enough honest weight has given up
// that the round cannot succeed anymore.
func (p *ActivePaceMaker) OnPartialTimeoutCertificate(round uint64) {
	if round != p.livenessData.CurrentRound {
		return
	}
	p.notifier.OnPartialTimeoutCertificate(round)
	p.timeoutControl.TriggerTimeout()
}

// Start arms the deadline of the current round. Must be called exactly once,
// before any certificates are fed in.
func (p *ActivePaceMaker) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true
	p.ctx = ctx
	p.startRound()
}

// startRound arms the timeout for the current round and notifies observers.
func (p *ActivePaceMaker) startRound() {
	if !p.started {
		return
	}
	timerInfo := p.timeoutControl.StartTimeout(p.ctx, p.livenessData.CurrentRound)
	p.notifier.OnStartingTimeout(timerInfo)
}

// updateNewestQC absorbs a QC that does not advance the round but may still
// be the newest certificate seen.
func (p *ActivePaceMaker) updateNewestQC(qc *nimbus.QuorumCertificate) error {
	if qc == nil || qc.Round <= p.livenessData.NewestQC.Round {
		return nil
	}
	updated := *p.livenessData
	updated.NewestQC = qc
	err := p.persister.PutLivenessData(&updated)
	if err != nil {
		return fmt.Errorf("could not persist liveness data: %w", err)
	}
	p.livenessData = &updated
	return nil
}
