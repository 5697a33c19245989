// Package eventloop serializes all consensus events into the event handler.
// Proposals, certificates, partial-TC signals and sync info arrive from
// network goroutines and the aggregators' worker pools; the loop feeds them
// to the strictly single-threaded event handler one at a time, interleaved
// with the pacemaker's round deadlines.
package eventloop

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// EventLoop runs the event handler on a single goroutine. Submission methods
// are safe for concurrent use; they enqueue and never wait for processing.
//
// The loop is fail-stop: the first error from the event handler terminates
// Run. Consensus must not continue on a state machine whose invariants may
// be violated.
type EventLoop struct {
	log          zerolog.Logger
	eventHandler bft.EventHandler

	proposals  chan *model.Proposal
	qcs        chan *nimbus.QuorumCertificate
	tcs        chan *nimbus.TimeoutCertificate
	partialTCs chan uint64
	syncInfos  chan *model.SyncInfo

	// closed when Run exits, so late submissions do not block forever
	done chan struct{}
}

func New(log zerolog.Logger, eventHandler bft.EventHandler) *EventLoop {
	return &EventLoop{
		log:          log.With().Str("component", "event_loop").Logger(),
		eventHandler: eventHandler,
		proposals:    make(chan *model.Proposal, 64),
		qcs:          make(chan *nimbus.QuorumCertificate, 8),
		tcs:          make(chan *nimbus.TimeoutCertificate, 8),
		partialTCs:   make(chan uint64, 8),
		syncInfos:    make(chan *model.SyncInfo, 8),
		done:         make(chan struct{}),
	}
}

// Run starts the event handler and processes events until the context is
// cancelled or the handler fails. It must be called exactly once.
func (l *EventLoop) Run(ctx context.Context) error {
	defer close(l.done)

	err := l.eventHandler.Start(ctx)
	if err != nil {
		return fmt.Errorf("could not start event handler: %w", err)
	}

	for {
		// the round deadline takes priority over queued events, so a full
		// queue cannot delay the timeout path indefinitely
		select {
		case <-l.eventHandler.TimeoutChannel():
			err = l.eventHandler.OnLocalTimeout()
			if err != nil {
				return fmt.Errorf("could not process local timeout: %w", err)
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.eventHandler.TimeoutChannel():
			err = l.eventHandler.OnLocalTimeout()
		case proposal := <-l.proposals:
			err = l.eventHandler.OnReceiveProposal(proposal)
		case qc := <-l.qcs:
			err = l.eventHandler.OnQCConstructed(qc)
		case tc := <-l.tcs:
			err = l.eventHandler.OnTCConstructed(tc)
		case round := <-l.partialTCs:
			err = l.eventHandler.OnPartialTimeoutCertificate(round)
		case syncInfo := <-l.syncInfos:
			err = l.eventHandler.OnReceiveSyncInfo(syncInfo)
		}
		if err != nil {
			return fmt.Errorf("event handler failed: %w", err)
		}
	}
}

// SubmitProposal queues a validated proposal for processing.
func (l *EventLoop) SubmitProposal(proposal *model.Proposal) {
	select {
	case l.proposals <- proposal:
	case <-l.done:
	}
}

// OnQCConstructed queues a QC assembled by the vote aggregator. The
// signature matches the vote collector factory's construction callback.
func (l *EventLoop) OnQCConstructed(qc *nimbus.QuorumCertificate) {
	select {
	case l.qcs <- qc:
	case <-l.done:
	}
}

// OnTCConstructed queues a TC assembled by the timeout aggregator.
func (l *EventLoop) OnTCConstructed(tc *nimbus.TimeoutCertificate) {
	select {
	case l.tcs <- tc:
	case <-l.done:
	}
}

// OnPartialTimeoutCertificate queues the f+1 timeout-weight signal for the
// given round.
func (l *EventLoop) OnPartialTimeoutCertificate(round uint64) {
	select {
	case l.partialTCs <- round:
	case <-l.done:
	}
}

// SubmitSyncInfo queues a peer's newest certificates for processing.
func (l *EventLoop) SubmitSyncInfo(syncInfo *model.SyncInfo) {
	select {
	case l.syncInfos <- syncInfo:
	case <-l.done:
	}
}
