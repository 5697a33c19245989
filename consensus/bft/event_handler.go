package bft

import (
	"context"
	"time"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// EventHandler runs the consensus state machine for one validator: it reacts
// to proposals, certificates, timeouts and sync info, one event at a time.
// The caller (the event loop) is responsible for serializing all calls; the
// handler itself holds no locks.
type EventHandler interface {
	// Start arms the pacemaker and processes the current round (proposing
	// if this node is the leader). The context bounds the lifetime of the
	// pacemaker's deadline timers.
	Start(ctx context.Context) error

	// OnReceiveProposal processes a validated block proposal.
	OnReceiveProposal(proposal *model.Proposal) error

	// OnQCConstructed processes a QC assembled by the local vote aggregator.
	OnQCConstructed(qc *nimbus.QuorumCertificate) error

	// OnTCConstructed processes a TC assembled by the local timeout
	// aggregator.
	OnTCConstructed(tc *nimbus.TimeoutCertificate) error

	// OnLocalTimeout processes the expiry of the current round's deadline:
	// sign and broadcast a timeout, re-arm for rebroadcast.
	OnLocalTimeout() error

	// OnPartialTimeoutCertificate processes the accumulation of f+1 timeout
	// weight for a round.
	OnPartialTimeoutCertificate(round uint64) error

	// OnReceiveSyncInfo processes a peer's newest certificates.
	OnReceiveSyncInfo(syncInfo *model.SyncInfo) error

	// TimeoutChannel returns the pacemaker's deadline channel for the
	// current round.
	TimeoutChannel() <-chan time.Time
}
