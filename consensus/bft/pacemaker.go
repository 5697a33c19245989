package bft

import (
	"context"
	"time"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// LivenessData is the pacemaker state persisted across restarts, so a node
// re-enters the round it was in rather than regressing to an old one.
type LivenessData struct {
	// Epoch the pacemaker is operating in.
	Epoch uint64
	// CurrentRound is the round the node is in. Strictly monotonically
	// increasing within an epoch.
	CurrentRound uint64
	// NewestQC is the quorum certificate with the highest round the node
	// knows about.
	NewestQC *nimbus.QuorumCertificate
	// LastRoundTC is the timeout certificate for the previous round, if the
	// previous round ended without a QC; nil otherwise.
	LastRoundTC *nimbus.TimeoutCertificate
}

// PaceMaker tracks the current round and its deadline, and drives the round
// forward when it observes certificates. Round numbers only increase; there
// is no terminal state. An epoch change replaces the PaceMaker instance.
//
// Not safe for concurrent use; driven by the event loop.
type PaceMaker interface {
	// CurRound returns the current round.
	CurRound() uint64

	// NewestQC returns the QC with the highest round known to the pacemaker.
	NewestQC() *nimbus.QuorumCertificate

	// LastRoundTC returns the TC for the previous round, or nil if the
	// previous round advanced via a QC.
	LastRoundTC() *nimbus.TimeoutCertificate

	// ProcessQC notifies the pacemaker about a new QC, which might allow it
	// to fast-forward its round and reset the timeout backoff. Returns a
	// NewRoundEvent if the round advanced, nil otherwise.
	ProcessQC(qc *nimbus.QuorumCertificate) (*model.NewRoundEvent, error)

	// ProcessTC notifies the pacemaker about a new TC, which might allow it
	// to fast-forward its round; the timeout backoff grows. Returns a
	// NewRoundEvent if the round advanced, nil otherwise. Accepts nil input.
	ProcessTC(tc *nimbus.TimeoutCertificate) (*model.NewRoundEvent, error)

	// OnPartialTimeoutCertificate notifies the pacemaker that f+1 validators
	// (by weight) have timed out the given round. If it matches the current
	// round, the local timeout fires immediately: enough honest validators
	// have given up that the round cannot succeed.
	OnPartialTimeoutCertificate(round uint64)

	// TimeoutChannel returns the channel signalling the current round's
	// deadline, and subsequent rebroadcast ticks. A new channel is armed on
	// every round transition.
	TimeoutChannel() <-chan time.Time

	// Start arms the timeout for the current round. The context bounds the
	// lifetime of the deadline timers.
	Start(ctx context.Context)

	// BlockRateDelay returns the delay applied before broadcasting the
	// node's own proposals, used to control block production rate.
	BlockRateDelay() time.Duration
}
