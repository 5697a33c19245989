package model

import (
	"fmt"
	"time"

	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// TimeoutObject is a validator's signed statement that it gave up on the
// given round. It carries the newest QC known to the validator (the evidence
// the next leader needs to extend the certified chain) and, if the previous
// round also failed, the TC that let the validator enter the current round.
type TimeoutObject struct {
	Round    uint64
	Epoch    uint64
	NewestQC *nimbus.QuorumCertificate
	// LastRoundTC is only set if the validator entered the current round via
	// a TC, i.e. NewestQC.Round+1 < Round.
	LastRoundTC *nimbus.TimeoutCertificate
	SignerID    nimbus.Identifier
	SigData     []byte
}

// ID returns the identifier for the timeout object.
func (t *TimeoutObject) ID() nimbus.Identifier {
	return nimbus.MakeID(t)
}

func (t *TimeoutObject) String() string {
	return fmt.Sprintf("timeout(round=%d, newest_qc_round=%d, signer=%s)", t.Round, t.NewestQC.Round, t.SignerID)
}

// TimerInfo describes a round deadline armed by the pacemaker.
type TimerInfo struct {
	Round     uint64
	StartTime time.Time
	Duration  time.Duration
}

// NewRoundEvent is emitted by the pacemaker when the local round advances.
type NewRoundEvent struct {
	Round uint64
}
