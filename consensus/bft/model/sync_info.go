package model

import (
	"fmt"

	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// SyncInfo carries the sender's newest certificates, letting a lagging peer
// catch up to the certified chain without invoking full state sync.
type SyncInfo struct {
	HighestQC *nimbus.QuorumCertificate
	// HighestTC may be nil if the sender's last round advance was QC-driven.
	HighestTC *nimbus.TimeoutCertificate
}

// NewSyncInfo constructs a SyncInfo and checks its structural consistency.
func NewSyncInfo(qc *nimbus.QuorumCertificate, tc *nimbus.TimeoutCertificate) (*SyncInfo, error) {
	if qc == nil {
		return nil, fmt.Errorf("highest QC must not be nil")
	}
	if tc != nil && tc.Round < qc.Round {
		return nil, fmt.Errorf("TC round (%d) below QC round (%d) carries no information", tc.Round, qc.Round)
	}
	return &SyncInfo{HighestQC: qc, HighestTC: tc}, nil
}

// HighestRound returns the highest round attested by the certificates.
func (s *SyncInfo) HighestRound() uint64 {
	round := s.HighestQC.Round
	if s.HighestTC != nil && s.HighestTC.Round > round {
		round = s.HighestTC.Round
	}
	return round
}
