package nimbus

import (
	"fmt"
)

// TimeoutCertificate (TC) proves that a supermajority of stake abandoned the
// given round without certifying a block. Each contributing validator signed
// the message (round, newest QC round known to that validator); the TC
// aggregates those signatures and carries the newest QC among all
// contributions, which lets any recipient catch up to the certified chain.
type TimeoutCertificate struct {
	Epoch uint64
	Round uint64
	// NewestQC is the newest quorum certificate among all timeout
	// contributions aggregated in this TC.
	NewestQC *QuorumCertificate
	// NewestQCRounds lists, for each signer in SignerIDs (same order), the
	// round of the newest QC that signer reported in its timeout.
	NewestQCRounds []uint64
	// SignerIDs lists the validators whose timeout signatures are aggregated
	// in SigData.
	SignerIDs IdentifierList
	// SigData is the aggregated BLS signature over the timeout messages.
	SigData []byte
}

// UntrustedTimeoutCertificate is an untrusted input-only representation of a
// TimeoutCertificate, used for construction via NewTimeoutCertificate.
type UntrustedTimeoutCertificate TimeoutCertificate

// NewTimeoutCertificate constructs a TimeoutCertificate after checking the
// structural consistency requirements. Cryptographic validity of the
// aggregated signature is _not_ checked here.
//
// All errors indicate that a valid TimeoutCertificate cannot be constructed
// from the input.
func NewTimeoutCertificate(untrusted UntrustedTimeoutCertificate) (*TimeoutCertificate, error) {
	if untrusted.NewestQC == nil {
		return nil, fmt.Errorf("newest QC must not be nil")
	}
	if untrusted.Round < untrusted.NewestQC.Round {
		return nil, fmt.Errorf("TC's round %d cannot be smaller than the round %d of the included QC", untrusted.Round, untrusted.NewestQC.Round)
	}
	if len(untrusted.SignerIDs) == 0 {
		return nil, fmt.Errorf("SignerIDs must not be empty")
	}
	if len(untrusted.NewestQCRounds) != len(untrusted.SignerIDs) {
		return nil, fmt.Errorf("must have exactly one newest-QC round per signer, got %d rounds for %d signers",
			len(untrusted.NewestQCRounds), len(untrusted.SignerIDs))
	}
	for _, round := range untrusted.NewestQCRounds {
		if round > untrusted.NewestQC.Round {
			return nil, fmt.Errorf("included QC (round=%d) should be equal or higher to every contributed QC round, but found %d",
				untrusted.NewestQC.Round, round)
		}
	}
	if len(untrusted.SigData) == 0 {
		return nil, fmt.Errorf("SigData must not be empty")
	}
	return &TimeoutCertificate{
		Epoch:          untrusted.Epoch,
		Round:          untrusted.Round,
		NewestQC:       untrusted.NewestQC,
		NewestQCRounds: untrusted.NewestQCRounds,
		SignerIDs:      untrusted.SignerIDs,
		SigData:        untrusted.SigData,
	}, nil
}

// ID returns the content identifier of the certificate.
func (tc *TimeoutCertificate) ID() Identifier {
	return MakeID(tc)
}

func (tc *TimeoutCertificate) String() string {
	return fmt.Sprintf("TC(round=%d, newest_qc_round=%d, signers=%d)", tc.Round, tc.NewestQC.Round, len(tc.SignerIDs))
}
