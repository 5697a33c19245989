package nimbus

import (
	"fmt"
)

// QuorumCertificate (QC) proves that a supermajority of stake voted for the
// referenced block in the given round. The certificate aggregates the BLS
// signatures of all signers over the message (block ID, round).
// A QC satisfies QC.Round == certified block's round.
type QuorumCertificate struct {
	Epoch   uint64
	Round   uint64
	BlockID Identifier
	// SignerIDs lists the validators whose signatures are aggregated in
	// SigData, in the order they were aggregated. Duplicates render the
	// certificate invalid.
	SignerIDs IdentifierList
	// SigData is the aggregated BLS signature over the vote message.
	SigData []byte
}

// UntrustedQuorumCertificate is an untrusted input-only representation of a
// QuorumCertificate, used for construction. It forces callers to construct
// certificates through NewQuorumCertificate with named fields.
type UntrustedQuorumCertificate QuorumCertificate

// NewQuorumCertificate constructs a QuorumCertificate after checking the
// structural consistency requirements. Cryptographic validity of the
// aggregated signature is _not_ checked here; that is the verifier's job.
//
// All errors indicate that a valid QuorumCertificate cannot be constructed
// from the input.
func NewQuorumCertificate(untrusted UntrustedQuorumCertificate) (*QuorumCertificate, error) {
	if untrusted.BlockID == ZeroID {
		return nil, fmt.Errorf("BlockID must not be empty")
	}
	if len(untrusted.SignerIDs) == 0 {
		return nil, fmt.Errorf("SignerIDs must not be empty")
	}
	if len(untrusted.SigData) == 0 {
		return nil, fmt.Errorf("SigData must not be empty")
	}
	return &QuorumCertificate{
		Epoch:     untrusted.Epoch,
		Round:     untrusted.Round,
		BlockID:   untrusted.BlockID,
		SignerIDs: untrusted.SignerIDs,
		SigData:   untrusted.SigData,
	}, nil
}

// ID returns the content identifier of the certificate.
func (qc *QuorumCertificate) ID() Identifier {
	return MakeID(qc)
}

func (qc *QuorumCertificate) String() string {
	return fmt.Sprintf("QC(round=%d, block=%s, signers=%d)", qc.Round, qc.BlockID, len(qc.SignerIDs))
}
