package signature

import (
	"github.com/onflow/crypto"
	"github.com/onflow/crypto/hash"
)

// List of domain separation tags for protocol signatures.
//
// Protocol-level signatures use the BLS signature scheme. Hashing to the
// curve includes a domain separation tag scoping the signature to a specific
// sub-protocol, which simulates orthogonal random oracles: a vote signature
// can never double as a timeout signature.

// Nimbus protocol prefix
const protocolPrefix = "NIMBUS-"

// Nimbus protocol version
const protocolVersion = "-V00-"

// Ciphersuite index; only one ciphersuite is used in the Nimbus protocol.
const cipherSuiteIndex = "CS00-"

func tag(domain string) string {
	return protocolPrefix + domain + protocolVersion + cipherSuiteIndex + "with-"
}

var (
	// ConsensusVoteTag is used for consensus votes on block proposals.
	ConsensusVoteTag = tag("Consensus_Vote")
	// ConsensusTimeoutTag is used for pacemaker timeout objects.
	ConsensusTimeoutTag = tag("Consensus_Timeout")
)

// NewBLSHasher returns a hasher to be used for BLS signing and verifying in
// the protocol. It abstracts the hasher details from the protocol logic.
//
// The hasher returned is the expand-message step in the BLS hash-to-curve.
// It uses a xof (extendable output function) based on KMAC128 and has
// 128-byte outputs.
func NewBLSHasher(tag string) hash.Hasher {
	return crypto.NewExpandMsgXOFKMAC128(tag)
}
