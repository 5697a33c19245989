package module

import (
	"github.com/onflow/crypto"
	"github.com/onflow/crypto/hash"

	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Local encapsulates the node's own identity and signing capability. The
// staking private key never leaves this interface.
type Local interface {
	// NodeID returns this node's identifier.
	NodeID() nimbus.Identifier

	// Sign signs the message with the node's staking key, using the given
	// hasher for domain separation.
	Sign(msg []byte, hasher hash.Hasher) (crypto.Signature, error)

	// PublicKey returns the public counterpart of the staking key.
	PublicKey() crypto.PublicKey
}
