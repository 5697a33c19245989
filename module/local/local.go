// Package local implements the node's own signing identity.
package local

import (
	"fmt"

	"github.com/onflow/crypto"
	"github.com/onflow/crypto/hash"

	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/module"
)

// Local holds this node's identifier and staking private key.
type Local struct {
	nodeID nimbus.Identifier
	sk     crypto.PrivateKey
}

var _ module.Local = (*Local)(nil)

// New creates a local identity. The key must be a BLS key on BLS12-381, as
// consensus signatures are aggregated.
func New(nodeID nimbus.Identifier, sk crypto.PrivateKey) (*Local, error) {
	if sk.Algorithm() != crypto.BLSBLS12381 {
		return nil, fmt.Errorf("staking key must be BLS on BLS12-381, got %s", sk.Algorithm())
	}
	l := &Local{
		nodeID: nodeID,
		sk:     sk,
	}
	return l, nil
}

func (l *Local) NodeID() nimbus.Identifier {
	return l.nodeID
}

func (l *Local) Sign(msg []byte, hasher hash.Hasher) (crypto.Signature, error) {
	return l.sk.Sign(msg, hasher)
}

func (l *Local) PublicKey() crypto.PublicKey {
	return l.sk.PublicKey()
}
