package nimbus

import (
	"encoding/hex"
	"fmt"
)

// StateCommitment is the root hash of the execution state after applying a
// block's transactions. Speculative execution produces one per block before
// the block is final; commit makes it durable.
type StateCommitment [32]byte

// DummyStateCommitment is the commitment of the empty pre-genesis state.
var DummyStateCommitment = StateCommitment{}

func (s StateCommitment) String() string {
	return hex.EncodeToString(s[:])
}

// ToStateCommitment converts a byte slice into a StateCommitment.
// It returns an error if the slice has the wrong length.
func ToStateCommitment(data []byte) (StateCommitment, error) {
	var commit StateCommitment
	if len(data) != len(commit) {
		return DummyStateCommitment, fmt.Errorf("expected %d bytes, got %d", len(commit), len(data))
	}
	copy(commit[:], data)
	return commit, nil
}
