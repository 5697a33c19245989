// Package signature provides the stake-weighted signature aggregation used
// to assemble quorum and timeout certificates.
package signature

import (
	"errors"
	"fmt"
	"sync"

	"github.com/onflow/crypto"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	msig "github.com/nimbuschain/nimbus-go/module/signature"
)

// signerInfo holds the weight and the aggregator index of a committee member.
type signerInfo struct {
	weight uint64
	index  int
}

// WeightedSignatureAggregator aggregates signatures of the same message from
// committee members, tracking the accumulated voting power. Duplicate
// contributions from the same signer are rejected, so one validator can never
// count twice towards a quorum.
//
// Safe for concurrent use.
type WeightedSignatureAggregator struct {
	aggregator *msig.SignatureAggregatorSameMessage
	ids        nimbus.ValidatorList
	idToInfo   map[nimbus.Identifier]signerInfo

	lock        sync.RWMutex
	totalWeight uint64
}

// NewWeightedSignatureAggregator returns a weighted aggregator initialized
// with the committee, the message and the domain separation tag.
//
// All errors indicate an aggregator cannot be constructed from the input.
func NewWeightedSignatureAggregator(
	validators nimbus.ValidatorList,
	message []byte,
	dsTag string,
) (*WeightedSignatureAggregator, error) {
	keys := make([]crypto.PublicKey, 0, len(validators))
	idToInfo := make(map[nimbus.Identifier]signerInfo, len(validators))
	for i, v := range validators {
		keys = append(keys, v.StakingPubKey)
		idToInfo[v.NodeID] = signerInfo{
			weight: v.Weight,
			index:  i,
		}
	}
	aggregator, err := msig.NewSignatureAggregatorSameMessage(message, dsTag, keys)
	if err != nil {
		return nil, fmt.Errorf("could not create signature aggregator: %w", err)
	}
	return &WeightedSignatureAggregator{
		aggregator: aggregator,
		ids:        validators,
		idToInfo:   idToInfo,
	}, nil
}

// Verify checks the signature of the given committee member over the
// aggregator's message.
// Expected errors during normal operation:
//   - model.InvalidSignerError if the signer is not a committee member
//   - model.ErrInvalidSignature if the signature does not verify
func (w *WeightedSignatureAggregator) Verify(signerID nimbus.Identifier, sig crypto.Signature) error {
	info, ok := w.idToInfo[signerID]
	if !ok {
		return model.NewInvalidSignerErrorf("%v is not a committee member", signerID)
	}
	valid, err := w.aggregator.Verify(info.index, sig)
	if err != nil {
		return fmt.Errorf("could not verify signature from %v: %w", signerID, err)
	}
	if !valid {
		return fmt.Errorf("invalid signature from %v: %w", signerID, model.ErrInvalidSignature)
	}
	return nil
}

// TrustedAdd adds an already verified signature and returns the accumulated
// weight after the addition.
// Expected errors during normal operation:
//   - model.InvalidSignerError if the signer is not a committee member
//   - model.DuplicatedSignerError if the signer has already contributed
func (w *WeightedSignatureAggregator) TrustedAdd(signerID nimbus.Identifier, sig crypto.Signature) (uint64, error) {
	info, ok := w.idToInfo[signerID]
	if !ok {
		return w.TotalWeight(), model.NewInvalidSignerErrorf("%v is not a committee member", signerID)
	}

	err := w.aggregator.TrustedAdd(info.index, sig)
	if err != nil {
		if errors.Is(err, msig.ErrDuplicatedSigner) {
			return w.TotalWeight(), model.NewDuplicatedSignerErrorf("signature from %v was already added", signerID)
		}
		return w.TotalWeight(), fmt.Errorf("could not add signature from %v: %w", signerID, err)
	}

	w.lock.Lock()
	defer w.lock.Unlock()
	w.totalWeight += info.weight
	return w.totalWeight, nil
}

// TotalWeight returns the accumulated voting power of all contributors.
func (w *WeightedSignatureAggregator) TotalWeight() uint64 {
	w.lock.RLock()
	defer w.lock.RUnlock()
	return w.totalWeight
}

// Aggregate returns the list of contributing signers (in canonical committee
// order) and the aggregated signature.
// Expected errors during normal operation:
//   - model.InsufficientSignaturesError if no signature has been added
//   - model.InvalidSignatureIncludedError if some signature(s), included via
//     TrustedAdd, are invalid
func (w *WeightedSignatureAggregator) Aggregate() (nimbus.IdentifierList, []byte, error) {
	indices, aggSignature, err := w.aggregator.Aggregate()
	if err != nil {
		if errors.Is(err, msig.ErrInsufficientSignatures) {
			return nil, nil, model.NewInsufficientSignaturesErrorf("cannot aggregate an empty signature set: %w", err)
		}
		if errors.Is(err, msig.ErrInvalidSignatureIncluded) {
			return nil, nil, model.NewInvalidSignatureIncludedErrorf("invalid signature in aggregate: %w", err)
		}
		return nil, nil, fmt.Errorf("could not aggregate signatures: %w", err)
	}

	signerIDs := make(nimbus.IdentifierList, 0, len(indices))
	for _, index := range indices {
		signerIDs = append(signerIDs, w.ids[index].NodeID)
	}
	return signerIDs, aggSignature, nil
}
