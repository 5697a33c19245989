package signature

import (
	"fmt"
	"sort"
	"sync"

	"github.com/onflow/crypto"
	"github.com/onflow/crypto/hash"
)

// SignatureAggregatorSameMessage aggregates BLS signatures of the same
// message from different signers. Signers are identified by their index in
// the public key list fixed at construction.
//
// Implementation of SignatureAggregatorSameMessage is thread safe.
type SignatureAggregatorSameMessage struct {
	message    []byte
	hasher     hash.Hasher
	n          int // number of participants indexed from 0 to n-1
	publicKeys []crypto.PublicKey

	lock            sync.RWMutex
	signatures      map[int]crypto.Signature
	cachedSignature crypto.Signature // cached aggregate, invalidated on every add
}

// NewSignatureAggregatorSameMessage returns a new aggregator for the given
// message and domain separation tag. All public keys must be BLS on
// BLS12-381; the order of the key list defines the signer indices.
//
// All errors indicate an aggregator cannot be constructed from the input.
func NewSignatureAggregatorSameMessage(
	message []byte,
	dsTag string,
	publicKeys []crypto.PublicKey,
) (*SignatureAggregatorSameMessage, error) {
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("number of participants must be at least 1, got %d", len(publicKeys))
	}
	for i, key := range publicKeys {
		if key == nil || key.Algorithm() != crypto.BLSBLS12381 {
			return nil, fmt.Errorf("public key at index %d is not a BLS key", i)
		}
	}
	return &SignatureAggregatorSameMessage{
		message:    message,
		hasher:     NewBLSHasher(dsTag),
		n:          len(publicKeys),
		publicKeys: publicKeys,
		signatures: make(map[int]crypto.Signature),
	}, nil
}

// Verify checks the signature of the given signer against the message,
// without adding it.
// Expected errors during normal operation:
//   - ErrInvalidSignerIndex if the index is out of range
func (s *SignatureAggregatorSameMessage) Verify(signer int, sig crypto.Signature) (bool, error) {
	if signer >= s.n || signer < 0 {
		return false, fmt.Errorf("invalid signer index %d: %w", signer, ErrInvalidSignerIndex)
	}
	return s.publicKeys[signer].Verify(sig, s.message, s.hasher)
}

// HasSignature reports whether the given signer has already contributed.
// Expected errors during normal operation:
//   - ErrInvalidSignerIndex if the index is out of range
func (s *SignatureAggregatorSameMessage) HasSignature(signer int) (bool, error) {
	if signer >= s.n || signer < 0 {
		return false, fmt.Errorf("invalid signer index %d: %w", signer, ErrInvalidSignerIndex)
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.signatures[signer]
	return ok, nil
}

// TrustedAdd adds a signature to the aggregator without verifying it. The
// caller guarantees the signature is valid; an invalid signature added here
// surfaces later as ErrInvalidSignatureIncluded from Aggregate.
// Expected errors during normal operation:
//   - ErrInvalidSignerIndex if the index is out of range
//   - ErrDuplicatedSigner if the signer has already contributed
func (s *SignatureAggregatorSameMessage) TrustedAdd(signer int, sig crypto.Signature) error {
	if signer >= s.n || signer < 0 {
		return fmt.Errorf("invalid signer index %d: %w", signer, ErrInvalidSignerIndex)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.signatures[signer]; ok {
		return fmt.Errorf("signer %d: %w", signer, ErrDuplicatedSigner)
	}
	s.signatures[signer] = sig
	s.cachedSignature = nil
	return nil
}

// VerifyAndAdd verifies the signature and, if valid, adds it. The first
// return value is the verification result.
// Expected errors during normal operation:
//   - ErrInvalidSignerIndex if the index is out of range
//   - ErrDuplicatedSigner if the signer has already contributed
func (s *SignatureAggregatorSameMessage) VerifyAndAdd(signer int, sig crypto.Signature) (bool, error) {
	ok, err := s.Verify(signer, sig)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	err = s.TrustedAdd(signer, sig)
	if err != nil {
		return true, err
	}
	return true, nil
}

// NumberSignatures returns the number of signatures added so far.
func (s *SignatureAggregatorSameMessage) NumberSignatures() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.signatures)
}

// Aggregate aggregates all added signatures and returns the sorted list of
// contributing signer indices together with the aggregate. The aggregate is
// verified once against the aggregated public key; the result is cached
// until the next addition.
// Expected errors during normal operation:
//   - ErrInsufficientSignatures if no signature has been added
//   - ErrInvalidSignatureIncluded if the aggregate does not verify
func (s *SignatureAggregatorSameMessage) Aggregate() ([]int, crypto.Signature, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if len(s.signatures) == 0 {
		return nil, nil, ErrInsufficientSignatures
	}

	signers := make([]int, 0, len(s.signatures))
	sigs := make([]crypto.Signature, 0, len(s.signatures))
	for signer := range s.signatures {
		signers = append(signers, signer)
	}
	sort.Ints(signers)
	for _, signer := range signers {
		sigs = append(sigs, s.signatures[signer])
	}

	if s.cachedSignature != nil {
		return signers, s.cachedSignature, nil
	}

	aggregate, err := crypto.AggregateBLSSignatures(sigs)
	if err != nil {
		return nil, nil, fmt.Errorf("could not aggregate BLS signatures: %w", err)
	}
	ok, err := s.verifyAggregate(signers, aggregate)
	if err != nil {
		return nil, nil, fmt.Errorf("could not verify aggregate: %w", err)
	}
	if !ok {
		return nil, nil, ErrInvalidSignatureIncluded
	}
	s.cachedSignature = aggregate
	return signers, aggregate, nil
}

// VerifyAggregate verifies an aggregated signature against the subset of
// public keys identified by the signer indices.
// Expected errors during normal operation:
//   - ErrInvalidSignerIndex if any index is out of range
//   - ErrInsufficientSignatures if the signer list is empty
func (s *SignatureAggregatorSameMessage) VerifyAggregate(signers []int, sig crypto.Signature) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.verifyAggregate(signers, sig)
}

func (s *SignatureAggregatorSameMessage) verifyAggregate(signers []int, sig crypto.Signature) (bool, error) {
	if len(signers) == 0 {
		return false, ErrInsufficientSignatures
	}
	keys := make([]crypto.PublicKey, 0, len(signers))
	for _, signer := range signers {
		if signer >= s.n || signer < 0 {
			return false, fmt.Errorf("invalid signer index %d: %w", signer, ErrInvalidSignerIndex)
		}
		keys = append(keys, s.publicKeys[signer])
	}
	aggregatedKey, err := crypto.AggregateBLSPublicKeys(keys)
	if err != nil {
		return false, fmt.Errorf("could not aggregate public keys: %w", err)
	}
	return aggregatedKey.Verify(sig, s.message, s.hasher)
}
