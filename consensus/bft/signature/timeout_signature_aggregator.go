package signature

import (
	"fmt"
	"sync"

	"github.com/onflow/crypto"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/verification"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	msig "github.com/nimbuschain/nimbus-go/module/signature"
)

// TimeoutSignerInfo is the contribution of one signer to a timeout
// certificate: which round its newest known QC was for. The TC carries one
// entry per signer, aligned with the signer list.
type TimeoutSignerInfo struct {
	NewestQCRound uint64
	Signer        nimbus.Identifier
}

// timeoutContribution is a verified signature together with the QC round the
// signer attested to.
type timeoutContribution struct {
	sig           crypto.Signature
	newestQCRound uint64
}

// TimeoutSignatureAggregator aggregates timeout signatures for one round.
// Unlike vote aggregation, contributors sign different messages, since each
// embeds the round of the signer's newest known QC, so signatures are
// verified individually and combined with plain BLS aggregation.
//
// Safe for concurrent use.
type TimeoutSignatureAggregator struct {
	round         uint64
	dsTag         string
	idToValidator map[nimbus.Identifier]*nimbus.Validator

	lock          sync.RWMutex
	contributions map[nimbus.Identifier]timeoutContribution
	totalWeight   uint64
}

// NewTimeoutSignatureAggregator returns an aggregator for timeouts of the
// given round, signed by members of the given committee under the domain
// separation tag.
func NewTimeoutSignatureAggregator(
	validators nimbus.ValidatorList,
	round uint64,
	dsTag string,
) (*TimeoutSignatureAggregator, error) {
	if len(validators) == 0 {
		return nil, fmt.Errorf("aggregator requires a non-empty committee")
	}
	idToValidator := make(map[nimbus.Identifier]*nimbus.Validator, len(validators))
	for _, v := range validators {
		idToValidator[v.NodeID] = v
	}
	return &TimeoutSignatureAggregator{
		round:         round,
		dsTag:         dsTag,
		idToValidator: idToValidator,
		contributions: make(map[nimbus.Identifier]timeoutContribution, len(validators)),
	}, nil
}

// Round returns the round this aggregator collects timeout signatures for.
func (a *TimeoutSignatureAggregator) Round() uint64 {
	return a.round
}

// VerifyAndAdd verifies the signature over the timeout message for
// (round, newestQCRound) and, if valid, adds it. It returns the accumulated
// weight after the addition.
// Expected errors during normal operation:
//   - model.InvalidSignerError if the signer is not a committee member
//   - model.ErrInvalidSignature if the signature does not verify
//   - model.DuplicatedSignerError if the signer has already contributed
func (a *TimeoutSignatureAggregator) VerifyAndAdd(signerID nimbus.Identifier, sig crypto.Signature, newestQCRound uint64) (uint64, error) {
	validator, ok := a.idToValidator[signerID]
	if !ok {
		return a.TotalWeight(), model.NewInvalidSignerErrorf("%v is not a committee member", signerID)
	}

	msg := verification.MakeTimeoutMessage(a.round, newestQCRound)
	hasher := msig.NewBLSHasher(a.dsTag)
	valid, err := validator.StakingPubKey.Verify(sig, msg, hasher)
	if err != nil {
		return a.TotalWeight(), fmt.Errorf("could not verify timeout signature from %v: %w", signerID, err)
	}
	if !valid {
		return a.TotalWeight(), fmt.Errorf("invalid timeout signature from %v: %w", signerID, model.ErrInvalidSignature)
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	if _, contributed := a.contributions[signerID]; contributed {
		return a.totalWeight, model.NewDuplicatedSignerErrorf("timeout signature from %v was already added", signerID)
	}
	a.contributions[signerID] = timeoutContribution{
		sig:           sig,
		newestQCRound: newestQCRound,
	}
	a.totalWeight += validator.Weight
	return a.totalWeight, nil
}

// TotalWeight returns the accumulated voting power of all contributors.
func (a *TimeoutSignatureAggregator) TotalWeight() uint64 {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.totalWeight
}

// Aggregate returns the contributions collected so far together with the
// aggregated BLS signature.
// Expected errors during normal operation:
//   - model.InsufficientSignaturesError if no signature has been added
func (a *TimeoutSignatureAggregator) Aggregate() ([]TimeoutSignerInfo, []byte, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	sigs := make([]crypto.Signature, 0, len(a.contributions))
	signersInfo := make([]TimeoutSignerInfo, 0, len(a.contributions))
	for signerID, contribution := range a.contributions {
		sigs = append(sigs, contribution.sig)
		signersInfo = append(signersInfo, TimeoutSignerInfo{
			NewestQCRound: contribution.newestQCRound,
			Signer:        signerID,
		})
	}

	aggSignature, err := crypto.AggregateBLSSignatures(sigs)
	if err != nil {
		if crypto.IsBLSAggregateEmptyListError(err) {
			return nil, nil, model.NewInsufficientSignaturesErrorf("cannot aggregate an empty signature set: %w", err)
		}
		return nil, nil, fmt.Errorf("could not aggregate timeout signatures: %w", err)
	}
	return signersInfo, aggSignature, nil
}
