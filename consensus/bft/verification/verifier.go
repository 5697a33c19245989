package verification

import (
	"fmt"

	"github.com/onflow/crypto"
	"github.com/onflow/crypto/hash"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	msig "github.com/nimbuschain/nimbus-go/module/signature"
)

// Verifier checks single signatures (votes, timeouts, proposer signatures)
// and the aggregated BLS signatures carried by quorum and timeout
// certificates.
type Verifier struct {
	voteHasher    hash.Hasher
	timeoutHasher hash.Hasher
}

var _ bft.Verifier = (*Verifier)(nil)

// NewVerifier creates a Verifier. It is stateless and can be shared.
func NewVerifier() *Verifier {
	return &Verifier{
		voteHasher:    msig.NewBLSHasher(msig.ConsensusVoteTag),
		timeoutHasher: msig.NewBLSHasher(msig.ConsensusTimeoutTag),
	}
}

// VerifyVote checks a single vote signature over (block ID, round).
// Expected errors during normal operation:
//   - model.ErrInvalidSignature if the signature does not verify
func (v *Verifier) VerifyVote(voter *nimbus.Validator, sigData []byte, blockID nimbus.Identifier, round uint64) error {
	msg := MakeVoteMessage(round, blockID)
	valid, err := voter.StakingPubKey.Verify(sigData, msg, v.voteHasher)
	if err != nil {
		return fmt.Errorf("internal error while verifying vote signature of %v: %w", voter.NodeID, err)
	}
	if !valid {
		return fmt.Errorf("vote signature of %v for block %v: %w", voter.NodeID, blockID, model.ErrInvalidSignature)
	}
	return nil
}

// VerifyQC checks the aggregated signature of a QC against the given signers.
// All signers vouch for the same message, so their keys are aggregated and the
// signature checked once.
// Expected errors during normal operation:
//   - model.InsufficientSignaturesError if signers is empty
//   - model.ErrInvalidSignature if the aggregated signature is invalid
func (v *Verifier) VerifyQC(signers nimbus.ValidatorList, sigData []byte, blockID nimbus.Identifier, round uint64) error {
	if len(signers) == 0 {
		return model.NewInsufficientSignaturesErrorf("quorum certificate has no signers")
	}
	msg := MakeVoteMessage(round, blockID)

	aggregatedKey, err := crypto.AggregateBLSPublicKeys(signers.PublicStakingKeys())
	if err != nil {
		// `AggregateBLSPublicKeys` returns an error in two cases:
		//  (i) empty key list (excluded above)
		// (ii) a key is not a BLS key, which never happens for keys taken
		//      from the validated committee
		return fmt.Errorf("internal error computing aggregated key: %w", err)
	}
	valid, err := aggregatedKey.Verify(sigData, msg, v.voteHasher)
	if err != nil {
		return fmt.Errorf("internal error while verifying aggregated QC signature: %w", err)
	}
	if !valid {
		return fmt.Errorf("aggregated signature of QC for block %v: %w", blockID, model.ErrInvalidSignature)
	}
	return nil
}

// VerifyTimeout checks a single timeout signature over (round, newest QC
// round).
// Expected errors during normal operation:
//   - model.ErrInvalidSignature if the signature does not verify
func (v *Verifier) VerifyTimeout(signer *nimbus.Validator, sigData []byte, round uint64, newestQCRound uint64) error {
	msg := MakeTimeoutMessage(round, newestQCRound)
	valid, err := signer.StakingPubKey.Verify(sigData, msg, v.timeoutHasher)
	if err != nil {
		return fmt.Errorf("internal error while verifying timeout signature of %v: %w", signer.NodeID, err)
	}
	if !valid {
		return fmt.Errorf("timeout signature of %v for round %d: %w", signer.NodeID, round, model.ErrInvalidSignature)
	}
	return nil
}

// VerifyTC checks the aggregated signature of a TC. Contributors signed
// different messages (each reported its own newest QC round), so this is a
// multi-message BLS verification with one key and one message per signer.
// Expected errors during normal operation:
//   - model.InsufficientSignaturesError if signers is empty
//   - model.ErrInvalidSignature if the aggregated signature is invalid
func (v *Verifier) VerifyTC(signers nimbus.ValidatorList, sigData []byte, round uint64, newestQCRounds []uint64) error {
	if len(signers) == 0 {
		return model.NewInsufficientSignaturesErrorf("timeout certificate has no signers")
	}
	if len(newestQCRounds) != len(signers) {
		return fmt.Errorf("signer count (%d) does not match newest-QC-round count (%d)", len(signers), len(newestQCRounds))
	}

	pks := signers.PublicStakingKeys()
	messages := make([][]byte, 0, len(signers))
	hashers := make([]hash.Hasher, 0, len(signers))
	for _, qcRound := range newestQCRounds {
		messages = append(messages, MakeTimeoutMessage(round, qcRound))
		hashers = append(hashers, v.timeoutHasher)
	}

	valid, err := crypto.VerifyBLSSignatureManyMessages(pks, crypto.Signature(sigData), messages, hashers)
	if err != nil {
		if crypto.IsBLSAggregateEmptyListError(err) {
			return model.NewInsufficientSignaturesErrorf("empty BLS input: %w", err)
		}
		return fmt.Errorf("internal error while verifying aggregated TC signature: %w", err)
	}
	if !valid {
		return fmt.Errorf("aggregated signature of TC for round %d: %w", round, model.ErrInvalidSignature)
	}
	return nil
}
