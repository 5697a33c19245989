package helper

import (
	"crypto/rand"
	"fmt"

	"github.com/onflow/crypto"

	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// MakeValidator returns a validator fixture without a staking key. Tests that
// exercise cryptography should use MakeStakedCommittee instead.
func MakeValidator(options ...func(*nimbus.Validator)) *nimbus.Validator {
	validator := nimbus.Validator{
		NodeID: MakeIdentifier(),
		Weight: 100,
	}
	for _, option := range options {
		option(&validator)
	}
	return &validator
}

func WithWeight(weight uint64) func(*nimbus.Validator) {
	return func(validator *nimbus.Validator) {
		validator.Weight = weight
	}
}

// MakeValidatorList returns n validators with equal weight and no keys.
func MakeValidatorList(n int, options ...func(*nimbus.Validator)) nimbus.ValidatorList {
	validators := make(nimbus.ValidatorList, 0, n)
	for i := 0; i < n; i++ {
		validators = append(validators, MakeValidator(options...))
	}
	return validators
}

// MakeStakedCommittee returns n validators with freshly generated BLS staking
// keys, along with the matching private keys (index-aligned).
func MakeStakedCommittee(n int) (nimbus.ValidatorList, []crypto.PrivateKey, error) {
	validators := make(nimbus.ValidatorList, 0, n)
	privateKeys := make([]crypto.PrivateKey, 0, n)
	for i := 0; i < n; i++ {
		seed := make([]byte, crypto.KeyGenSeedMinLen)
		if _, err := rand.Read(seed); err != nil {
			return nil, nil, fmt.Errorf("could not read seed: %w", err)
		}
		sk, err := crypto.GeneratePrivateKey(crypto.BLSBLS12381, seed)
		if err != nil {
			return nil, nil, fmt.Errorf("could not generate staking key: %w", err)
		}
		validators = append(validators, &nimbus.Validator{
			NodeID:        MakeIdentifier(),
			StakingPubKey: sk.PublicKey(),
			Weight:        100,
		})
		privateKeys = append(privateKeys, sk)
	}
	return validators, privateKeys, nil
}

// MakeEpochSetup returns an epoch setup fixture over the given committee.
func MakeEpochSetup(validators nimbus.ValidatorList, options ...func(*nimbus.EpochSetup)) *nimbus.EpochSetup {
	setup := nimbus.EpochSetup{
		Counter:      1,
		FirstRound:   1,
		Validators:   validators,
		LeaderPolicy: nimbus.LeaderPolicyRoundRobin,
		CommitPolicy: nimbus.CommitPolicyThreeChain,
		Seed:         MakeSigData(),
	}
	for _, option := range options {
		option(&setup)
	}
	return &setup
}

func WithEpochCounter(counter uint64) func(*nimbus.EpochSetup) {
	return func(setup *nimbus.EpochSetup) {
		setup.Counter = counter
	}
}

func WithLeaderPolicy(policy nimbus.LeaderPolicy) func(*nimbus.EpochSetup) {
	return func(setup *nimbus.EpochSetup) {
		setup.LeaderPolicy = policy
	}
}

func WithCommitPolicy(policy nimbus.CommitPolicy) func(*nimbus.EpochSetup) {
	return func(setup *nimbus.EpochSetup) {
		setup.CommitPolicy = policy
	}
}

func WithFirstRound(round uint64) func(*nimbus.EpochSetup) {
	return func(setup *nimbus.EpochSetup) {
		setup.FirstRound = round
	}
}
