package consensus

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/persister"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/storage"
	bstorage "github.com/nimbuschain/nimbus-go/storage/badger"
)

// Bootstrap seeds a fresh database with the root block and the initial
// safety and liveness records for the epoch. The root block and its
// certifying QC come from the bootstrap ceremony; they are trusted as given.
// Calling Bootstrap on an already-bootstrapped database is a no-op, so node
// startup can call it unconditionally.
func Bootstrap(db *badger.DB, chainID string, setup *nimbus.EpochSetup, root *model.CommittedBlock) error {
	if root.Block.Epoch != setup.Counter {
		return fmt.Errorf("root block is in epoch %d, setup is for epoch %d", root.Block.Epoch, setup.Counter)
	}
	if root.CertifyingQC == nil || root.CertifyingQC.BlockID != root.Block.BlockID {
		return fmt.Errorf("root block must carry its certifying QC")
	}

	blocks := bstorage.NewBlocks(db)
	err := blocks.Store(root)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not store root block: %w", err)
	}

	rootRound := root.Block.Round
	err = persister.Bootstrap(db, chainID,
		&bft.SafetyData{
			Epoch:              setup.Counter,
			HighestVotedRound:  rootRound,
			HighestQCRound:     root.CertifyingQC.Round,
			LastCommittedRound: rootRound,
		},
		&bft.LivenessData{
			Epoch:        setup.Counter,
			CurrentRound: rootRound + 1,
			NewestQC:     root.CertifyingQC,
		},
	)
	if err != nil {
		return fmt.Errorf("could not bootstrap persister: %w", err)
	}
	return nil
}

// TransitionEpoch rebuilds the consensus state for the next epoch on top of
// an existing database. The root block is the final block of the outgoing
// epoch re-sealed as the new epoch's root by the epoch ceremony. This is the
// only place the voting history is reset: the new epoch's rounds start fresh
// at the root round, which must not be lower than any round of the old
// epoch.
func TransitionEpoch(db *badger.DB, chainID string, setup *nimbus.EpochSetup, root *model.CommittedBlock) error {
	if root.Block.Epoch != setup.Counter {
		return fmt.Errorf("root block is in epoch %d, setup is for epoch %d", root.Block.Epoch, setup.Counter)
	}
	if root.CertifyingQC == nil || root.CertifyingQC.BlockID != root.Block.BlockID {
		return fmt.Errorf("root block must carry its certifying QC")
	}

	persist := persister.New(db, chainID)
	prevSafety, err := persist.GetSafetyData()
	if err != nil {
		return fmt.Errorf("could not read previous safety state: %w", err)
	}
	if prevSafety.Epoch >= setup.Counter {
		return fmt.Errorf("cannot transition from epoch %d to epoch %d", prevSafety.Epoch, setup.Counter)
	}

	blocks := bstorage.NewBlocks(db)
	err = blocks.Store(root)
	if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
		return fmt.Errorf("could not store epoch root block: %w", err)
	}

	rootRound := root.Block.Round
	err = persist.PutSafetyData(&bft.SafetyData{
		Epoch:              setup.Counter,
		HighestVotedRound:  rootRound,
		HighestQCRound:     root.CertifyingQC.Round,
		LastCommittedRound: rootRound,
	})
	if err != nil {
		return fmt.Errorf("could not reset safety state: %w", err)
	}
	err = persist.PutLivenessData(&bft.LivenessData{
		Epoch:        setup.Counter,
		CurrentRound: rootRound + 1,
		NewestQC:     root.CertifyingQC,
	})
	if err != nil {
		return fmt.Errorf("could not reset liveness state: %w", err)
	}
	return nil
}
