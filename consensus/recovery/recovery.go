// Package recovery reconstructs a validator's consensus state from durable
// storage after a restart. The safety state is taken as-is, never weakened:
// in particular HighestVotedRound survives every restart, since lowering it
// would re-allow equivocating signatures.
package recovery

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/blocktree"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/storage"
)

// RecoveredState bundles what a restarting participant reconstructs before
// re-entering consensus. Speculative blocks above the committed boundary are
// not persisted; the node re-learns them from peers via proposals and sync.
type RecoveredState struct {
	// Root is the last committed block, the anchor of the rebuilt tree.
	Root *model.CommittedBlock
	// BlockTree is rooted at Root and otherwise empty.
	BlockTree *blocktree.BlockTree
	// SafetyData is the persisted voting state, repaired only forwards.
	SafetyData *bft.SafetyData
	// LivenessData is the persisted pacemaker state, advanced past the
	// committed boundary if a crash left it behind.
	LivenessData *bft.LivenessData
}

// RecoverState loads the committed boundary, the safety state and the
// pacemaker state, repairs crash-induced skew between them and rebuilds the
// block tree. A fresh, never-bootstrapped database is an error: bootstrapping
// writes the genesis records before the first start.
//
// The committer persists the block before updating the safety state, so
// after a crash the safety state may trail the ledger by a few rounds; it is
// rolled forward here. The opposite skew indicates corruption and is fatal.
func RecoverState(
	log zerolog.Logger,
	blocks storage.Blocks,
	persister bft.Persister,
	commitRule bft.CommitRule,
) (*RecoveredState, error) {
	log = log.With().Str("component", "recovery").Logger()

	boundary, err := blocks.BoundaryRound()
	if err != nil {
		return nil, fmt.Errorf("could not load committed boundary (node not bootstrapped?): %w", err)
	}
	root, err := blocks.ByRound(boundary)
	if err != nil {
		return nil, fmt.Errorf("could not load committed block at boundary round %d: %w", boundary, err)
	}

	safetyData, err := persister.GetSafetyData()
	if err != nil {
		return nil, fmt.Errorf("could not load safety state: %w", err)
	}
	livenessData, err := persister.GetLivenessData()
	if err != nil {
		return nil, fmt.Errorf("could not load pacemaker state: %w", err)
	}
	if safetyData.Epoch != livenessData.Epoch {
		return nil, fmt.Errorf("safety state is for epoch %d, pacemaker state for epoch %d", safetyData.Epoch, livenessData.Epoch)
	}

	if safetyData.LastCommittedRound > boundary {
		// blocks are stored before the safety state advances, so the ledger
		// can never trail the safety state
		return nil, fmt.Errorf("safety state committed round %d is ahead of the ledger boundary %d", safetyData.LastCommittedRound, boundary)
	}
	if safetyData.LastCommittedRound < boundary {
		log.Info().
			Uint64("safety_committed_round", safetyData.LastCommittedRound).
			Uint64("ledger_boundary", boundary).
			Msg("rolling safety state forward to the ledger boundary")
		updated := *safetyData
		updated.LastCommittedRound = boundary
		err = persister.PutSafetyData(&updated)
		if err != nil {
			return nil, fmt.Errorf("could not persist repaired safety state: %w", err)
		}
		safetyData = &updated
	}

	livenessChanged := false
	if livenessData.NewestQC == nil || livenessData.NewestQC.Round < root.CertifyingQC.Round {
		livenessData.NewestQC = root.CertifyingQC
		livenessChanged = true
	}
	if livenessData.CurrentRound <= boundary {
		log.Info().
			Uint64("pacemaker_round", livenessData.CurrentRound).
			Uint64("ledger_boundary", boundary).
			Msg("advancing pacemaker state past the committed boundary")
		livenessData.CurrentRound = boundary + 1
		livenessData.LastRoundTC = nil
		livenessChanged = true
	}
	if livenessChanged {
		err = persister.PutLivenessData(livenessData)
		if err != nil {
			return nil, fmt.Errorf("could not persist repaired pacemaker state: %w", err)
		}
	}

	tree, err := blocktree.NewBlockTree(root, commitRule)
	if err != nil {
		return nil, fmt.Errorf("could not rebuild block tree at round %d: %w", boundary, err)
	}

	log.Info().
		Uint64("committed_round", boundary).
		Uint64("current_round", livenessData.CurrentRound).
		Uint64("highest_voted_round", safetyData.HighestVotedRound).
		Msg("consensus state recovered")

	return &RecoveredState{
		Root:         root,
		BlockTree:    tree,
		SafetyData:   safetyData,
		LivenessData: livenessData,
	}, nil
}
