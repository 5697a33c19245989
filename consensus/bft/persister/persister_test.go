package persister

import (
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/require"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/helper"
	"github.com/nimbuschain/nimbus-go/storage"
)

func withDB(t *testing.T, fn func(db *badger.DB)) {
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	defer db.Close()
	fn(db)
}

func TestFreshDatabase(t *testing.T) {
	withDB(t, func(db *badger.DB) {
		persister := New(db, "main")
		_, err := persister.GetSafetyData()
		require.ErrorIs(t, err, storage.ErrNotFound)
		_, err = persister.GetLivenessData()
		require.ErrorIs(t, err, storage.ErrNotFound)

		// updates require a bootstrapped record
		require.Error(t, persister.PutSafetyData(&bft.SafetyData{Epoch: 1}))
	})
}

func TestRoundTrip(t *testing.T) {
	withDB(t, func(db *badger.DB) {
		qc := helper.MakeQC()
		safety := &bft.SafetyData{
			Epoch:             1,
			HighestVotedRound: qc.Round,
			HighestQCRound:    qc.Round,
		}
		liveness := &bft.LivenessData{
			Epoch:        1,
			CurrentRound: qc.Round + 1,
			NewestQC:     qc,
		}
		require.NoError(t, Bootstrap(db, "main", safety, liveness))

		persister := New(db, "main")
		gotSafety, err := persister.GetSafetyData()
		require.NoError(t, err)
		require.Equal(t, safety, gotSafety)
		gotLiveness, err := persister.GetLivenessData()
		require.NoError(t, err)
		require.Equal(t, liveness, gotLiveness)

		// overwrite with advanced state
		safety.HighestVotedRound = qc.Round + 5
		require.NoError(t, persister.PutSafetyData(safety))
		liveness.CurrentRound = qc.Round + 6
		liveness.LastRoundTC = helper.MakeTC()
		require.NoError(t, persister.PutLivenessData(liveness))

		gotSafety, err = persister.GetSafetyData()
		require.NoError(t, err)
		require.Equal(t, qc.Round+5, gotSafety.HighestVotedRound)
		gotLiveness, err = persister.GetLivenessData()
		require.NoError(t, err)
		require.Equal(t, qc.Round+6, gotLiveness.CurrentRound)
		require.NotNil(t, gotLiveness.LastRoundTC)
	})
}

func TestChainsAreIsolated(t *testing.T) {
	withDB(t, func(db *badger.DB) {
		require.NoError(t, Bootstrap(db, "main", &bft.SafetyData{Epoch: 1}, &bft.LivenessData{Epoch: 1, CurrentRound: 1, NewestQC: helper.MakeQC()}))

		other := New(db, "test")
		_, err := other.GetSafetyData()
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestDoubleBootstrapRejected(t *testing.T) {
	withDB(t, func(db *badger.DB) {
		safety := &bft.SafetyData{Epoch: 1}
		liveness := &bft.LivenessData{Epoch: 1, CurrentRound: 1, NewestQC: helper.MakeQC()}
		require.NoError(t, Bootstrap(db, "main", safety, liveness))
		require.Error(t, Bootstrap(db, "main", safety, liveness))
	})
}
