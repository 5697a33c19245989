package badger

import (
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/require"

	"github.com/nimbuschain/nimbus-go/consensus/bft/helper"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/storage"
)

func withDB(t *testing.T, fn func(db *badger.DB)) {
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	defer db.Close()
	fn(db)
}

func committedBlockAt(round uint64) *model.CommittedBlock {
	block := helper.MakeBlock(helper.WithBlockRound(round))
	return &model.CommittedBlock{
		Block:           block,
		CertifyingQC:    helper.MakeQC(helper.WithQCBlock(block)),
		StateCommitment: helper.MakeStateCommitment(),
	}
}

func TestBlocksRoundTrip(t *testing.T) {
	withDB(t, func(db *badger.DB) {
		blocks := NewBlocks(db)

		_, err := blocks.BoundaryRound()
		require.ErrorIs(t, err, storage.ErrNotFound)

		committed := committedBlockAt(5)
		require.NoError(t, blocks.Store(committed))

		byID, err := blocks.ByID(committed.Block.BlockID)
		require.NoError(t, err)
		require.Equal(t, committed.Block.BlockID, byID.Block.BlockID)
		require.Equal(t, committed.CertifyingQC.SigData, byID.CertifyingQC.SigData)
		require.Equal(t, committed.StateCommitment, byID.StateCommitment)

		byRound, err := blocks.ByRound(5)
		require.NoError(t, err)
		require.Equal(t, committed.Block.BlockID, byRound.Block.BlockID)

		boundary, err := blocks.BoundaryRound()
		require.NoError(t, err)
		require.Equal(t, uint64(5), boundary)
	})
}

func TestBlocksBoundaryAdvances(t *testing.T) {
	withDB(t, func(db *badger.DB) {
		blocks := NewBlocks(db)
		require.NoError(t, blocks.Store(committedBlockAt(5)))
		require.NoError(t, blocks.Store(committedBlockAt(6)))

		boundary, err := blocks.BoundaryRound()
		require.NoError(t, err)
		require.Equal(t, uint64(6), boundary)
	})
}

func TestBlocksDoubleStoreRejected(t *testing.T) {
	withDB(t, func(db *badger.DB) {
		blocks := NewBlocks(db)
		committed := committedBlockAt(7)
		require.NoError(t, blocks.Store(committed))
		require.ErrorIs(t, blocks.Store(committed), storage.ErrAlreadyExists)
	})
}

func TestBlocksMissing(t *testing.T) {
	withDB(t, func(db *badger.DB) {
		blocks := NewBlocks(db)
		_, err := blocks.ByID(helper.MakeIdentifier())
		require.ErrorIs(t, err, storage.ErrNotFound)
		_, err = blocks.ByRound(9)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}
