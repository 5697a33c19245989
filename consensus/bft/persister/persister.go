// Package persister implements durable storage for the consensus state that
// must survive crashes: the safety rules state and the pacemaker state.
package persister

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/storage/badger/operation"
)

// Persister stores the safety and liveness records in badger, keyed by chain
// ID. Each write is one atomic badger transaction.
type Persister struct {
	db      *badger.DB
	chainID string
}

var _ bft.Persister = (*Persister)(nil)

func New(db *badger.DB, chainID string) *Persister {
	return &Persister{
		db:      db,
		chainID: chainID,
	}
}

// Bootstrap seeds the database with the initial safety and liveness records.
// Must be called exactly once, before the first New for the chain; updates
// require the records to exist.
func Bootstrap(db *badger.DB, chainID string, safetyData *bft.SafetyData, livenessData *bft.LivenessData) error {
	err := db.Update(func(tx *badger.Txn) error {
		err := operation.InsertSafetyData(chainID, safetyData)(tx)
		if err != nil {
			return fmt.Errorf("could not insert safety data: %w", err)
		}
		err = operation.InsertLivenessData(chainID, livenessData)(tx)
		if err != nil {
			return fmt.Errorf("could not insert liveness data: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not bootstrap consensus state: %w", err)
	}
	return nil
}

func (p *Persister) GetSafetyData() (*bft.SafetyData, error) {
	var safetyData bft.SafetyData
	err := p.db.View(operation.RetrieveSafetyData(p.chainID, &safetyData))
	if err != nil {
		return nil, err
	}
	return &safetyData, nil
}

func (p *Persister) PutSafetyData(safetyData *bft.SafetyData) error {
	err := operation.RetryOnConflict(p.db.Update, operation.UpdateSafetyData(p.chainID, safetyData))
	if err != nil {
		return fmt.Errorf("could not update safety data: %w", err)
	}
	return nil
}

func (p *Persister) GetLivenessData() (*bft.LivenessData, error) {
	var livenessData bft.LivenessData
	err := p.db.View(operation.RetrieveLivenessData(p.chainID, &livenessData))
	if err != nil {
		return nil, err
	}
	return &livenessData, nil
}

func (p *Persister) PutLivenessData(livenessData *bft.LivenessData) error {
	err := operation.RetryOnConflict(p.db.Update, operation.UpdateLivenessData(p.chainID, livenessData))
	if err != nil {
		return fmt.Errorf("could not update liveness data: %w", err)
	}
	return nil
}
