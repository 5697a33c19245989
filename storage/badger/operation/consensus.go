package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
)

// InsertSafetyData inserts the safety rules state for the given chain.
func InsertSafetyData(chainID string, safetyData *bft.SafetyData) func(*badger.Txn) error {
	return insert(makePrefix(codeSafetyData, []byte(chainID)), safetyData)
}

// UpdateSafetyData replaces the safety rules state for the given chain.
func UpdateSafetyData(chainID string, safetyData *bft.SafetyData) func(*badger.Txn) error {
	return update(makePrefix(codeSafetyData, []byte(chainID)), safetyData)
}

// RetrieveSafetyData retrieves the safety rules state for the given chain.
func RetrieveSafetyData(chainID string, safetyData *bft.SafetyData) func(*badger.Txn) error {
	return retrieve(makePrefix(codeSafetyData, []byte(chainID)), safetyData)
}

// InsertLivenessData inserts the pacemaker state for the given chain.
func InsertLivenessData(chainID string, livenessData *bft.LivenessData) func(*badger.Txn) error {
	return insert(makePrefix(codeLivenessData, []byte(chainID)), livenessData)
}

// UpdateLivenessData replaces the pacemaker state for the given chain.
func UpdateLivenessData(chainID string, livenessData *bft.LivenessData) func(*badger.Txn) error {
	return update(makePrefix(codeLivenessData, []byte(chainID)), livenessData)
}

// RetrieveLivenessData retrieves the pacemaker state for the given chain.
func RetrieveLivenessData(chainID string, livenessData *bft.LivenessData) func(*badger.Txn) error {
	return retrieve(makePrefix(codeLivenessData, []byte(chainID)), livenessData)
}
