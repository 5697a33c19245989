package bft

// Persister durably stores the consensus state that must survive restarts:
// the safety rules state and the pacemaker state. Writes are atomic; a crash
// can never leave a partially updated record, since losing or corrupting
// HighestVotedRound reintroduces equivocation.
type Persister interface {
	// GetSafetyData retrieves the last persisted safety state.
	// Returns storage.ErrNotFound on a fresh database.
	GetSafetyData() (*SafetyData, error)

	// PutSafetyData persists the safety state. Any error is fatal: the node
	// must halt voting rather than risk an unpersisted lock state.
	PutSafetyData(safetyData *SafetyData) error

	// GetLivenessData retrieves the last persisted pacemaker state.
	// Returns storage.ErrNotFound on a fresh database.
	GetLivenessData() (*LivenessData, error)

	// PutLivenessData persists the pacemaker state.
	PutLivenessData(livenessData *LivenessData) error
}
