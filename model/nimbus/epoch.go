package nimbus

// LeaderPolicy identifies the leader-election strategy in force for an epoch.
// The strategy must be a pure function of (round, validator set) and is part
// of the epoch configuration, so protocol versions can change it at an epoch
// boundary without touching the core state machine.
type LeaderPolicy string

const (
	// LeaderPolicyRoundRobin rotates leadership through the validator set in
	// canonical order, one round per validator.
	LeaderPolicyRoundRobin LeaderPolicy = "round-robin"
	// LeaderPolicyWeightedRandom selects leaders with probability
	// proportional to stake, from a seed fixed in the epoch setup.
	LeaderPolicyWeightedRandom LeaderPolicy = "weighted-random"
)

// CommitPolicy identifies the commit-rule variant in force for an epoch.
type CommitPolicy string

const (
	// CommitPolicyThreeChain finalizes block B once B <- C <- D are certified
	// on contiguous rounds.
	CommitPolicyThreeChain CommitPolicy = "three-chain"
	// CommitPolicyTwoChain finalizes block B once its child C is certified
	// and round(C) = round(B)+1.
	CommitPolicyTwoChain CommitPolicy = "two-chain"
)

// EpochSetup fixes the consensus configuration for one epoch. It is agreed
// upon through a reconfiguration block in the previous epoch and is immutable
// for the epoch's lifetime.
type EpochSetup struct {
	// Counter is the epoch number; epoch counters strictly increase.
	Counter uint64
	// FirstRound is the first consensus round of the epoch. Rounds restart
	// from FirstRound with the new validator set.
	FirstRound uint64
	// Validators is the fixed, ordered committee for the epoch.
	Validators ValidatorList
	// LeaderPolicy selects the leader-election strategy.
	LeaderPolicy LeaderPolicy
	// CommitPolicy selects the commit-rule variant.
	CommitPolicy CommitPolicy
	// Seed feeds the weighted-random leader selection; ignored by the
	// round-robin policy.
	Seed []byte
}

// ID returns the content identifier of the epoch setup.
func (e *EpochSetup) ID() Identifier {
	return MakeID(e)
}
