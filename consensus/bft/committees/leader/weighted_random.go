package leader

import (
	"encoding/binary"

	"github.com/onflow/crypto/hash"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// WeightedRandom selects leaders with probability proportional to stake. The
// randomness for each round is derived from the epoch seed, so the selection
// is deterministic and unpredictable before the epoch setup is fixed.
type WeightedRandom struct {
	firstRound uint64
	seed       []byte
	// cumulative[i] is the sum of weights of validators 0..i. The leader for
	// a draw d is the first index with cumulative[i] > d.
	cumulative  []uint64
	totalWeight uint64
}

var _ bft.LeaderSelector = (*WeightedRandom)(nil)

// NewWeightedRandom creates a stake-weighted selector for an epoch starting
// at firstRound, over the given committee and epoch seed.
func NewWeightedRandom(firstRound uint64, validators nimbus.ValidatorList, seed []byte) (*WeightedRandom, error) {
	if len(validators) == 0 {
		return nil, model.NewConfigurationErrorf("committee must not be empty")
	}
	if len(seed) == 0 {
		return nil, model.NewConfigurationErrorf("weighted-random selection requires a non-empty epoch seed")
	}
	cumulative := make([]uint64, len(validators))
	var total uint64
	for i, v := range validators {
		if v.Weight == 0 {
			return nil, model.NewConfigurationErrorf("validator %v has zero weight", v.NodeID)
		}
		total += v.Weight
		cumulative[i] = total
	}
	return &WeightedRandom{
		firstRound:  firstRound,
		seed:        seed,
		cumulative:  cumulative,
		totalWeight: total,
	}, nil
}

// LeaderForRound returns the committee index of the round's leader.
// Returns model.ErrViewForUnknownEpoch if the round precedes the epoch.
func (w *WeightedRandom) LeaderForRound(round uint64) (int, error) {
	if round < w.firstRound {
		return 0, model.ErrViewForUnknownEpoch
	}
	draw := w.drawForRound(round) % w.totalWeight

	// binary search for the first cumulative weight exceeding the draw
	left, right := 0, len(w.cumulative)-1
	for left < right {
		mid := (left + right) / 2
		if w.cumulative[mid] > draw {
			right = mid
		} else {
			left = mid + 1
		}
	}
	return left, nil
}

// drawForRound expands the epoch seed into the round's random draw.
func (w *WeightedRandom) drawForRound(round uint64) uint64 {
	hasher := hash.NewSHA3_256()
	_, _ = hasher.Write(w.seed)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], round)
	_, _ = hasher.Write(buf[:])
	digest := hasher.SumHash()
	return binary.BigEndian.Uint64(digest[:8])
}
