// Package timeout manages the round deadlines: how long a replica waits for
// progress before giving up on the round, with truncated exponential backoff
// on repeated failures.
package timeout

import (
	"time"

	"go.uber.org/atomic"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
)

// Config holds the timeout parameters. Whether these are protocol-fixed or
// epoch-configurable is a policy decision; the engine takes them as inputs.
type Config struct {
	// MinReplicaTimeout is the minimal round duration [milliseconds]. Rounds
	// on the happy path run with this timeout.
	MinReplicaTimeout float64
	// MaxReplicaTimeout caps the backoff [milliseconds].
	MaxReplicaTimeout float64
	// TimeoutAdjustmentFactor is the multiplicative base of the backoff.
	// Must be strictly larger than 1.
	TimeoutAdjustmentFactor float64
	// HappyPathMaxRoundFailures is the number of consecutive failed rounds
	// tolerated before the backoff kicks in.
	HappyPathMaxRoundFailures uint64
	// MaxTimeoutObjectRebroadcastInterval is the interval at which this
	// node's timeout object is rebroadcast after the deadline has fired
	// [milliseconds], so late or recovering peers still collect it.
	MaxTimeoutObjectRebroadcastInterval float64
	// BlockRateDelayMS is an artificial delay [milliseconds] applied before
	// broadcasting the node's own proposals, to control block production
	// rate. Changeable at runtime.
	BlockRateDelayMS *atomic.Float64
}

// DefaultConfig is the reference parametrization.
var DefaultConfig = NewDefaultConfig()

func NewDefaultConfig() Config {
	cfg, err := NewConfig(
		3*time.Second,
		1*time.Minute,
		1.2,
		6,
		5*time.Second,
		0,
	)
	if err != nil {
		// the default values are valid by construction
		panic(err)
	}
	return cfg
}

// NewConfig validates the parameters and assembles a Config.
// Returns model.ConfigurationError for invalid inputs.
func NewConfig(
	minReplicaTimeout time.Duration,
	maxReplicaTimeout time.Duration,
	timeoutAdjustmentFactor float64,
	happyPathMaxRoundFailures uint64,
	maxRebroadcastInterval time.Duration,
	blockRateDelay time.Duration,
) (Config, error) {
	if minReplicaTimeout <= 0 {
		return Config{}, model.NewConfigurationErrorf("minReplicaTimeout must be positive")
	}
	if maxReplicaTimeout < minReplicaTimeout {
		return Config{}, model.NewConfigurationErrorf("maxReplicaTimeout must not be smaller than minReplicaTimeout")
	}
	if timeoutAdjustmentFactor <= 1 {
		return Config{}, model.NewConfigurationErrorf("timeoutAdjustmentFactor must be strictly larger than 1")
	}
	if maxRebroadcastInterval <= 0 {
		return Config{}, model.NewConfigurationErrorf("maxRebroadcastInterval must be positive")
	}
	if blockRateDelay < 0 {
		return Config{}, model.NewConfigurationErrorf("blockRateDelay must not be negative")
	}
	return Config{
		MinReplicaTimeout:                   float64(minReplicaTimeout.Milliseconds()),
		MaxReplicaTimeout:                   float64(maxReplicaTimeout.Milliseconds()),
		TimeoutAdjustmentFactor:             timeoutAdjustmentFactor,
		HappyPathMaxRoundFailures:           happyPathMaxRoundFailures,
		MaxTimeoutObjectRebroadcastInterval: float64(maxRebroadcastInterval.Milliseconds()),
		BlockRateDelayMS:                    atomic.NewFloat64(float64(blockRateDelay.Milliseconds())),
	}, nil
}
