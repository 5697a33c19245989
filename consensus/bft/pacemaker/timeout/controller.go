package timeout

import (
	"context"
	"math"
	"time"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
)

// Controller implements the round deadline with truncated exponential
// backoff:
//
//	duration = min * factor^max(0, failures - happyPathRounds), capped at max
//
// The failure streak grows on every round that ends in a TC and shrinks on
// every round that ends in a QC, so an isolated hiccup does not inflate the
// timeout but a struggling network backs off quickly.
//
// After the deadline fires, the channel keeps ticking at the rebroadcast
// interval, so the node re-announces its timeout object to peers that missed
// it.
type Controller struct {
	cfg            Config
	timeoutChannel chan time.Time
	stopTicker     context.CancelFunc
	// maxExponent caps the backoff exponent so the power computation cannot
	// overflow; beyond it the duration is clamped to MaxReplicaTimeout anyway
	maxExponent float64
	failures    uint64
}

// NewController creates a controller with an unarmed deadline. The channel
// returned by Channel() never fires before the first StartTimeout.
func NewController(cfg Config) *Controller {
	maxExponent := math.Log(cfg.MaxReplicaTimeout/cfg.MinReplicaTimeout) / math.Log(cfg.TimeoutAdjustmentFactor)
	return &Controller{
		cfg:            cfg,
		timeoutChannel: make(chan time.Time, 1),
		stopTicker:     func() {},
		maxExponent:    maxExponent,
	}
}

// Channel returns the channel of the active deadline. A new channel is
// created by every StartTimeout; callers re-fetch it after round transitions.
func (c *Controller) Channel() <-chan time.Time {
	return c.timeoutChannel
}

// StartTimeout arms the deadline for the given round, cancelling any
// previously armed deadline and its rebroadcast ticks.
func (c *Controller) StartTimeout(ctx context.Context, round uint64) model.TimerInfo {
	c.stopTicker()

	duration := c.replicaTimeout()
	rebroadcastInterval := time.Duration(c.cfg.MaxTimeoutObjectRebroadcastInterval) * time.Millisecond
	timeoutChannel := make(chan time.Time, 1)
	tickCtx, cancel := context.WithCancel(ctx)
	go tickAfterTimeout(tickCtx, duration, rebroadcastInterval, timeoutChannel)

	c.timeoutChannel = timeoutChannel
	c.stopTicker = cancel
	return model.TimerInfo{Round: round, StartTime: time.Now().UTC(), Duration: duration}
}

// tickAfterTimeout sleeps for the round duration, emits the deadline event,
// then keeps emitting rebroadcast ticks until cancelled.
func tickAfterTimeout(ctx context.Context, duration time.Duration, tickInterval time.Duration, channel chan<- time.Time) {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case t := <-timer.C:
		channel <- t // channel is buffered, does not block
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case t := <-ticker.C:
			select {
			case channel <- t:
			default: // slow consumer, skip the tick
			}
		case <-ctx.Done():
			return
		}
	}
}

// TriggerTimeout makes the active deadline fire immediately. Used when a
// partial TC proves the current round cannot succeed anymore.
func (c *Controller) TriggerTimeout() {
	select {
	case c.timeoutChannel <- time.Now().UTC():
	default:
	}
}

// replicaTimeout returns the duration of the next round.
func (c *Controller) replicaTimeout() time.Duration {
	if c.failures <= c.cfg.HappyPathMaxRoundFailures {
		return time.Duration(c.cfg.MinReplicaTimeout) * time.Millisecond
	}
	exponent := float64(c.failures - c.cfg.HappyPathMaxRoundFailures)
	if exponent > c.maxExponent {
		return time.Duration(c.cfg.MaxReplicaTimeout) * time.Millisecond
	}
	duration := c.cfg.MinReplicaTimeout * math.Pow(c.cfg.TimeoutAdjustmentFactor, exponent)
	return time.Duration(duration) * time.Millisecond
}

// OnTimeout grows the failure streak; called when a round ends in a TC.
func (c *Controller) OnTimeout() {
	if c.failures == math.MaxUint64 {
		return
	}
	c.failures++
}

// OnProgressBeforeTimeout shrinks the failure streak; called when a round
// ends in a QC.
func (c *Controller) OnProgressBeforeTimeout() {
	if c.failures > 0 {
		c.failures--
	}
}

// BlockRateDelay returns the delay for broadcasting this node's own proposals.
func (c *Controller) BlockRateDelay() time.Duration {
	return time.Duration(c.cfg.BlockRateDelayMS.Load() * float64(time.Millisecond))
}
