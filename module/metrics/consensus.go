package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/consensus/bft/notifications"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/module/counters"
)

const (
	namespaceConsensus = "nimbus"
	subsystemConsensus = "consensus"
)

// ConsensusCollector exposes the consensus engine's progress as prometheus
// metrics. It consumes the engine's notifications; methods it does not
// measure fall through to the embedded no-op consumer.
//
// Safe for concurrent use: notifications arrive from the event loop and the
// aggregators' worker pools.
type ConsensusCollector struct {
	notifications.NoopConsumer

	currentRound   prometheus.Gauge
	committedRound prometheus.Gauge
	roundDuration  prometheus.Histogram

	timeouts        prometheus.Counter
	qcsConstructed  prometheus.Counter
	tcsConstructed  prometheus.Counter
	committedBlocks prometheus.Counter
	doubleProposals prometheus.Counter
	doubleVotes     prometheus.Counter
	doubleTimeouts  prometheus.Counter
	invalidVotes    prometheus.Counter
	invalidTimeouts prometheus.Counter

	// highest committed round seen, to keep the gauge monotone even though
	// notifications may arrive out of order
	highestCommitted counters.StrictMonotonousCounter

	lastRoundEntered *atomic.Time
}

var _ bft.Consumer = (*ConsensusCollector)(nil)

// NewConsensusCollector registers the consensus metrics with the given
// registerer, normally prometheus.DefaultRegisterer.
func NewConsensusCollector(registerer prometheus.Registerer) *ConsensusCollector {
	cc := &ConsensusCollector{
		currentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "current_round",
			Help:      "the consensus round this node is currently in",
		}),
		committedRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "committed_round",
			Help:      "the round of the latest committed block",
		}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "round_duration_seconds",
			Help:      "time spent in a consensus round before entering the next one",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "timeouts_total",
			Help:      "the number of rounds this node has timed out locally",
		}),
		qcsConstructed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "qcs_constructed_total",
			Help:      "the number of quorum certificates this node has assembled from votes",
		}),
		tcsConstructed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "tcs_constructed_total",
			Help:      "the number of timeout certificates this node has assembled from timeouts",
		}),
		committedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "committed_blocks_total",
			Help:      "the number of blocks this node has committed",
		}),
		doubleProposals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "double_proposals_total",
			Help:      "the number of double-proposal equivocations observed",
		}),
		doubleVotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "double_votes_total",
			Help:      "the number of double-voting equivocations observed",
		}),
		doubleTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "double_timeouts_total",
			Help:      "the number of double-timeout equivocations observed",
		}),
		invalidVotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "invalid_votes_total",
			Help:      "the number of invalid votes dropped at the ingestion boundary",
		}),
		invalidTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConsensus,
			Subsystem: subsystemConsensus,
			Name:      "invalid_timeouts_total",
			Help:      "the number of invalid timeouts dropped at the ingestion boundary",
		}),
		highestCommitted: counters.NewMonotonousCounter(0),
		lastRoundEntered: atomic.NewTime(time.Time{}),
	}
	registerer.MustRegister(
		cc.currentRound,
		cc.committedRound,
		cc.roundDuration,
		cc.timeouts,
		cc.qcsConstructed,
		cc.tcsConstructed,
		cc.committedBlocks,
		cc.doubleProposals,
		cc.doubleVotes,
		cc.doubleTimeouts,
		cc.invalidVotes,
		cc.invalidTimeouts,
	)
	return cc
}

func (cc *ConsensusCollector) OnEnteringRound(round uint64, leader nimbus.Identifier) {
	cc.currentRound.Set(float64(round))
	// round entries are serialized by the event loop, so load-then-store
	// cannot interleave
	previous := cc.lastRoundEntered.Load()
	cc.lastRoundEntered.Store(time.Now())
	if !previous.IsZero() {
		cc.roundDuration.Observe(time.Since(previous).Seconds())
	}
}

func (cc *ConsensusCollector) OnLocalTimeout(round uint64) {
	cc.timeouts.Inc()
}

func (cc *ConsensusCollector) OnQCConstructed(qc *nimbus.QuorumCertificate) {
	cc.qcsConstructed.Inc()
}

func (cc *ConsensusCollector) OnTCConstructed(tc *nimbus.TimeoutCertificate) {
	cc.tcsConstructed.Inc()
}

func (cc *ConsensusCollector) OnBlockCommitted(block *model.CommittedBlock) {
	cc.committedBlocks.Inc()
	if cc.highestCommitted.Set(block.Block.Round) {
		cc.committedRound.Set(float64(cc.highestCommitted.Value()))
	}
}

func (cc *ConsensusCollector) OnDoubleProposeDetected(block *model.Block, alt *model.Block) {
	cc.doubleProposals.Inc()
}

func (cc *ConsensusCollector) OnDoubleVotingDetected(firstVote *model.Vote, conflictingVote *model.Vote) {
	cc.doubleVotes.Inc()
}

func (cc *ConsensusCollector) OnDoubleTimeoutDetected(firstTimeout *model.TimeoutObject, conflictingTimeout *model.TimeoutObject) {
	cc.doubleTimeouts.Inc()
}

func (cc *ConsensusCollector) OnInvalidVoteDetected(err model.InvalidVoteError) {
	cc.invalidVotes.Inc()
}

func (cc *ConsensusCollector) OnInvalidTimeoutDetected(err model.InvalidTimeoutError) {
	cc.invalidTimeouts.Inc()
}
