package timeoutcollector

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	bftsig "github.com/nimbuschain/nimbus-go/consensus/bft/signature"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	msig "github.com/nimbuschain/nimbus-go/module/signature"
)

// newestQCTracker retains the QC with the highest round seen so far.
type newestQCTracker struct {
	lock     sync.RWMutex
	newestQC *nimbus.QuorumCertificate
}

func (t *newestQCTracker) Track(qc *nimbus.QuorumCertificate) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.newestQC == nil || qc.Round > t.newestQC.Round {
		t.newestQC = qc
	}
}

func (t *newestQCTracker) NewestQC() *nimbus.QuorumCertificate {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.newestQC
}

// TimeoutProcessor verifies and accumulates the timeouts of one round. Two
// thresholds matter: crossing the timeout threshold (more than 1/3 of weight)
// fires the partial-TC signal, since at least one honest validator must be
// among the contributors; crossing the quorum threshold assembles a full TC.
// Each signal fires exactly once.
//
// Safe for concurrent use.
type TimeoutProcessor struct {
	round            uint64
	epoch            uint64
	committee        bft.Replicas
	validator        bft.Validator
	mu               sync.Mutex
	aggregator       *bftsig.TimeoutSignatureAggregator
	newestQC         newestQCTracker
	onPartialTC      bft.OnPartialTCCreated
	onTCCreated      bft.OnTCCreated
	partialTCFired   *atomic.Bool
	tcFired          *atomic.Bool
	partialThreshold uint64
	quorumThreshold  uint64
}

var _ bft.TimeoutProcessor = (*TimeoutProcessor)(nil)

func NewTimeoutProcessor(
	committee bft.Replicas,
	validator bft.Validator,
	round uint64,
	onPartialTC bft.OnPartialTCCreated,
	onTCCreated bft.OnTCCreated,
) (*TimeoutProcessor, error) {
	aggregator, err := bftsig.NewTimeoutSignatureAggregator(committee.Validators(), round, msig.ConsensusTimeoutTag)
	if err != nil {
		return nil, fmt.Errorf("could not create timeout signature aggregator for round %d: %w", round, err)
	}
	return &TimeoutProcessor{
		round:            round,
		epoch:            committee.Epoch(),
		committee:        committee,
		validator:        validator,
		aggregator:       aggregator,
		onPartialTC:      onPartialTC,
		onTCCreated:      onTCCreated,
		partialTCFired:   atomic.NewBool(false),
		tcFired:          atomic.NewBool(false),
		partialThreshold: committee.TimeoutThreshold(),
		quorumThreshold:  committee.QuorumThreshold(),
	}, nil
}

// Process verifies the timeout and adds its weight towards both thresholds.
// Duplicates are ignored.
// Expected errors during normal operation:
//   - model.TimeoutForIncompatibleRoundError
//   - model.InvalidTimeoutError for timeouts failing protocol validation
func (p *TimeoutProcessor) Process(timeout *model.TimeoutObject) error {
	if timeout.Round != p.round {
		return model.TimeoutForIncompatibleRoundError
	}
	if p.tcFired.Load() {
		return nil
	}
	_, err := p.validator.ValidateTimeout(timeout)
	if err != nil {
		if model.IsInvalidTimeoutError(err) {
			return err
		}
		return fmt.Errorf("could not validate timeout %v: %w", timeout.ID(), err)
	}

	// aggregation, QC tracking and the threshold checks are serialized, so a
	// TC always references the newest QC among exactly its contributors
	p.mu.Lock()
	defer p.mu.Unlock()

	totalWeight, err := p.aggregator.VerifyAndAdd(timeout.SignerID, timeout.SigData, timeout.NewestQC.Round)
	if err != nil {
		if model.IsDuplicatedSignerError(err) {
			return nil
		}
		return fmt.Errorf("could not aggregate timeout %v: %w", timeout.ID(), err)
	}
	p.newestQC.Track(timeout.NewestQC)

	if totalWeight >= p.partialThreshold && p.partialTCFired.CompareAndSwap(false, true) {
		p.onPartialTC(p.round)
	}
	if totalWeight >= p.quorumThreshold && p.tcFired.CompareAndSwap(false, true) {
		tc, err := p.buildTC()
		if err != nil {
			return fmt.Errorf("could not build TC for round %d: %w", p.round, err)
		}
		p.onTCCreated(tc)
	}
	return nil
}

// TotalWeight returns the accumulated weight of all distinct contributors.
func (p *TimeoutProcessor) TotalWeight() uint64 {
	return p.aggregator.TotalWeight()
}

func (p *TimeoutProcessor) buildTC() (*nimbus.TimeoutCertificate, error) {
	signersInfo, aggSig, err := p.aggregator.Aggregate()
	if err != nil {
		return nil, fmt.Errorf("could not aggregate timeout signatures: %w", err)
	}
	signerIDs := make(nimbus.IdentifierList, 0, len(signersInfo))
	qcRounds := make([]uint64, 0, len(signersInfo))
	for _, info := range signersInfo {
		signerIDs = append(signerIDs, info.Signer)
		qcRounds = append(qcRounds, info.NewestQCRound)
	}

	tc, err := nimbus.NewTimeoutCertificate(nimbus.UntrustedTimeoutCertificate{
		Epoch:          p.epoch,
		Round:          p.round,
		NewestQC:       p.newestQC.NewestQC(),
		NewestQCRounds: qcRounds,
		SignerIDs:      signerIDs,
		SigData:        aggSig,
	})
	if err != nil {
		return nil, fmt.Errorf("could not construct TC: %w", err)
	}
	return tc, nil
}
