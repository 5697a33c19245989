// Package blockproducer assembles signed block proposals when this node is
// the round's leader.
package blockproducer

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/module"
)

const defaultPayloadCacheSize = 1000

// BlockProducer builds proposals extending the newest certified block: it
// pulls a transaction batch from the mempool, excluding transactions already
// included in uncommitted ancestors, and signs the result.
//
// The payload cache maps uncommitted block IDs to their payloads; it is fed
// by the event handler for every proposal that enters the block tree, so the
// exclusion set can be derived from block IDs alone.
type BlockProducer struct {
	log          zerolog.Logger
	committee    bft.Replicas
	signer       bft.Signer
	mempool      module.Mempool
	blockTree    bft.BlockTree
	payloads     *lru.Cache // block ID -> *nimbus.Payload
	maxBatchSize uint
}

var _ bft.BlockProducer = (*BlockProducer)(nil)

func New(
	log zerolog.Logger,
	committee bft.Replicas,
	signer bft.Signer,
	mempool module.Mempool,
	blockTree bft.BlockTree,
	maxBatchSize uint,
) (*BlockProducer, error) {
	if maxBatchSize == 0 {
		return nil, model.NewConfigurationErrorf("max batch size must be positive")
	}
	payloads, err := lru.New(defaultPayloadCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create payload cache: %w", err)
	}
	return &BlockProducer{
		log:          log.With().Str("component", "block_producer").Logger(),
		committee:    committee,
		signer:       signer,
		mempool:      mempool,
		blockTree:    blockTree,
		payloads:     payloads,
		maxBatchSize: maxBatchSize,
	}, nil
}

// RecordPayload remembers the payload of an uncommitted block, so later
// proposals can exclude its transactions.
func (p *BlockProducer) RecordPayload(blockID nimbus.Identifier, payload *nimbus.Payload) {
	p.payloads.Add(blockID, payload)
}

// MakeBlockProposal builds a signed proposal for the given round, extending
// the block certified by newestQC.
func (p *BlockProducer) MakeBlockProposal(curRound uint64, newestQC *nimbus.QuorumCertificate, lastRoundTC *nimbus.TimeoutCertificate) (*model.Proposal, error) {
	leader, err := p.committee.LeaderForRound(curRound)
	if err != nil {
		return nil, fmt.Errorf("could not determine leader for round %d: %w", curRound, err)
	}
	if leader != p.committee.Self() {
		return nil, fmt.Errorf("not the leader for round %d", curRound)
	}

	exclude, err := p.pendingTransactions(newestQC.BlockID)
	if err != nil {
		return nil, fmt.Errorf("could not collect pending transactions: %w", err)
	}
	transactions := p.mempool.PullTransactions(p.maxBatchSize, exclude)
	payload := &nimbus.Payload{Transactions: transactions}

	block := model.NewBlock(
		curRound,
		p.committee.Epoch(),
		p.committee.Self(),
		newestQC,
		payload.Hash(),
		time.Now().UTC(),
	)
	proposal, err := p.signer.CreateProposal(block, payload, lastRoundTC)
	if err != nil {
		return nil, fmt.Errorf("could not sign proposal for round %d: %w", curRound, err)
	}
	p.RecordPayload(block.BlockID, payload)

	p.log.Debug().
		Uint64("round", curRound).
		Int("transactions", len(transactions)).
		Hex("block_id", block.BlockID[:]).
		Msg("proposal built")
	return proposal, nil
}

// pendingTransactions returns the IDs of all transactions included in the
// uncommitted chain segment from the committed root up to the given block.
func (p *BlockProducer) pendingTransactions(parentID nimbus.Identifier) (map[nimbus.Identifier]struct{}, error) {
	exclude := make(map[nimbus.Identifier]struct{})
	if parentID == p.blockTree.CommittedBlockID() {
		return exclude, nil
	}
	path, err := p.blockTree.PathFromRoot(parentID)
	if err != nil {
		return nil, fmt.Errorf("could not resolve ancestry of %v: %w", parentID, err)
	}
	for _, ancestor := range path {
		cached, ok := p.payloads.Get(ancestor.BlockID)
		if !ok {
			// payload fell out of the cache; worst case a transaction is
			// included twice and deduplicated at execution
			continue
		}
		for _, txID := range cached.(*nimbus.Payload).TransactionIDs() {
			exclude[txID] = struct{}{}
		}
	}
	return exclude, nil
}
