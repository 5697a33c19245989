package nimbus

// Transaction is an opaque, signed user transaction. Consensus never
// interprets transaction contents; it only batches them into payloads and
// hands them to the execution engine.
type Transaction struct {
	Script    []byte
	Arguments [][]byte
	Nonce     uint64
	Payer     Identifier
}

// ID returns the content identifier of the transaction.
func (tx *Transaction) ID() Identifier {
	return MakeID(tx)
}

// Payload is the transaction batch carried by one block. Blocks reference
// payloads by hash; the payload bytes travel alongside the proposal.
type Payload struct {
	Transactions []*Transaction
}

// EmptyPayload returns a payload with no transactions, used by leaders when
// the mempool is empty.
func EmptyPayload() *Payload {
	return &Payload{}
}

// Hash returns the content identifier of the payload.
func (p *Payload) Hash() Identifier {
	return MakeID(p)
}

// TransactionIDs returns the identifiers of all transactions in the payload.
func (p *Payload) TransactionIDs() IdentifierList {
	ids := make(IdentifierList, 0, len(p.Transactions))
	for _, tx := range p.Transactions {
		ids = append(ids, tx.ID())
	}
	return ids
}
