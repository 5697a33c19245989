// Package bft defines the component interfaces of the Nimbus BFT consensus
// engine: the pacemaker, safety rules, block tree, commit rule, certificate
// collectors and aggregators, committee, signing and verification, and the
// notification consumer. Concrete implementations live in the subpackages.
//
// The engine follows a leader-based, certificate-driven design: per round a
// designated leader proposes a block extending the newest quorum certificate
// (QC), replicas validate and vote, and votes aggregate into a QC which
// advances the round. Rounds that fail to certify a block are abandoned via
// timeout certificates (TCs). A pluggable commit rule finalizes a prefix of
// the certified chain.
//
// All state transitions of one validator are serialized through a single
// event loop; the interfaces document which methods may be called
// concurrently.
package bft
