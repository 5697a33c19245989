package bft

import (
	"time"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Communicator is the consensus engine's outbound interface to the network
// layer. Message delivery is unordered and unreliable; the protocol's own
// timeout/TC mechanism covers losses, so implementations must not retry.
// Errors returned here are logged and otherwise ignored (NetworkTransient).
//
// Safe for concurrent use.
type Communicator interface {
	// BroadcastProposal sends the proposal to all committee members after
	// the given delay.
	BroadcastProposal(proposal *model.Proposal, delay time.Duration) error

	// SendVote sends the vote to the given recipient, normally the next
	// round's leader.
	SendVote(vote *model.Vote, recipientID nimbus.Identifier) error

	// BroadcastTimeout sends the timeout object to all committee members.
	BroadcastTimeout(timeout *model.TimeoutObject) error

	// SendSyncInfo sends this node's newest certificates to a peer that
	// appears to be behind.
	SendSyncInfo(syncInfo *model.SyncInfo, recipientID nimbus.Identifier) error
}
