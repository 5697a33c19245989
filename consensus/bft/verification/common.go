package verification

import (
	"encoding/binary"

	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// MakeVoteMessage generates the message that is signed when voting for a
// block. Votes and proposer signatures are interchangeable: signing a
// proposal means signing the vote message for the proposed block.
func MakeVoteMessage(round uint64, blockID nimbus.Identifier) []byte {
	msg := make([]byte, 8, 8+len(blockID))
	binary.BigEndian.PutUint64(msg, round)
	msg = append(msg, blockID[:]...)
	return msg
}

// MakeTimeoutMessage generates the message that is signed when timing out a
// round. The newest QC round is part of the message, so a timeout
// certificate proves which QC each contributor reported.
func MakeTimeoutMessage(round uint64, newestQCRound uint64) []byte {
	msg := make([]byte, 16)
	binary.BigEndian.PutUint64(msg[:8], round)
	binary.BigEndian.PutUint64(msg[8:], newestQCRound)
	return msg
}
