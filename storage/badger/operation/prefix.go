package operation

import (
	"encoding/binary"
	"fmt"

	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

const (

	// consensus metadata
	codeSafetyData   = 10 // safety rules state (one entry per chain)
	codeLivenessData = 11 // pacemaker state (one entry per chain)

	// committed ledger
	codeBoundary       = 20 // round of the last committed block
	codeBlock          = 21 // committed block by block ID
	codeIndexRound     = 22 // block ID indexed by committed round
	codeStateCommit    = 23 // execution state commitment by block ID
	codeQuorumCert     = 24 // committing QC by block ID
	codeEpochSetup     = 25 // epoch setup by epoch counter
	codeEpochCommitted = 26 // latest committed epoch counter
)

// makePrefix composes a storage key from a code prefix and a variadic list of
// key parts.
func makePrefix(code byte, keys ...interface{}) []byte {
	prefix := make([]byte, 1)
	prefix[0] = code
	for _, key := range keys {
		prefix = append(prefix, b(key)...)
	}
	return prefix
}

func b(v interface{}) []byte {
	switch i := v.(type) {
	case uint64:
		value := make([]byte, 8)
		binary.BigEndian.PutUint64(value, i)
		return value
	case nimbus.Identifier:
		return i[:]
	case []byte:
		return i
	default:
		panic(fmt.Sprintf("unsupported type to convert to key part (%T)", v))
	}
}
