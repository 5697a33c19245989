package nimbus

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/onflow/crypto/hash"
)

// IdentifierLen is the byte length of content identifiers.
const IdentifierLen = 32

// Identifier represents a 32-byte unique identifier of an entity,
// derived as the hash of the entity's canonical encoding.
type Identifier [IdentifierLen]byte

// ZeroID is the lowest value in the 32-byte ID space.
var ZeroID = Identifier{}

// canonical encoding mode used for content hashing; deterministic map
// ordering is required so two nodes derive the same ID for the same entity
var hashEncMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("could not create canonical encoder: %s", err))
	}
	return em
}()

// MakeID derives the identifier of an arbitrary entity by hashing its
// canonical CBOR encoding with SHA3-256.
func MakeID(entity interface{}) Identifier {
	data, err := hashEncMode.Marshal(entity)
	if err != nil {
		panic(fmt.Sprintf("could not encode entity for hashing: %s", err))
	}
	return HashToID(data)
}

// HashToID hashes the given data and returns the digest as identifier.
func HashToID(data []byte) Identifier {
	var id Identifier
	hasher := hash.NewSHA3_256()
	copy(id[:], hasher.ComputeHash(data))
	return id
}

// HexStringToIdentifier converts a hex string to an identifier.
// The input must be 64 hexadecimal characters.
func HexStringToIdentifier(s string) (Identifier, error) {
	var id Identifier
	if len(s) != 2*IdentifierLen {
		return ZeroID, fmt.Errorf("malformed input, expected %d characters, got %d", 2*IdentifierLen, len(s))
	}
	_, err := hex.Decode(id[:], []byte(s))
	if err != nil {
		return ZeroID, err
	}
	return id, nil
}

func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// IdentifierList is a list of identifiers, e.g. the signers of a certificate.
type IdentifierList []Identifier

// Lookup returns a set representation of the list. The set cardinality is the
// number of _distinct_ identifiers, which callers use to guard against
// repetition attacks.
func (l IdentifierList) Lookup() map[Identifier]struct{} {
	set := make(map[Identifier]struct{}, len(l))
	for _, id := range l {
		set[id] = struct{}{}
	}
	return set
}

// Contains returns true if and only if the list contains the given id.
func (l IdentifierList) Contains(target Identifier) bool {
	for _, id := range l {
		if id == target {
			return true
		}
	}
	return false
}
