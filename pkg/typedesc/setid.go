package typedesc

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// DescriptorSetID identifies a descriptor stream by content. The encoder is
// deterministic, so equal type graphs always hash to the same id.
type DescriptorSetID [32]byte

// SetID hashes a raw descriptor stream.
func SetID(stream []byte) DescriptorSetID {
	return DescriptorSetID(blake3.Sum256(stream))
}

func (id DescriptorSetID) String() string { return hex.EncodeToString(id[:]) }

func (id DescriptorSetID) IsZero() bool { return id == DescriptorSetID{} }

// ParseSetID parses the hex form produced by String.
func ParseSetID(s string) (DescriptorSetID, error) {
	var id DescriptorSetID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("typedesc: parse descriptor set id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("typedesc: descriptor set id is %d bytes, want %d", len(raw), len(id))
	}
	copy(id[:], raw)
	return id, nil
}
