package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalBytes serializes an entity for checksumming: the entity is
// flattened to a field map, the checksum field is removed, and the map
// is re-encoded as JSON with deterministically sorted keys. Any
// implementation in another language must use the same field set and
// ordering to stay bit-compatible with stored checksums.
func CanonicalBytes(e Entity) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize entity: %w", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten entity: %w", err)
	}
	delete(fields, "checksum")

	// encoding/json writes map keys in sorted order, which gives the
	// deterministic ordering the checksum contract requires.
	canonical, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize entity: %w", err)
	}
	return canonical, nil
}

// ComputeChecksum returns the SHA-256 hex fingerprint of the entity's
// canonical serialization.
func ComputeChecksum(e Entity) (string, error) {
	canonical, err := CanonicalBytes(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChecksum recomputes the entity's fingerprint and compares it to
// the stored one. A mismatch is tamper evidence.
func VerifyChecksum(e Entity) error {
	stored := e.EntityMeta().Checksum
	if stored == "" {
		return fmt.Errorf("%w: entity %s has no checksum", ErrChecksumMismatch, e.EntityMeta().ID)
	}
	fresh, err := ComputeChecksum(e)
	if err != nil {
		return err
	}
	if fresh != stored {
		return fmt.Errorf("%w: entity %s stored=%s computed=%s", ErrChecksumMismatch, e.EntityMeta().ID, stored, fresh)
	}
	return nil
}
