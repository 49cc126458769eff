package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ContentKey derives a deterministic cache key from the canonical JSON
// serialization of the call parameters. encoding/json writes map keys in
// sorted order, so two semantically identical parameter sets hash
// identically regardless of insertion order.
func ContentKey(prefix string, params any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("canonicalizing cache key params: %w", err)
	}
	sum := sha256.Sum256(data)
	return prefix + ":" + hex.EncodeToString(sum[:]), nil
}
