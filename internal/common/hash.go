package common

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint returns the 64-hex SHA-256 digest of the given payload bytes.
// Callers are responsible for canonicalizing the payload first so identical
// source records always hash identically.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON serializes v as JSON with sorted keys, UTF-8 and no
// insignificant whitespace. Go's encoding/json already sorts map keys, so a
// round-trip through a generic value gives canonical bytes for any input
// that itself marshals to JSON.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to re-marshal payload: %w", err)
	}
	return canonical, nil
}

// SearchCacheKey derives the deterministic cache key for a search request.
// The key is an MD5 over the lowercased company, the resolved window bounds,
// days_back and the sorted list of active sources, so the same request always
// maps to the same entry regardless of source ordering.
func SearchCacheKey(company, startDate, endDate string, daysBack int, sources []string) string {
	sorted := make([]string, len(sources))
	copy(sorted, sources)
	sort.Strings(sorted)

	tuple := fmt.Sprintf("%s|%s|%s|%d|%s",
		strings.ToLower(strings.TrimSpace(company)),
		startDate, endDate, daysBack,
		strings.Join(sorted, ","))

	sum := md5.Sum([]byte(tuple))
	return hex.EncodeToString(sum[:])
}
