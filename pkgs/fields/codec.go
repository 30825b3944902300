// Package fields converts user supplied key/value metadata to and from the
// flat string array stored by the tracker contract.
package fields

import (
	"strings"

	"github.com/naveenchin/tt-backend/pkgs/fault"
)

// Separator joins key and value inside one encoded entry. It must not appear
// in a raw key or value; Validate rejects pairs that contain it.
const Separator = "||"

// Pair is one metadata entry attached to a stage
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Encode produces one "key||value" string per pair. Keys and values are
// trimmed here and only here.
func Encode(pairs []Pair) []string {
	encoded := make([]string, 0, len(pairs))
	for _, p := range pairs {
		encoded = append(encoded, strings.TrimSpace(p.Key)+Separator+strings.TrimSpace(p.Value))
	}
	return encoded
}

// Decode splits every entry on the first separator. Entries without a
// separator or with an empty key are skipped. Values are kept verbatim and
// later duplicates win.
func Decode(entries []string) map[string]string {
	decoded := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, Separator)
		if !found || key == "" {
			continue
		}
		decoded[key] = value
	}
	return decoded
}

// Validate checks pairs before they are encoded so the round trip through
// the contract is lossless.
func Validate(pairs []Pair) error {
	seen := make(map[string]struct{}, len(pairs))
	for i, p := range pairs {
		key := strings.TrimSpace(p.Key)
		if key == "" {
			return fault.Newf(fault.Validation, "validate fields", "field %d has an empty key", i)
		}
		if strings.Contains(p.Key, Separator) {
			return fault.Newf(fault.Validation, "validate fields", "field %q: key must not contain %q", key, Separator)
		}
		// a trailing pipe would merge with the separator and shift the split point
		if strings.HasSuffix(key, "|") {
			return fault.Newf(fault.Validation, "validate fields", "field %q: key must not end with %q", key, "|")
		}
		if strings.Contains(p.Value, Separator) {
			return fault.Newf(fault.Validation, "validate fields", "field %q: value must not contain %q", key, Separator)
		}
		if _, dup := seen[key]; dup {
			return fault.Newf(fault.Validation, "validate fields", "duplicate field %q", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
