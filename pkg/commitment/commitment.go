// Copyright 2025 Certen Protocol
//
// Canonical Commitment Package - simplified RFC8785-like deterministic JSON
// Provides shared functions for commitment computation across all services

package commitment

import (
	"encoding/json"
	"sort"
)

// CanonicalizeJSON takes arbitrary JSON bytes and returns a canonical encoding
// (deterministic key order, stable formatting). This is a simplified RFC8785-like approach.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	canonical := canonicalizeValue(v)
	return json.Marshal(canonical)
}

// canonicalizeValue recursively sorts map keys; arrays retain order.
func canonicalizeValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]interface{}, len(vv))
		for _, k := range keys {
			ordered[k] = canonicalizeValue(vv[k])
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return vv
	}
}

// CanonicalizeJSONFromMap takes a map and returns canonical JSON bytes
func CanonicalizeJSONFromMap(m map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return CanonicalizeJSON(b)
}

// CanonicalSigningBytes marshals v to canonical JSON with the named field
// cleared first, so the resulting bytes are exactly what a signature over
// v should cover (the signature field itself cannot sign itself).
func CanonicalSigningBytes(v map[string]interface{}, signatureField string) ([]byte, error) {
	clone := make(map[string]interface{}, len(v))
	for k, val := range v {
		clone[k] = val
	}
	clone[signatureField] = ""
	return CanonicalizeJSONFromMap(clone)
}
