package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// CanonicalJSON renders the snapshot as deterministic canonical JSON:
// object keys sorted, strings NFC-normalized, no HTML escaping, no nulls.
// Two snapshots of identical state always render byte-identically, which is
// what makes golden-file comparison and cross-host diffing meaningful.
func (s *Snapshot) CanonicalJSON() ([]byte, error) {
	// Round-trip through encoding/json to reduce the typed snapshot to
	// generic JSON values before canonical rendering.
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("flatten snapshot: %w", err)
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("flatten snapshot: %w", err)
	}
	return marshalCanonical(generic)
}

// marshalCanonical renders a generic JSON value canonically. Nulls are
// forbidden: every optional field in the snapshot model is omitted when
// empty, so a null here means a modelling bug.
func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return marshalCanonicalNumber(val)
	case float64:
		return marshalCanonicalFloat(val)
	case int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case uint64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case string:
		return marshalCanonicalString(val)
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalNumber accepts integral numbers only. The snapshot model
// carries no fractional values; anything non-integral is a modelling bug.
func marshalCanonicalNumber(n json.Number) ([]byte, error) {
	if i, err := n.Int64(); err == nil {
		return []byte(fmt.Sprintf("%d", i)), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("unparseable number %q", n.String())
	}
	return marshalCanonicalFloat(f)
}

func marshalCanonicalFloat(f float64) ([]byte, error) {
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return nil, fmt.Errorf("non-integral number is forbidden in canonical JSON: %v", f)
	}
	return []byte(fmt.Sprintf("%d", int64(f))), nil
}

// marshalCanonicalString renders a string NFC-normalized with HTML escaping
// disabled: only control characters, backslash, and quote are escaped.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder appends a trailing newline.
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalCanonicalObject renders an object with keys in sorted order. The
// snapshot model uses ASCII snake_case keys throughout, so plain byte order
// coincides with UTF-16 code unit order.
func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("object key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
