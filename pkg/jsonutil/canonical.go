// Package jsonutil renders values as canonical JSON and digests them, so a
// journal record hashes identically in every process that writes or
// verifies it.
package jsonutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Canonical returns v as compact JSON with object keys sorted at every
// depth. Numbers keep the literal form produced by encoding/json, so large
// integers are not rounded through float64, and strings are not
// HTML-escaped.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical: %w", err)
	}

	w := newCanonicalWriter()
	if err := w.value(tree); err != nil {
		return nil, err
	}
	return w.out.Bytes(), nil
}

// Digest returns the lowercase hex SHA-256 of v's canonical form.
func Digest(v any) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

type canonicalWriter struct {
	out     bytes.Buffer
	scratch bytes.Buffer
	str     *json.Encoder
}

func newCanonicalWriter() *canonicalWriter {
	w := &canonicalWriter{}
	w.str = json.NewEncoder(&w.scratch)
	w.str.SetEscapeHTML(false)
	return w
}

func (w *canonicalWriter) value(v any) error {
	switch v := v.(type) {
	case nil:
		w.out.WriteString("null")
	case bool:
		if v {
			w.out.WriteString("true")
		} else {
			w.out.WriteString("false")
		}
	case json.Number:
		w.out.WriteString(v.String())
	case string:
		return w.text(v)
	case []any:
		w.out.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				w.out.WriteByte(',')
			}
			if err := w.value(item); err != nil {
				return err
			}
		}
		w.out.WriteByte(']')
	case map[string]any:
		w.out.WriteByte('{')
		for i, k := range slices.Sorted(maps.Keys(v)) {
			if i > 0 {
				w.out.WriteByte(',')
			}
			if err := w.text(k); err != nil {
				return err
			}
			w.out.WriteByte(':')
			if err := w.value(v[k]); err != nil {
				return err
			}
		}
		w.out.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unexpected %T", v)
	}
	return nil
}

func (w *canonicalWriter) text(s string) error {
	w.scratch.Reset()
	if err := w.str.Encode(s); err != nil {
		return err
	}
	// Encode terminates each value with a newline.
	w.out.Write(bytes.TrimSuffix(w.scratch.Bytes(), []byte{'\n'}))
	return nil
}
