// Package meta holds the small string map clients attach to transactions
// (receipt references, merchant tags). Keys are sorted when encoded so the
// stored JSON is byte-stable.
package meta

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/tinoosan/budgetledger/internal/errs"
)

// Metadata is a bounded string map with stable JSON encoding.
type Metadata map[string]string

const (
	MaxPairs     = 16
	MaxKeyLen    = 48
	MaxValLen    = 256
	MaxTotalJSON = 2048
)

// New copies m; a nil input yields an empty map.
func New(m map[string]string) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata { return New(m) }

func (m Metadata) Get(k string) (string, bool) { v, ok := m[k]; return v, ok }

// Keys returns the keys in ascending order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate enforces the size limits. Violations are validation errors on the
// "metadata" field.
func (m Metadata) Validate() error {
	if len(m) > MaxPairs {
		return errs.Invalid("metadata", "too many pairs")
	}
	for k, v := range m {
		if k == "" || len(k) > MaxKeyLen {
			return errs.Invalid("metadata", "key empty or too long")
		}
		if len(v) > MaxValLen {
			return errs.Invalid("metadata", "value too long")
		}
	}
	b, _ := m.MarshalJSON()
	if len(b) > MaxTotalJSON {
		return errs.Invalid("metadata", "exceeds max json size")
	}
	return nil
}

// MarshalJSON encodes m with keys sorted.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = Metadata{}
		return nil
	}
	var tmp map[string]string
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*m = New(tmp)
	return nil
}
