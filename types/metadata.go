package types

// Metadata is a semi-structured key/value map attached to tasks, messages,
// artifacts and events.
type Metadata map[string]Value

// Clone returns a deep copy. A nil map stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Merge returns a new map holding the keys of m overlaid with the keys of
// other. Values from other win on collision; nested objects are replaced,
// never merged recursively. Neither input is modified.
func (m Metadata) Merge(other Metadata) Metadata {
	if m == nil && other == nil {
		return nil
	}
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v.Clone()
	}
	for k, v := range other {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports whether both maps hold the same keys with equal values.
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
