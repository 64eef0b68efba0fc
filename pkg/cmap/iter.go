package cmap

// Range iterates over all key-value pairs until fn returns false.
// Shards are locked one at a time, so the view may not be consistent.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns all keys.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	m.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Values returns all values.
func (m *Map[V]) Values() []V {
	values := make([]V, 0, m.Count())
	m.Range(func(_ string, value V) bool {
		values = append(values, value)
		return true
	})
	return values
}

// Snapshot returns a copy of every value. fn is not called under a shard lock
// so callers may mutate the map while acting on the result.
func (m *Map[V]) Snapshot(fn func(V)) {
	for _, v := range m.Values() {
		fn(v)
	}
}
