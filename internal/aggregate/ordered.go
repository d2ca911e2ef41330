// Package aggregate turns expense snapshots into the list and report view
// models. Everything here is pure: no I/O, no shared state between calls.
package aggregate

import (
	"bytes"
	"encoding/json"
)

// OrderedMap is an insertion-ordered map. Keys keep the position of their
// first Set; later Sets only replace the value.
type OrderedMap[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{values: make(map[K]V)}
}

func (m *OrderedMap[K, V]) Set(k K, v V) {
	if m.values == nil {
		m.values = make(map[K]V)
	}
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

func (m *OrderedMap[K, V]) Get(k K) (V, bool) {
	v, ok := m.values[k]
	return v, ok
}

// Clone returns an independent copy. Values are copied with copyValue, or
// assigned when copyValue is nil.
func (m *OrderedMap[K, V]) Clone(copyValue func(V) V) *OrderedMap[K, V] {
	if m == nil {
		return nil
	}
	c := &OrderedMap[K, V]{keys: append([]K(nil), m.keys...), values: make(map[K]V, len(m.values))}
	for k, v := range m.values {
		if copyValue != nil {
			v = copyValue(v)
		}
		c.values[k] = v
	}
	return c
}

// Keys returns a copy of the keys in insertion order.
func (m *OrderedMap[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	return append([]K(nil), m.keys...)
}

func (m *OrderedMap[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Each visits entries in insertion order until fn returns false.
func (m *OrderedMap[K, V]) Each(fn func(K, V) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// MarshalJSON writes an array of {"key":..,"value":..} pairs so that order
// survives the trip to the client.
func (m *OrderedMap[K, V]) MarshalJSON() ([]byte, error) {
	type entry struct {
		Key   K `json:"key"`
		Value V `json:"value"`
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(entry{Key: k, Value: m.values[k]})
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
