package lambda

import (
	"strings"
)

// multiMap is an insertion-ordered multimap. Callers supply the lookup
// form of each key; the display form of the first insertion is kept.
type multiMap struct {
	keys   []string
	values [][]string
	index  map[string]int
}

func (m *multiMap) add(lookup, key, value string) {
	if i, ok := m.index[lookup]; ok {
		m.values[i] = append(m.values[i], value)
		return
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	m.index[lookup] = len(m.keys)
	m.keys = append(m.keys, key)
	m.values = append(m.values, []string{value})
}

func (m *multiMap) set(lookup, key string, values []string) {
	if i, ok := m.index[lookup]; ok {
		m.values[i] = values
		return
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	m.index[lookup] = len(m.keys)
	m.keys = append(m.keys, key)
	m.values = append(m.values, values)
}

func (m *multiMap) get(lookup string) []string {
	if i, ok := m.index[lookup]; ok {
		return m.values[i]
	}
	return nil
}

func (m *multiMap) del(lookup string) {
	i, ok := m.index[lookup]
	if !ok {
		return
	}
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.values = append(m.values[:i], m.values[i+1:]...)
	delete(m.index, lookup)
	for k, j := range m.index {
		if j > i {
			m.index[k] = j - 1
		}
	}
}

func (m *multiMap) each(fn func(key string, values []string)) {
	for i, k := range m.keys {
		fn(k, m.values[i])
	}
}

func (m *multiMap) clone() multiMap {
	cp := multiMap{
		keys:   append([]string(nil), m.keys...),
		values: make([][]string, len(m.values)),
		index:  make(map[string]int, len(m.index)),
	}
	for i, vs := range m.values {
		cp.values[i] = append([]string(nil), vs...)
	}
	for k, i := range m.index {
		cp.index[k] = i
	}
	return cp
}

// Header is an ordered, case-insensitive header multimap. The zero value is
// an empty header ready to use.
type Header struct {
	m multiMap
}

func foldKey(key string) string {
	return strings.ToLower(key)
}

// Add appends value to the values of key
func (h *Header) Add(key, value string) {
	h.m.add(foldKey(key), key, value)
}

// Set replaces all values of key. An existing key keeps its original casing.
func (h *Header) Set(key, value string) {
	h.m.set(foldKey(key), key, []string{value})
}

// Get returns the first value of key, or "" if absent
func (h *Header) Get(key string) string {
	if vs := h.m.get(foldKey(key)); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns all values of key in insertion order
func (h *Header) Values(key string) []string {
	return h.m.get(foldKey(key))
}

// Has reports whether key is present
func (h *Header) Has(key string) bool {
	_, ok := h.m.index[foldKey(key)]
	return ok
}

// Del removes key and all its values
func (h *Header) Del(key string) {
	h.m.del(foldKey(key))
}

// Keys returns the keys, with their original casing, in insertion order
func (h *Header) Keys() []string {
	return append([]string(nil), h.m.keys...)
}

// Len returns the number of distinct keys
func (h *Header) Len() int {
	return len(h.m.keys)
}

// Each calls fn for every key in insertion order
func (h *Header) Each(fn func(key string, values []string)) {
	h.m.each(fn)
}

// Clone returns a deep copy
func (h *Header) Clone() *Header {
	return &Header{m: h.m.clone()}
}
