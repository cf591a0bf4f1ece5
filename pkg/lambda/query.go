package lambda

import (
	"net/url"
	"strings"
)

// Query is an ordered multimap of decoded query parameters. Keys are case
// sensitive. The zero value is an empty query ready to use.
type Query struct {
	m multiMap
}

// Add appends value to the values of key
func (q *Query) Add(key, value string) {
	q.m.add(key, key, value)
}

// Set replaces all values of key
func (q *Query) Set(key, value string) {
	q.m.set(key, key, []string{value})
}

// Get returns the first value of key, or "" if absent
func (q *Query) Get(key string) string {
	if vs := q.m.get(key); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns all values of key in insertion order
func (q *Query) Values(key string) []string {
	return q.m.get(key)
}

// Has reports whether key is present
func (q *Query) Has(key string) bool {
	_, ok := q.m.index[key]
	return ok
}

// Del removes key and all its values
func (q *Query) Del(key string) {
	q.m.del(key)
}

// Keys returns the keys in insertion order
func (q *Query) Keys() []string {
	return append([]string(nil), q.m.keys...)
}

// Len returns the number of distinct keys
func (q *Query) Len() int {
	return len(q.m.keys)
}

// Each calls fn for every key in insertion order
func (q *Query) Each(fn func(key string, values []string)) {
	q.m.each(fn)
}

// Clone returns a deep copy
func (q *Query) Clone() *Query {
	return &Query{m: q.m.clone()}
}

// Encode percent-encodes the parameters exactly once, preserving order.
// A consumer that decodes the result once gets the stored values back.
func (q *Query) Encode() string {
	var b strings.Builder
	q.m.each(func(key string, values []string) {
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	})
	return b.String()
}

// parseRawQuery decodes a raw query string once, keeping declaration order.
// Pairs whose escapes are malformed are kept verbatim.
func parseRawQuery(raw string) Query {
	var q Query
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		q.Add(unescapeQuery(key), unescapeQuery(value))
	}
	return q
}

func unescapeQuery(s string) string {
	v, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return v
}
