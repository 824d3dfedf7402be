package cachekey

import (
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Separator sits between the resource path and the encoded params.
const Separator = "::"

// Key identifies a cached resource: the full resource path plus any filter
// params. Two keys are equal iff their paths and params are equal.
type Key struct {
	URL    string
	Params map[string]string
}

// New returns a key for the given resource path.
func New(url string) Key {
	return Key{URL: url}
}

// FromFilters builds a key for url whose params are the non-zero fields of
// the filters struct.
func FromFilters(url string, filters any) Key {
	return New(url).WithParams(Params(filters))
}

// With returns a copy of k carrying name=value. Values that serialize to an
// empty string are dropped.
func (k Key) With(name string, value any) Key {
	s := Serialize(value)
	if name == "" || s == "" {
		return k
	}

	out := k.clone(1)
	out.Params[name] = s
	return out
}

// WithParams returns a copy of k with every non-empty param merged in.
func (k Key) WithParams(params map[string]string) Key {
	if len(params) == 0 {
		return k
	}

	out := k.clone(len(params))
	for name, value := range params {
		if name == "" || value == "" {
			continue
		}
		out.Params[name] = value
	}
	if len(out.Params) == 0 {
		out.Params = nil
	}
	return out
}

// Param returns the value stored under name.
func (k Key) Param(name string) (string, bool) {
	v, ok := k.Params[name]
	return v, ok
}

// HasURL reports whether k addresses the resource path url, regardless of params.
func (k Key) HasURL(url string) bool {
	return k.URL == url
}

// IsZero reports whether k has no resource path.
func (k Key) IsZero() bool {
	return k.URL == "" && len(k.Params) == 0
}

// Equal reports structural equality.
func (k Key) Equal(other Key) bool {
	if k.URL != other.URL || len(k.Params) != len(other.Params) {
		return false
	}
	for name, value := range k.Params {
		if ov, ok := other.Params[name]; !ok || ov != value {
			return false
		}
	}
	return true
}

// String returns the canonical form of the key: the path alone, or the path
// followed by Separator and the query-escaped params sorted by name.
func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.URL
	}

	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(k.URL)
	b.WriteString(Separator)
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(k.Params[name]))
	}
	return b.String()
}

// Hash returns a 64-bit fingerprint of the canonical form.
func (k Key) Hash() uint64 {
	return xxhash.Sum64String(k.String())
}

func (k Key) clone(extra int) Key {
	params := make(map[string]string, len(k.Params)+extra)
	for name, value := range k.Params {
		params[name] = value
	}
	return Key{URL: k.URL, Params: params}
}
