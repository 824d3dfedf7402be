package cachekey

// Optional is either Some(key) or None. None tells callers that the read is
// not yet valid to perform, typically because an identifying param is missing,
// and that nothing must be fetched.
type Optional struct {
	key Key
	ok  bool
}

// Some wraps k.
func Some(k Key) Optional {
	return Optional{key: k, ok: true}
}

// None returns the empty Optional.
func None() Optional {
	return Optional{}
}

// Get returns the wrapped key and whether it is present.
func (o Optional) Get() (Key, bool) {
	return o.key, o.ok
}

// IsNone reports whether no key is present.
func (o Optional) IsNone() bool {
	return !o.ok
}

// MustGet returns the wrapped key and panics on None.
func (o Optional) MustGet() Key {
	if !o.ok {
		panic("cachekey: MustGet called on None")
	}
	return o.key
}

func (o Optional) String() string {
	if !o.ok {
		return "None"
	}
	return "Some(" + o.key.String() + ")"
}
