package curi

// Well-known attribute keys.
const (
	// KeyHeritable holds the registry of keys copied into descendants.
	KeyHeritable = "heritable-keys"
	// KeyAnnotations holds the comma-joined annotation string.
	KeyAnnotations = "annotations"
	// KeyHTTPTransaction holds the response headers of an HTTP fetch.
	KeyHTTPTransaction = "http-transaction"
	// KeyLocalizedErrors holds errors attributed to a processing stage.
	KeyLocalizedErrors = "localized-errors"
	// KeyPrerequisiteURI holds the URI that must be fetched first.
	KeyPrerequisiteURI = "prerequisite-uri"
	// KeyPreviousDigest holds the content digest seen on the last visit.
	KeyPreviousDigest = "previous-content-digest"
)

// Attrs is an insertion-ordered attribute bag. The zero value is ready to
// use. Attrs is not safe for concurrent use: a record and its bag belong to
// one processing context at a time.
type Attrs struct {
	keys   []string
	values map[string]any
}

// NewAttrs returns an empty bag.
func NewAttrs() *Attrs {
	return &Attrs{values: make(map[string]any)}
}

// Put stores v under key, keeping the key's original position if present.
func (a *Attrs) Put(key string, v any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = v
}

// Get returns the raw value stored under key.
func (a *Attrs) Get(key string) (any, bool) {
	if a == nil || a.values == nil {
		return nil, false
	}
	v, ok := a.values[key]
	return v, ok
}

// Contains reports whether key is present.
func (a *Attrs) Contains(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Remove deletes key. It is a no-op for absent keys.
func (a *Attrs) Remove(key string) {
	if a == nil || a.values == nil {
		return
	}
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i:i], a.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (a *Attrs) Keys() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Len returns the number of stored keys.
func (a *Attrs) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// String returns the value under key if it is a string.
func (a *Attrs) String(key string) (string, bool) {
	v, ok := a.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int returns the value under key if it is an int.
func (a *Attrs) Int(key string) (int, bool) {
	v, ok := a.Get(key)
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

// Int64 returns the value under key widened to int64 when it is any
// signed integer type.
func (a *Attrs) Int64(key string) (int64, bool) {
	v, ok := a.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

// Bool returns the value under key if it is a bool.
func (a *Attrs) Bool(key string) (bool, bool) {
	v, ok := a.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Object returns the value under key as T.
func Object[T any](a *Attrs, key string) (T, bool) {
	var zero T
	v, ok := a.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// CopyKeysFrom copies the listed keys present in src into a. Values are
// shared, not cloned.
func (a *Attrs) CopyKeysFrom(keys []string, src *Attrs) {
	for _, k := range keys {
		if v, ok := src.Get(k); ok {
			a.Put(k, v)
		}
	}
}
