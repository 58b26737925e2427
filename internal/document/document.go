package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// VersionField is the JSON key holding the document version.
const VersionField = "version"

var (
	// ErrCorrupt reports a document that is not a JSON object or does not fit
	// the current model after migration.
	ErrCorrupt = errors.New("corrupt document")
	// ErrTooOld reports a document older than the oldest migratable version.
	ErrTooOld = errors.New("document too old")
	// ErrTooNew reports a document written by a newer program.
	ErrTooNew = errors.New("document too new")
)

// Fields is the decoded top level of a document, before it is bound to the
// current model.
type Fields map[string]json.RawMessage

// Migration upgrades a document from version From to From+1.
type Migration struct {
	From  int
	Name  string
	Apply func(Fields) error
}

// Result describes how a document was read.
type Result struct {
	Version  int
	Upgraded bool
	Applied  []string
}

// Codec reads and writes one kind of versioned JSON document.
type Codec[T any] struct {
	kind       string
	current    int
	minimum    int
	migrations map[int]Migration
}

// NewCodec returns a codec writing version current and reading anything from
// minimum upward. A document without a version field counts as minimum.
// Every version in [minimum, current) needs a migration.
func NewCodec[T any](kind string, current, minimum int, migrations ...Migration) (*Codec[T], error) {
	if minimum < 1 || current < minimum {
		return nil, fmt.Errorf("%s codec: invalid versions %d..%d", kind, minimum, current)
	}
	c := &Codec[T]{kind: kind, current: current, minimum: minimum, migrations: make(map[int]Migration)}
	for _, m := range migrations {
		if m.Apply == nil {
			return nil, fmt.Errorf("%s codec: migration from %d has no body", kind, m.From)
		}
		if _, dup := c.migrations[m.From]; dup {
			return nil, fmt.Errorf("%s codec: duplicate migration from %d", kind, m.From)
		}
		c.migrations[m.From] = m
	}
	for v := minimum; v < current; v++ {
		if _, ok := c.migrations[v]; !ok {
			return nil, fmt.Errorf("%s codec: missing migration from %d", kind, v)
		}
	}
	return c, nil
}

// MustCodec is NewCodec for package-level codecs.
func MustCodec[T any](kind string, current, minimum int, migrations ...Migration) *Codec[T] {
	c, err := NewCodec[T](kind, current, minimum, migrations...)
	if err != nil {
		panic(err)
	}
	return c
}

// Current returns the version written by Encode.
func (c *Codec[T]) Current() int { return c.current }

// Encode writes v as an indented JSON object stamped with the current version.
func (c *Codec[T]) Encode(v *T) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.kind, err)
	}
	var fields Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: not an object: %w", c.kind, err)
	}
	version, _ := json.Marshal(c.current)
	fields[VersionField] = version
	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.kind, err)
	}
	return out, nil
}

// Decode reads a document of any supported version into the current model.
func (c *Codec[T]) Decode(data []byte) (T, Result, error) {
	var zero T
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		if err == nil {
			err = errors.New("null document")
		}
		return zero, Result{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, c.kind, err)
	}

	version := c.minimum
	if raw, ok := fields[VersionField]; ok {
		if err := json.Unmarshal(raw, &version); err != nil {
			return zero, Result{}, fmt.Errorf("%w: %s: version: %v", ErrCorrupt, c.kind, err)
		}
	}
	result := Result{Version: version}
	switch {
	case version < c.minimum:
		return zero, result, fmt.Errorf("%w: %s version %d, oldest supported %d", ErrTooOld, c.kind, version, c.minimum)
	case version > c.current:
		return zero, result, fmt.Errorf("%w: %s version %d, newest supported %d", ErrTooNew, c.kind, version, c.current)
	}

	for v := version; v < c.current; v++ {
		m := c.migrations[v]
		if err := m.Apply(fields); err != nil {
			return zero, result, fmt.Errorf("%w: %s migration %q: %v", ErrCorrupt, c.kind, m.Name, err)
		}
		result.Applied = append(result.Applied, m.Name)
		result.Upgraded = true
	}
	delete(fields, VersionField)

	merged, err := json.Marshal(fields)
	if err != nil {
		return zero, result, fmt.Errorf("%w: %s: %v", ErrCorrupt, c.kind, err)
	}
	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return zero, result, fmt.Errorf("%w: %s: %v", ErrCorrupt, c.kind, err)
	}
	return out, result, nil
}

// Rename moves a field to a new key, leaving an existing target untouched.
func (f Fields) Rename(from, to string) {
	raw, ok := f[from]
	if !ok {
		return
	}
	delete(f, from)
	if _, exists := f[to]; !exists {
		f[to] = raw
	}
}

// Drop removes fields.
func (f Fields) Drop(keys ...string) {
	for _, k := range keys {
		delete(f, k)
	}
}

// Nest moves keys into the object stored under parent, creating it if needed.
func (f Fields) Nest(parent string, keys ...string) error {
	inner := Fields{}
	if raw, ok := f[parent]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("field %s: %w", parent, err)
		}
	}
	moved := false
	for _, k := range keys {
		if raw, ok := f[k]; ok {
			inner[k] = raw
			delete(f, k)
			moved = true
		}
	}
	if !moved {
		return nil
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return err
	}
	f[parent] = raw
	return nil
}

// Keys returns the sorted field names.
func (f Fields) Keys() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
