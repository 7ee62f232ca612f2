// Package payload defines schema-constrained records that carry scraped data
// from adapters to destinations.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Sentinel errors returned by Payload accessors.
var (
	ErrUndeclaredField = errors.New("undeclared field")
	ErrFieldNotSet     = errors.New("field not set")
)

// Schema is the fixed set of fields a payload kind accepts.
type Schema struct {
	kind   string
	fields []string
	index  map[string]struct{}
}

// NewSchema declares a payload kind with the given fields.
// Duplicate field names are collapsed.
func NewSchema(kind string, fields ...string) *Schema {
	s := &Schema{kind: kind, index: make(map[string]struct{}, len(fields))}
	s.add(fields)
	return s
}

// Extend declares a child kind that accepts every field of s plus fields.
func (s *Schema) Extend(kind string, fields ...string) *Schema {
	child := &Schema{
		kind:   kind,
		fields: slices.Clone(s.fields),
		index:  maps.Clone(s.index),
	}
	child.add(fields)
	return child
}

func (s *Schema) add(fields []string) {
	for _, f := range fields {
		if _, ok := s.index[f]; ok {
			continue
		}
		s.index[f] = struct{}{}
		s.fields = append(s.fields, f)
	}
}

// Kind returns the payload kind name, e.g. "shopitem".
func (s *Schema) Kind() string { return s.kind }

// Fields returns the declared field names, ancestors first.
func (s *Schema) Fields() []string { return slices.Clone(s.fields) }

// Declares reports whether field is part of the schema.
func (s *Schema) Declares(field string) bool {
	_, ok := s.index[field]
	return ok
}

// New returns an empty payload of this kind.
func (s *Schema) New() *Payload {
	return &Payload{schema: s, values: make(map[string]any)}
}

// From returns a payload initialised from values. Any undeclared key fails.
func (s *Schema) From(values map[string]any) (*Payload, error) {
	p := s.New()
	keys := slices.Sorted(maps.Keys(values))
	for _, k := range keys {
		if err := p.Set(k, values[k]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Payload is a mapping restricted to the fields of its Schema.
// It is owned by the pipeline until dispatch; destinations read AsDict.
type Payload struct {
	schema *Schema
	values map[string]any
	order  []string
}

// Schema returns the payload's schema.
func (p *Payload) Schema() *Schema { return p.schema }

// Kind is shorthand for p.Schema().Kind().
func (p *Payload) Kind() string { return p.schema.kind }

// Set stores v under key. Undeclared keys return ErrUndeclaredField.
func (p *Payload) Set(key string, v any) error {
	if !p.schema.Declares(key) {
		return fmt.Errorf("%s does not support field %q: %w", p.schema.kind, key, ErrUndeclaredField)
	}
	if _, ok := p.values[key]; !ok {
		p.order = append(p.order, key)
	}
	p.values[key] = v
	return nil
}

// MustSet is Set for adapters that only write fields they declared themselves.
func (p *Payload) MustSet(key string, v any) {
	if err := p.Set(key, v); err != nil {
		panic(err)
	}
}

// SetIfDeclared stores v only when key belongs to the schema.
// It reports whether the value was stored.
func (p *Payload) SetIfDeclared(key string, v any) bool {
	if !p.schema.Declares(key) {
		return false
	}
	_ = p.Set(key, v)
	return true
}

// Get returns the value stored under key.
// Unset declared keys return ErrFieldNotSet; undeclared keys ErrUndeclaredField.
func (p *Payload) Get(key string) (any, error) {
	v, ok := p.values[key]
	if ok {
		return v, nil
	}
	if !p.schema.Declares(key) {
		return nil, fmt.Errorf("%s does not support field %q: %w", p.schema.kind, key, ErrUndeclaredField)
	}
	return nil, fmt.Errorf("%s field %q: %w", p.schema.kind, key, ErrFieldNotSet)
}

// Lookup returns the value under key and whether it was set.
func (p *Payload) Lookup(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// String returns the value under key when it is a string, or "".
func (p *Payload) String(key string) string {
	s, _ := p.values[key].(string)
	return s
}

// Float returns a numeric value under key as float64.
func (p *Payload) Float(key string) (float64, bool) {
	switch v := p.values[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Delete removes key from the payload.
func (p *Payload) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	p.order = slices.DeleteFunc(p.order, func(k string) bool { return k == key })
}

// Len returns the number of fields that are set.
func (p *Payload) Len() int { return len(p.values) }

// Keys returns set keys in insertion order.
func (p *Payload) Keys() []string { return slices.Clone(p.order) }

// AsDict returns a shallow snapshot of the set fields.
func (p *Payload) AsDict() map[string]any {
	return maps.Clone(p.values)
}

// Copy returns an independent payload with the same schema and values.
func (p *Payload) Copy() *Payload {
	return &Payload{
		schema: p.schema,
		values: maps.Clone(p.values),
		order:  slices.Clone(p.order),
	}
}

// MarshalJSON encodes the AsDict snapshot.
func (p *Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.values)
}
