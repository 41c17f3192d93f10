// Package parser turns raw Compass records into validated model values.
//
// Input keys may use the Compass wire spelling ("activityId", "__type") or
// the canonical snake_case spelling ("activity_id", "type"); unknown keys
// are ignored. All functions are pure and safe for concurrent use.
package parser

import (
	"fmt"

	"bellweaver/internal/model"
)

// Result mirrors the shape of the input given to Parse: One is set for a
// single object, List for a list.
type Result[T any] struct {
	One    *T
	List   []T
	IsList bool
}

// Parse validates raw, which must be a single object or a list of objects,
// and fails on the first invalid record. No partial result is returned on
// failure.
func Parse[T any](m Model[T], raw any) (Result[T], error) {
	if obj, ok := raw.(map[string]any); ok {
		v, err := ParseOne(m, obj)
		if err != nil {
			return Result[T]{}, err
		}
		return Result[T]{One: &v}, nil
	}
	items, err := asItems(raw)
	if err != nil {
		return Result[T]{}, err
	}
	out, err := parseList(m, items)
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{List: out, IsList: true}, nil
}

// ParseOne validates a single object.
func ParseOne[T any](m Model[T], raw model.Raw) (T, error) {
	v, perr := m.validate(raw, -1)
	if perr != nil {
		var zero T
		return zero, perr
	}
	return v, nil
}

// ParseList validates every record and stops at the first invalid one.
func ParseList[T any](m Model[T], raw []model.Raw) ([]T, error) {
	items := make([]any, len(raw))
	for i := range raw {
		items[i] = raw[i]
	}
	return parseList(m, items)
}

func parseList[T any](m Model[T], items []any) ([]T, error) {
	out := make([]T, 0, len(items))
	for i, it := range items {
		v, perr := m.validate(it, i)
		if perr != nil {
			return nil, perr
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseSafe validates each record of raw independently. valid holds every
// record that passed, in input order, and failed holds one error per record
// that did not. skipInvalid does not change the result: both modes parse
// every valid record and collect every failure. Callers wanting an
// all-or-nothing batch check len(failed).
//
// The returned error is only non-nil for caller misuse, i.e. when raw is
// not a list.
func ParseSafe[T any](m Model[T], raw any, skipInvalid bool) (valid []T, failed []*ParseError, err error) {
	items, err := asItems(raw)
	if err != nil {
		return nil, nil, err
	}
	valid = make([]T, 0, len(items))
	for i, it := range items {
		v, perr := m.validate(it, i)
		if perr != nil {
			failed = append(failed, perr)
			continue
		}
		valid = append(valid, v)
	}
	return valid, failed, nil
}

func asItems(raw any) ([]any, error) {
	switch l := raw.(type) {
	case []any:
		return l, nil
	case []map[string]any:
		items := make([]any, len(l))
		for i := range l {
			items[i] = l[i]
		}
		return items, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrMisuse, raw)
	}
}

func (m Model[T]) validate(raw any, index int) (T, *ParseError) {
	var zero T
	obj, ok := raw.(map[string]any)
	if !ok {
		return zero, &ParseError{
			Model:  m.Name,
			Index:  index,
			Raw:    raw,
			Fields: []FieldError{{Kind: KindType, Msg: "expected object, got " + kindOf(raw)}},
		}
	}

	var errs []FieldError
	r := &reader{fields: m.schema.normalize(obj), loc: m.loc, errs: &errs}
	v := m.decode(r)
	if len(errs) > 0 {
		return zero, &ParseError{Model: m.Name, Index: index, Raw: raw, Fields: errs}
	}
	return v, nil
}
