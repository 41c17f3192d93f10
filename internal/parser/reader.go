package parser

import (
	"errors"
	"fmt"
	"time"
)

// field maps one wire key onto its canonical name. Most Compass keys are
// camelCase; a few ("title", "start", ...) are identical in both forms.
type field struct {
	wire, name string
}

type schema struct {
	names   map[string]bool
	aliases map[string]string
}

func newSchema(fields ...field) *schema {
	s := &schema{names: make(map[string]bool), aliases: make(map[string]string)}
	for _, f := range fields {
		s.names[f.name] = true
		if f.wire != f.name {
			s.aliases[f.wire] = f.name
		}
	}
	return s
}

// normalize rewrites known wire keys to their canonical names. When both
// spellings are present the wire value wins. Unknown keys are dropped.
func (s *schema) normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if s.names[k] {
			out[k] = v
		}
	}
	for k, v := range raw {
		if name, ok := s.aliases[k]; ok {
			out[name] = v
		}
	}
	return out
}

// reader pulls typed values out of a normalized record and accumulates
// field failures instead of stopping at the first one.
type reader struct {
	fields map[string]any
	prefix string
	loc    *time.Location
	errs   *[]FieldError
}

func (r *reader) fail(key string, kind FieldErrorKind, msg string) {
	*r.errs = append(*r.errs, FieldError{Field: r.prefix + key, Kind: kind, Msg: msg})
}

func (r *reader) failErr(key string, err error) {
	var ce *coerceError
	if errors.As(err, &ce) {
		r.fail(key, ce.kind, ce.msg)
		return
	}
	r.fail(key, KindValue, err.Error())
}

func (r *reader) child(path string, fields map[string]any) *reader {
	return &reader{fields: fields, prefix: r.prefix + path + ".", loc: r.loc, errs: r.errs}
}

func req[V any](r *reader, key string, conv func(any) (V, error)) V {
	var zero V
	v, ok := r.fields[key]
	if !ok {
		r.fail(key, KindMissing, "field required")
		return zero
	}
	if v == nil {
		r.fail(key, KindType, "must not be null")
		return zero
	}
	out, err := conv(v)
	if err != nil {
		r.failErr(key, err)
		return zero
	}
	return out
}

func opt[V any](r *reader, key string, conv func(any) (V, error)) *V {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return nil
	}
	out, err := conv(v)
	if err != nil {
		r.failErr(key, err)
		return nil
	}
	return &out
}

func (r *reader) str(key string) string          { return req(r, key, toString) }
func (r *reader) optStr(key string) *string      { return opt(r, key, toString) }
func (r *reader) integer(key string) int         { return req(r, key, toInt) }
func (r *reader) optInt(key string) *int         { return opt(r, key, toInt) }
func (r *reader) boolean(key string) bool        { return req(r, key, toBool) }
func (r *reader) timestamp(key string) time.Time { return req(r, key, r.toTime) }
func (r *reader) optTime(key string) *time.Time  { return opt(r, key, r.toTime) }

func (r *reader) toTime(v any) (time.Time, error) { return ParseTime(v, r.loc) }

// strOr returns def when key is absent or null.
func (r *reader) strOr(key, def string) string {
	if p := r.optStr(key); p != nil {
		return *p
	}
	return def
}

// list returns an empty, non-nil slice when key is absent or null.
func (r *reader) list(key string) []any {
	if p := opt(r, key, toList); p != nil {
		return *p
	}
	return []any{}
}

// objects decodes an optional list of nested records with their own schema.
func objects[T any](r *reader, key string, s *schema, decode func(*reader) T) []T {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return nil
	}
	items, err := toList(v)
	if err != nil {
		r.failErr(key, err)
		return nil
	}
	out := make([]T, 0, len(items))
	for i, it := range items {
		path := fmt.Sprintf("%s[%d]", key, i)
		m, ok := it.(map[string]any)
		if !ok {
			r.fail(path, KindType, "expected object, got "+kindOf(it))
			continue
		}
		out = append(out, decode(r.child(path, s.normalize(m))))
	}
	return out
}
