package parser

import (
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/cyra/edge-events/internal/normalize"
)

type jsonField struct {
	value []byte
	typ   jsonparser.ValueType
}

// jsonFields is a flattened view of a one-line JSON object. Nested objects
// are reachable by dotted keys ("request.remote_ip").
type jsonFields map[string]jsonField

const jsonMaxDepth = 3

// looksLikeJSON reports whether a line should be handled by a JSON grammar.
func looksLikeJSON(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "{")
}

func parseJSONObject(s string) (jsonFields, error) {
	fields := make(jsonFields)
	if err := fields.collect([]byte(strings.TrimSpace(s)), "", 0); err != nil {
		return nil, ErrInvalidJSON
	}
	return fields, nil
}

func (f jsonFields) collect(data []byte, prefix string, depth int) error {
	return jsonparser.ObjectEach(data, func(key, value []byte, typ jsonparser.ValueType, _ int) error {
		k := prefix + string(key)
		if _, seen := f[k]; !seen {
			f[k] = jsonField{value: value, typ: typ}
		}
		if typ == jsonparser.Object && depth < jsonMaxDepth {
			return f.collect(value, k+".", depth+1)
		}
		return nil
	})
}

// str returns the first alias holding a non-empty scalar, as a string.
func (f jsonFields) str(aliases ...string) string {
	for _, a := range aliases {
		v, ok := f[a]
		if !ok {
			continue
		}
		switch v.typ {
		case jsonparser.String:
			s, err := jsonparser.ParseString(v.value)
			if err == nil && s != "" && s != "-" {
				return s
			}
		case jsonparser.Number, jsonparser.Boolean:
			return string(v.value)
		case jsonparser.Array:
			// header maps hold lists; the first string wins
			first := ""
			_, _ = jsonparser.ArrayEach(v.value, func(item []byte, typ jsonparser.ValueType, _ int, _ error) {
				if first == "" && typ == jsonparser.String {
					first, _ = jsonparser.ParseString(item)
				}
			})
			if first != "" {
				return first
			}
		}
	}
	return ""
}

// num returns the first alias holding an integer or a numeric string.
func (f jsonFields) num(aliases ...string) *int {
	for _, a := range aliases {
		v, ok := f[a]
		if !ok {
			continue
		}
		switch v.typ {
		case jsonparser.Number:
			if n, err := jsonparser.ParseInt(v.value); err == nil {
				i := int(n)
				return &i
			}
			if fl, err := strconv.ParseFloat(string(v.value), 64); err == nil {
				i := int(fl)
				return &i
			}
		case jsonparser.String:
			s, _ := jsonparser.ParseString(v.value)
			if n, ok := normalize.ParseInt(s); ok {
				return &n
			}
		}
	}
	return nil
}

// timestamp normalizes the first alias present. Numbers are read as epochs.
func (f jsonFields) timestamp(clock *normalize.Normalizer, aliases ...string) string {
	for _, a := range aliases {
		v, ok := f[a]
		if !ok {
			continue
		}
		switch v.typ {
		case jsonparser.Number:
			if ts, ok := clock.Epoch(string(v.value)); ok {
				return ts
			}
		case jsonparser.String:
			s, _ := jsonparser.ParseString(v.value)
			if s != "" {
				return clock.Normalize(s)
			}
		}
	}
	return clock.Now()
}
