package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// nullMarkers are string values models use to say "no value". "NONE" is not
// one of them: licenses print it for endorsements and restrictions.
var nullMarkers = map[string]bool{
	"":              true,
	"null":          true,
	"n/a":           true,
	"not available": true,
	"not visible":   true,
	"unknown":       true,
}

// CoercionError lists every reason a mapping could not be shaped to a schema.
type CoercionError struct {
	Schema   string
	Problems []string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("%s schema coercion failed: %s", e.Schema, strings.Join(e.Problems, "; "))
}

// Coerced is a mapping shaped to a schema.
type Coerced struct {
	// Fields holds every schema field, null when there was no evidence, plus
	// any extra keys the input carried.
	Fields map[string]any
	// Warnings name required fields that ended up null.
	Warnings []string
}

// Coerce shapes raw to the schema. Keys are matched by name, alias or
// normalized spelling; unmatched input keys are kept unchanged. String values
// are trimmed and placeholder values such as "N/A" become null. An MRZ given
// as a two-line string or two-element array is reshaped into {line1, line2}.
// raw is never modified.
func (s *Schema) Coerce(raw map[string]any) (*Coerced, error) {
	out := make(map[string]any, len(raw)+len(s.Fields))
	var problems []string

	consumed := make(map[string]bool, len(raw))
	for _, f := range s.Fields {
		key, v, ok := lookup(raw, f)
		if ok {
			consumed[key] = true
		}
		cv, err := coerceValue(f, v)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		out[f.Name] = cv
	}

	for k, v := range raw {
		if consumed[k] {
			continue
		}
		if _, clash := out[k]; clash {
			continue
		}
		out[k] = v
	}

	if len(problems) == 0 {
		if err := s.Validate(out); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return nil, &CoercionError{Schema: s.Name, Problems: problems}
	}

	var warnings []string
	for _, name := range s.RequiredFields() {
		if out[name] == nil {
			warnings = append(warnings, fmt.Sprintf("required field %s has no value", name))
		}
	}

	return &Coerced{Fields: out, Warnings: warnings}, nil
}

// Canonicalize renames the keys of raw that match a schema field to the
// field's name, using the same matching as Coerce. Values are left untouched
// and unmatched keys are kept. raw is never modified.
func (s *Schema) Canonicalize(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	out := make(map[string]any, len(raw))
	consumed := make(map[string]bool, len(raw))
	for _, f := range s.Fields {
		if key, v, ok := lookup(raw, f); ok {
			consumed[key] = true
			out[f.Name] = v
		}
	}
	for k, v := range raw {
		if consumed[k] {
			continue
		}
		if _, clash := out[k]; !clash {
			out[k] = v
		}
	}
	return out
}

// lookup finds the input key for f: exact name first, then aliases, then any
// key whose normalized spelling matches.
func lookup(raw map[string]any, f Field) (string, any, bool) {
	if v, ok := raw[f.Name]; ok {
		return f.Name, v, true
	}
	for _, alias := range f.Aliases {
		if v, ok := raw[alias]; ok {
			return alias, v, true
		}
	}

	// deterministic when several spellings collide
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		n := NormalizeKey(k)
		if n == f.Name {
			return k, raw[k], true
		}
		for _, alias := range f.Aliases {
			if n == alias {
				return k, raw[k], true
			}
		}
	}
	return "", nil, false
}

func coerceValue(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case KindObject:
		return coerceObject(f, v)
	case KindMRZ:
		return coerceMRZ(f, v)
	default:
		return coerceString(f, v)
	}
}

func coerceString(f Field, v any) (any, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if nullMarkers[strings.ToLower(s)] {
			return nil, nil
		}
		return s, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case []any:
		// endorsements and restrictions sometimes come back as lists of codes
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %s: expected string, got list of %T", f.Name, item)
			}
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return nil, nil
		}
		return strings.Join(parts, ", "), nil
	default:
		return nil, fmt.Errorf("field %s: expected string, got %s", f.Name, jsonType(v))
	}
}

func coerceObject(f Field, v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %s: expected object, got %s", f.Name, jsonType(v))
	}

	out := make(map[string]any, len(m)+len(f.Children))
	consumed := make(map[string]bool, len(m))
	var problems []string
	empty := true
	for _, child := range f.Children {
		key, cv, found := lookup(m, child)
		if found {
			consumed[key] = true
		}
		c, err := coerceValue(child, cv)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if c != nil {
			empty = false
		}
		out[child.Name] = c
	}
	for k, cv := range m {
		if !consumed[k] {
			if _, clash := out[k]; !clash {
				out[k] = cv
				empty = false
			}
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("field %s: %s", f.Name, strings.Join(problems, ", "))
	}
	if empty {
		return nil, nil
	}
	return out, nil
}

func coerceMRZ(f Field, v any) (any, error) {
	var lines []string
	switch t := v.(type) {
	case map[string]any:
		l1, ok1 := t["line1"].(string)
		l2, ok2 := t["line2"].(string)
		if t["line1"] == nil && t["line2"] == nil {
			return nil, nil
		}
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("field %s: line1 and line2 must both be strings", f.Name)
		}
		lines = []string{l1, l2}
	case string:
		marker := strings.ToLower(strings.TrimSpace(t))
		if nullMarkers[marker] || marker == "none" {
			return nil, nil
		}
		lines = splitLines(t)
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %s: expected list of strings, got %s", f.Name, jsonType(item))
			}
			lines = append(lines, s)
		}
	default:
		return nil, fmt.Errorf("field %s: expected object or two-line string, got %s", f.Name, jsonType(v))
	}

	if len(lines) != 2 {
		return nil, fmt.Errorf("field %s: expected 2 lines, got %d", f.Name, len(lines))
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
		if !ValidMRZLine(lines[i]) {
			return nil, fmt.Errorf("field %s: line%d must be %d characters of A-Z, 0-9 or '<' (got %d characters)",
				f.Name, i+1, MRZLineLength, len(lines[i]))
		}
	}
	return map[string]any{"line1": lines[0], "line2": lines[1]}, nil
}

// splitLines splits on real or escaped newlines and drops blank lines.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
