// Package reconcile merges independently produced field mappings and reports,
// per field, which source supplied the value and whether free-text evidence
// backs it. It does no I/O.
package reconcile

import (
	"fmt"
	"sort"
	"strings"
)

// Candidate is one field mapping, listed in priority order.
type Candidate struct {
	Source string
	Fields map[string]any
}

// Evidence is free text used to corroborate values, such as a raw transcription.
type Evidence struct {
	Source string
	Text   string
}

// Provenance explains where a reconciled value came from.
type Provenance struct {
	Source         string   `json:"source,omitempty"`
	AgreedBy       []string `json:"agreed_by,omitempty"`
	DisagreedBy    []string `json:"disagreed_by,omitempty"`
	Corroborated   bool     `json:"corroborated"`
	EvidenceSource string   `json:"evidence_source,omitempty"`
}

// Result is the reconciled mapping and the provenance of each of its keys.
type Result struct {
	Fields     map[string]any        `json:"fields"`
	Provenance map[string]Provenance `json:"provenance"`
}

// Reconcile merges candidates into one mapping. The first candidate is
// authoritative: a key it leaves null stays null, and later candidates only
// count as agreement or disagreement. Every key of every candidate appears in
// the result.
func Reconcile(candidates []Candidate, evidence []Evidence) Result {
	res := Result{
		Fields:     make(map[string]any),
		Provenance: make(map[string]Provenance),
	}

	normalized := make([]string, len(evidence))
	for i, e := range evidence {
		normalized[i] = normalize(e.Text)
	}

	for _, key := range unionKeys(candidates) {
		var prov Provenance
		var value any
		winner := -1

		for i, c := range candidates {
			v, ok := c.Fields[key]
			if !ok || isNull(v) {
				continue
			}
			if i > 0 && winner == -1 {
				break
			}
			if winner == -1 {
				winner, value = i, v
				prov.Source = c.Source
				continue
			}
			if sameValue(value, v) {
				prov.AgreedBy = append(prov.AgreedBy, c.Source)
			} else {
				prov.DisagreedBy = append(prov.DisagreedBy, c.Source)
			}
		}

		if winner >= 0 {
			for i, e := range evidence {
				if corroborates(normalized[i], value) {
					prov.Corroborated = true
					prov.EvidenceSource = e.Source
					break
				}
			}
		}

		res.Fields[key] = value
		res.Provenance[key] = prov
	}
	return res
}

// Corroborated returns the keys whose values are backed by evidence, sorted.
func (r Result) Corroborated() []string {
	var keys []string
	for k, p := range r.Provenance {
		if p.Corroborated {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func unionKeys(candidates []Candidate) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, c := range candidates {
		for k := range c.Fields {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func isNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		for _, child := range t {
			if !isNull(child) {
				return false
			}
		}
		return true
	}
	return false
}

func sameValue(a, b any) bool {
	la, lb := leaves(a), leaves(b)
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if normalize(la[i]) != normalize(lb[i]) {
			return false
		}
	}
	return true
}

// corroborates reports whether every non-empty leaf of v occurs in text.
func corroborates(text string, v any) bool {
	ls := leaves(v)
	if len(ls) == 0 {
		return false
	}
	for _, l := range ls {
		n := normalize(l)
		if n == "" || !strings.Contains(text, n) {
			return false
		}
	}
	return true
}

// leaves flattens v to its non-null scalar values, ordered by key for objects.
func leaves(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, leaves(t[k])...)
		}
		return out
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, leaves(item)...)
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

// normalize upper-cases s and keeps only letters, digits and the MRZ filler.
func normalize(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '<' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
