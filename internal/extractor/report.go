package extractor

import (
	"encoding/json"
	"fmt"
)

// Report is a parsed provider document: the static file report plus the
// per-sandbox behaviour reports. The sandbox list keeps document order
// so that source selection stays deterministic.
type Report struct {
	fileAttrs    map[string]any
	sandboxAttrs map[string]map[string]any
	sandboxOrder []string
}

// Parse decodes the combined report document
// {"files": ..., "files_behaviours": ...}.
func Parse(data []byte) (*Report, error) {
	var doc struct {
		Files struct {
			Data struct {
				Attributes map[string]any `json:"attributes"`
			} `json:"data"`
		} `json:"files"`
		FilesBehaviours struct {
			Data []struct {
				Attributes map[string]any `json:"attributes"`
			} `json:"data"`
		} `json:"files_behaviours"`
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}

	r := &Report{
		fileAttrs:    doc.Files.Data.Attributes,
		sandboxAttrs: make(map[string]map[string]any),
	}
	if r.fileAttrs == nil {
		r.fileAttrs = map[string]any{}
	}

	for _, sb := range doc.FilesBehaviours.Data {
		name, _ := sb.Attributes["sandbox_name"].(string)
		if name == "" {
			continue
		}
		if _, seen := r.sandboxAttrs[name]; !seen {
			r.sandboxOrder = append(r.sandboxOrder, name)
		}
		r.sandboxAttrs[name] = sb.Attributes
	}

	return r, nil
}

// Sandboxes lists the behaviour sources present in the report.
func (r *Report) Sandboxes() []string {
	out := make([]string, len(r.sandboxOrder))
	copy(out, r.sandboxOrder)
	return out
}

func (r *Report) fileAttr(name string) any {
	return r.fileAttrs[name]
}

// behaviour selects the value for a behavioural feature across sandbox
// sources: the source with the most entries wins, ties broken by the
// first source encountered in document order.
func (r *Report) behaviour(attr string) []any {
	var best []any
	for _, name := range r.sandboxOrder {
		v, ok := r.sandboxAttrs[name][attr]
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		if len(list) > len(best) {
			best = list
		}
	}
	return best
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	l, _ := v.([]any)
	return l
}

// field renders a map entry as a string, falling back when it is
// missing or not a string.
func field(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
