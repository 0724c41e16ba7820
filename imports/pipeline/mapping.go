package pipeline

import "strings"

// HeaderLookup resolves mapped source columns against the CSV header
// case-insensitively. An exact header match wins over a case-folded one.
type HeaderLookup struct {
	exact  map[string]bool
	folded map[string]string
}

func NewHeaderLookup(headers []string) *HeaderLookup {
	lookup := &HeaderLookup{
		exact:  make(map[string]bool, len(headers)),
		folded: make(map[string]string, len(headers)),
	}
	for _, h := range headers {
		lookup.exact[h] = true
		lookup.folded[strings.ToLower(strings.TrimSpace(h))] = h
	}
	return lookup
}

// Resolve returns the raw value for a mapped source column, or nil when the
// column is missing or holds only whitespace. Values come back trimmed.
func (l *HeaderLookup) Resolve(row RawRow, source string) *string {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil
	}
	key := source
	if !l.exact[key] {
		if folded, ok := l.folded[strings.ToLower(key)]; ok {
			key = folded
		}
	}
	val, ok := row[key]
	if !ok {
		return nil
	}
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
