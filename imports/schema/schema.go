package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Canonical field names every dataset maps onto.
const (
	FieldDate        = "date"
	FieldCampaign    = "campaign"
	FieldChannel     = "channel"
	FieldSpend       = "spend"
	FieldClicks      = "clicks"
	FieldConversions = "conversions"
)

// CanonicalFields is the processing order for a row.
var CanonicalFields = []string{
	FieldDate, FieldCampaign, FieldChannel, FieldSpend, FieldClicks, FieldConversions,
}

var requiredFields = map[string]bool{
	FieldDate:     true,
	FieldCampaign: true,
	FieldChannel:  true,
	FieldSpend:    true,
}

func IsRequired(field string) bool {
	return requiredFields[field]
}

func IsNumeric(field string) bool {
	return field == FieldSpend || field == FieldClicks || field == FieldConversions
}

// FieldMapping binds one canonical field to a source CSV column.
type FieldMapping struct {
	Source   string      `json:"source"`
	Format   string      `json:"format,omitempty"`
	Currency bool        `json:"currency,omitempty"`
	Default  interface{} `json:"default,omitempty"`
}

// DefaultInt coerces the configured default for clicks/conversions,
// falling back to 0 when it is not an integer.
func (m FieldMapping) DefaultInt() int {
	switch v := m.Default.(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Mapping is the canonical-field -> column binding document of a schema version.
type Mapping map[string]FieldMapping

func ParseMapping(raw []byte) (Mapping, error) {
	if len(raw) == 0 {
		return Mapping{}, nil
	}
	var m Mapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid mapping document: %w", err)
	}
	return m, nil
}

// Rule is one user-defined validation constraint. Rules are parsed once per
// schema version and applied per row by the validator.
type Rule interface {
	// Describe returns the field the rule guards, for logging.
	Describe() string
}

// RangeRule bounds a numeric field (spend, clicks, conversions).
type RangeRule struct {
	Field string
	Min   *float64
	Max   *float64
}

func (r RangeRule) Describe() string { return r.Field + " range" }

// LengthRule bounds a string field's character count.
type LengthRule struct {
	Field     string
	MinLength *int
	MaxLength *int
}

func (r LengthRule) Describe() string { return r.Field + " length" }

// EnumRule restricts a string field to an allowed set.
type EnumRule struct {
	Field   string
	Allowed []string
}

func (r EnumRule) Describe() string { return r.Field + " allowed values" }

// DateBoundRule bounds the date field. The Raw strings are kept for error
// messages so they match the configured bound exactly.
type DateBoundRule struct {
	Field  string
	Min    *time.Time
	MinRaw string
	Max    *time.Time
	MaxRaw string
}

func (r DateBoundRule) Describe() string { return r.Field + " date bounds" }

// RuleSet holds the parsed rules per canonical field.
type RuleSet map[string][]Rule

// ParseRules interprets a rules document into typed rules. Unknown fields and
// malformed bound values are skipped rather than failing the run; a bad rule
// configuration must never turn into per-row errors.
func ParseRules(raw []byte) (RuleSet, error) {
	set := RuleSet{}
	if len(raw) == 0 {
		return set, nil
	}
	var doc map[string]map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid rules document: %w", err)
	}
	for field, cfg := range doc {
		switch field {
		case FieldSpend, FieldClicks, FieldConversions:
			rule := RangeRule{Field: field}
			if v, ok := asFloat(cfg["min"]); ok {
				rule.Min = &v
			}
			if v, ok := asFloat(cfg["max"]); ok {
				rule.Max = &v
			}
			if rule.Min != nil || rule.Max != nil {
				set[field] = append(set[field], rule)
			}
		case FieldCampaign, FieldChannel:
			length := LengthRule{Field: field}
			if v, ok := asInt(cfg["minLength"]); ok {
				length.MinLength = &v
			}
			if v, ok := asInt(cfg["maxLength"]); ok {
				length.MaxLength = &v
			}
			if length.MinLength != nil || length.MaxLength != nil {
				set[field] = append(set[field], length)
			}
			if allowed, ok := asStringSlice(cfg["allowed"]); ok {
				set[field] = append(set[field], EnumRule{Field: field, Allowed: allowed})
			}
		case FieldDate:
			bound := DateBoundRule{Field: field}
			if s, ok := cfg["minDate"].(string); ok {
				if t, err := time.Parse("2006-01-02", s); err == nil {
					bound.Min = &t
					bound.MinRaw = s
				}
			}
			if s, ok := cfg["maxDate"].(string); ok {
				if t, err := time.Parse("2006-01-02", s); err == nil {
					bound.Max = &t
					bound.MaxRaw = s
				}
			}
			if bound.Min != nil || bound.Max != nil {
				set[field] = append(set[field], bound)
			}
		}
	}
	return set, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asInt(v interface{}) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func asStringSlice(v interface{}) ([]string, bool) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// FormatNumber renders a rule bound the way it was configured, so
// "min": 100 reads as 100 and "min": 99.5 as 99.5.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
