package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MackHatch/etl-studio/imports/schema"
)

// Validate applies structural checks plus the schema version's rules to a
// canonical row. All violations are collected; the caller routes the row to
// the error set if any exist. Must only be called for rows with zero mapping
// errors.
func Validate(c Canonical, rules schema.RuleSet) []FieldError {
	var errs []FieldError

	// Structural: required fields present with sane values
	if c.Date == nil {
		errs = append(errs, FieldError{Field: schema.FieldDate, Message: "Missing date"})
	}
	if c.Campaign == nil {
		errs = append(errs, FieldError{Field: schema.FieldCampaign, Message: "Missing campaign"})
	}
	if c.Channel == nil {
		errs = append(errs, FieldError{Field: schema.FieldChannel, Message: "Missing channel"})
	}
	if c.Spend == nil {
		errs = append(errs, FieldError{Field: schema.FieldSpend, Message: "Missing spend"})
	} else if c.Spend.IsNegative() {
		errs = append(errs, FieldError{Field: schema.FieldSpend, Message: "Spend must be >= 0"})
	}
	// Negative counters can still arrive here via a negative configured default
	if c.Clicks != nil && *c.Clicks < 0 {
		errs = append(errs, FieldError{Field: schema.FieldClicks, Message: "clicks must be >= 0"})
	}
	if c.Conversions != nil && *c.Conversions < 0 {
		errs = append(errs, FieldError{Field: schema.FieldConversions, Message: "conversions must be >= 0"})
	}

	for _, field := range schema.CanonicalFields {
		for _, rule := range rules[field] {
			errs = append(errs, applyRule(c, field, rule)...)
		}
	}
	return errs
}

func applyRule(c Canonical, field string, rule schema.Rule) []FieldError {
	var errs []FieldError
	switch r := rule.(type) {
	case schema.RangeRule:
		val, ok := numericValue(c, field)
		if !ok {
			return nil
		}
		if r.Min != nil && val < *r.Min {
			errs = append(errs, FieldError{Field: field,
				Message: fmt.Sprintf("%s must be >= %s", field, schema.FormatNumber(*r.Min))})
		}
		if r.Max != nil && val > *r.Max {
			errs = append(errs, FieldError{Field: field,
				Message: fmt.Sprintf("%s must be <= %s", field, schema.FormatNumber(*r.Max))})
		}
	case schema.LengthRule:
		val, ok := stringValue(c, field)
		if !ok {
			return nil
		}
		length := utf8.RuneCountInString(val)
		if r.MinLength != nil && length < *r.MinLength {
			errs = append(errs, FieldError{Field: field,
				Message: fmt.Sprintf("%s must be at least %d characters", field, *r.MinLength)})
		}
		if r.MaxLength != nil && length > *r.MaxLength {
			errs = append(errs, FieldError{Field: field,
				Message: fmt.Sprintf("%s must be at most %d characters", field, *r.MaxLength)})
		}
	case schema.EnumRule:
		val, ok := stringValue(c, field)
		if !ok {
			return nil
		}
		allowed := false
		for _, candidate := range r.Allowed {
			if val == candidate {
				allowed = true
				break
			}
		}
		if !allowed {
			errs = append(errs, FieldError{Field: field,
				Message: fmt.Sprintf("%s must be one of: %s", field, strings.Join(r.Allowed, ", "))})
		}
	case schema.DateBoundRule:
		if c.Date == nil {
			return nil
		}
		if r.Min != nil && c.Date.Before(*r.Min) {
			errs = append(errs, FieldError{Field: field,
				Message: fmt.Sprintf("date must be >= %s", r.MinRaw)})
		}
		if r.Max != nil && c.Date.After(*r.Max) {
			errs = append(errs, FieldError{Field: field,
				Message: fmt.Sprintf("date must be <= %s", r.MaxRaw)})
		}
	}
	return errs
}

func numericValue(c Canonical, field string) (float64, bool) {
	switch field {
	case schema.FieldSpend:
		if c.Spend == nil {
			return 0, false
		}
		return c.Spend.InexactFloat64(), true
	case schema.FieldClicks:
		if c.Clicks == nil {
			return 0, false
		}
		return float64(*c.Clicks), true
	case schema.FieldConversions:
		if c.Conversions == nil {
			return 0, false
		}
		return float64(*c.Conversions), true
	}
	return 0, false
}

func stringValue(c Canonical, field string) (string, bool) {
	switch field {
	case schema.FieldCampaign:
		if c.Campaign == nil {
			return "", false
		}
		return *c.Campaign, true
	case schema.FieldChannel:
		if c.Channel == nil {
			return "", false
		}
		return *c.Channel, true
	}
	return "", false
}
