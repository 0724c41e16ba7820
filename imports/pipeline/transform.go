package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MackHatch/etl-studio/imports/schema"

	"github.com/shopspring/decimal"
)

const (
	layoutISO = "2006-01-02"
	layoutUS  = "01/02/2006"
)

var currencyChars = regexp.MustCompile(`[$,\s]`)

// Transform builds the canonical row from a raw CSV row using the dataset
// mapping. It returns the coerced values plus the mapping errors in field
// order. A row with any mapping errors skips validation entirely: the coerced
// values are partial, so rule evaluation on them would be misleading.
func Transform(row RawRow, mapping schema.Mapping, lookup *HeaderLookup) (Canonical, []FieldError) {
	var canonical Canonical
	var errs []FieldError

	for _, field := range schema.CanonicalFields {
		cfg := mapping[field]
		source := strings.TrimSpace(cfg.Source)

		var raw *string
		if source != "" {
			raw = lookup.Resolve(row, source)
		}

		// Defaults only apply to the optional counters; other fields stay
		// absent and fall through to the required-field error below.
		if raw == nil && cfg.Default != nil && (field == schema.FieldClicks || field == schema.FieldConversions) {
			setInt(&canonical, field, cfg.DefaultInt())
			continue
		}

		if raw == nil {
			if schema.IsRequired(field) {
				name := source
				if name == "" {
					name = field
				}
				errs = append(errs, FieldError{
					Field:   field,
					Message: fmt.Sprintf("Missing or empty value for mapped column '%s'", name),
				})
			} else {
				setInt(&canonical, field, 0)
			}
			continue
		}

		switch field {
		case schema.FieldDate:
			if t, ok := parseDate(*raw, cfg.Format); ok {
				canonical.Date = &t
			} else {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("Invalid date: %q", *raw)})
			}
		case schema.FieldCampaign:
			canonical.Campaign = raw
		case schema.FieldChannel:
			canonical.Channel = raw
		case schema.FieldSpend:
			s := *raw
			if cfg.Currency {
				s = currencyChars.ReplaceAllString(s, "")
			}
			v, err := decimal.NewFromString(s)
			if err != nil {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("Invalid number for spend: %q", *raw)})
			} else if v.IsNegative() {
				errs = append(errs, FieldError{Field: field, Message: "Spend must be >= 0"})
			} else {
				canonical.Spend = &v
			}
		case schema.FieldClicks, schema.FieldConversions:
			v, err := decimal.NewFromString(strings.ReplaceAll(*raw, ",", ""))
			if err != nil {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("Invalid integer for %s: %q", field, *raw)})
			} else if v.IsNegative() {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be >= 0", field)})
			} else {
				n := int(v.IntPart())
				setInt(&canonical, field, n)
			}
		}
	}
	return canonical, errs
}

// parseDate tries the format the hint asks for first, then the other one.
// An invalid calendar date fails both layouts.
func parseDate(raw, formatHint string) (time.Time, bool) {
	hint := strings.ToUpper(strings.TrimSpace(formatHint))
	primary, secondary := layoutISO, layoutUS
	if strings.Contains(hint, "MM/DD") || strings.Contains(hint, "MM-DD") {
		primary, secondary = layoutUS, layoutISO
	}
	if t, err := time.Parse(primary, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(secondary, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// setInt assigns one of the optional counter fields. The required string and
// date fields never take defaults, so they are not handled here.
func setInt(c *Canonical, field string, v int) {
	if field == schema.FieldClicks {
		c.Clicks = &v
	} else if field == schema.FieldConversions {
		c.Conversions = &v
	}
}
