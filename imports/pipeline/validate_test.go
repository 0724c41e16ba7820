package pipeline

import (
	"testing"
	"time"

	"github.com/MackHatch/etl-studio/imports/schema"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCanonical() Canonical {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	campaign := "Spring Sale"
	channel := "google"
	spend := decimal.RequireFromString("100.00")
	clicks := 10
	conversions := 2
	return Canonical{
		Date:        &date,
		Campaign:    &campaign,
		Channel:     &channel,
		Spend:       &spend,
		Clicks:      &clicks,
		Conversions: &conversions,
	}
}

func mustRules(t *testing.T, doc string) schema.RuleSet {
	t.Helper()
	rules, err := schema.ParseRules([]byte(doc))
	require.NoError(t, err)
	return rules
}

func TestValidateCleanRow(t *testing.T) {
	errs := Validate(validCanonical(), schema.RuleSet{})
	assert.Empty(t, errs)
}

func TestValidateRangeBoundsAreInclusive(t *testing.T) {
	rules := mustRules(t, `{"spend": {"min": 100}}`)

	c := validCanonical()
	low := decimal.RequireFromString("85.50")
	c.Spend = &low
	errs := Validate(c, rules)
	require.Len(t, errs, 1)
	assert.Equal(t, "spend must be >= 100", errs[0].Message)

	exact := decimal.RequireFromString("100.00")
	c.Spend = &exact
	assert.Empty(t, Validate(c, rules))
}

func TestValidateRangeMax(t *testing.T) {
	rules := mustRules(t, `{"clicks": {"max": 5}}`)

	c := validCanonical()
	errs := Validate(c, rules)
	require.Len(t, errs, 1)
	assert.Equal(t, "clicks must be <= 5", errs[0].Message)
}

func TestValidateLengthRule(t *testing.T) {
	rules := mustRules(t, `{"campaign": {"minLength": 3, "maxLength": 8}}`)

	c := validCanonical()
	short := "ab"
	c.Campaign = &short
	errs := Validate(c, rules)
	require.Len(t, errs, 1)
	assert.Equal(t, "campaign must be at least 3 characters", errs[0].Message)

	long := "this name is too long"
	c.Campaign = &long
	errs = Validate(c, rules)
	require.Len(t, errs, 1)
	assert.Equal(t, "campaign must be at most 8 characters", errs[0].Message)
}

func TestValidateLengthCountsCharactersNotBytes(t *testing.T) {
	rules := mustRules(t, `{"campaign": {"maxLength": 3}}`)

	c := validCanonical()
	// Three characters, six bytes.
	umlauts := "üüü"
	c.Campaign = &umlauts
	assert.Empty(t, Validate(c, rules))

	over := "üüüü"
	c.Campaign = &over
	errs := Validate(c, rules)
	require.Len(t, errs, 1)
	assert.Equal(t, "campaign must be at most 3 characters", errs[0].Message)
}

func TestValidateEnumRule(t *testing.T) {
	rules := mustRules(t, `{"channel": {"allowed": ["google", "meta"]}}`)

	c := validCanonical()
	bad := "tiktok"
	c.Channel = &bad
	errs := Validate(c, rules)
	require.Len(t, errs, 1)
	assert.Equal(t, "channel must be one of: google, meta", errs[0].Message)

	ok := "meta"
	c.Channel = &ok
	assert.Empty(t, Validate(c, rules))
}

func TestValidateDateBounds(t *testing.T) {
	rules := mustRules(t, `{"date": {"minDate": "2024-01-01", "maxDate": "2024-12-31"}}`)

	c := validCanonical()
	early := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	c.Date = &early
	errs := Validate(c, rules)
	require.Len(t, errs, 1)
	assert.Equal(t, "date must be >= 2024-01-01", errs[0].Message)

	late := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Date = &late
	errs = Validate(c, rules)
	require.Len(t, errs, 1)
	assert.Equal(t, "date must be <= 2024-12-31", errs[0].Message)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	rules := mustRules(t, `{"spend": {"min": 100}, "channel": {"allowed": ["google"]}}`)

	c := validCanonical()
	low := decimal.RequireFromString("1.00")
	c.Spend = &low
	bad := "meta"
	c.Channel = &bad

	errs := Validate(c, rules)
	assert.Len(t, errs, 2)
}

func TestValidateMissingFields(t *testing.T) {
	errs := Validate(Canonical{}, schema.RuleSet{})
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Missing date")
	assert.Contains(t, messages, "Missing campaign")
	assert.Contains(t, messages, "Missing channel")
	assert.Contains(t, messages, "Missing spend")
}
