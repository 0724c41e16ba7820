package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMapping(t *testing.T) {
	raw := []byte(`{
		"date": {"source": "Date", "format": "YYYY-MM-DD"},
		"spend": {"source": "Cost (USD)", "currency": true},
		"clicks": {"source": "Clicks", "default": 0}
	}`)

	m, err := ParseMapping(raw)
	require.NoError(t, err)

	assert.Equal(t, "Date", m[FieldDate].Source)
	assert.Equal(t, "YYYY-MM-DD", m[FieldDate].Format)
	assert.True(t, m[FieldSpend].Currency)
	assert.Equal(t, 0, m[FieldClicks].DefaultInt())
	assert.NotNil(t, m[FieldClicks].Default)
}

func TestParseMappingEmptyAndInvalid(t *testing.T) {
	m, err := ParseMapping(nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	_, err = ParseMapping([]byte(`{not json`))
	assert.Error(t, err)
}

func TestDefaultIntCoercion(t *testing.T) {
	assert.Equal(t, 5, FieldMapping{Default: float64(5)}.DefaultInt())
	assert.Equal(t, 7, FieldMapping{Default: " 7 "}.DefaultInt())
	assert.Equal(t, 0, FieldMapping{Default: "abc"}.DefaultInt())
	assert.Equal(t, 0, FieldMapping{Default: true}.DefaultInt())
}

func TestParseRulesTypedRules(t *testing.T) {
	raw := []byte(`{
		"spend": {"min": 0, "max": 10000.5},
		"campaign": {"minLength": 3, "maxLength": 64},
		"channel": {"allowed": ["google", "meta"]},
		"date": {"minDate": "2024-01-01", "maxDate": "2024-12-31"}
	}`)

	set, err := ParseRules(raw)
	require.NoError(t, err)

	require.Len(t, set[FieldSpend], 1)
	spendRule := set[FieldSpend][0].(RangeRule)
	require.NotNil(t, spendRule.Min)
	assert.Equal(t, 0.0, *spendRule.Min)
	require.NotNil(t, spendRule.Max)
	assert.Equal(t, 10000.5, *spendRule.Max)

	require.Len(t, set[FieldCampaign], 1)
	lengthRule := set[FieldCampaign][0].(LengthRule)
	assert.Equal(t, 3, *lengthRule.MinLength)
	assert.Equal(t, 64, *lengthRule.MaxLength)

	require.Len(t, set[FieldChannel], 1)
	enumRule := set[FieldChannel][0].(EnumRule)
	assert.Equal(t, []string{"google", "meta"}, enumRule.Allowed)

	require.Len(t, set[FieldDate], 1)
	dateRule := set[FieldDate][0].(DateBoundRule)
	require.NotNil(t, dateRule.Min)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *dateRule.Min)
	assert.Equal(t, "2024-01-01", dateRule.MinRaw)
	assert.Equal(t, "2024-12-31", dateRule.MaxRaw)
}

func TestParseRulesSkipsMalformedBounds(t *testing.T) {
	raw := []byte(`{
		"spend": {"min": "not-a-number"},
		"date": {"minDate": "01/15/2024"},
		"unknown_field": {"min": 1}
	}`)

	set, err := ParseRules(raw)
	require.NoError(t, err)
	assert.Empty(t, set[FieldSpend])
	assert.Empty(t, set[FieldDate])
	assert.Empty(t, set["unknown_field"])
}

func TestParseRulesInvalidDocument(t *testing.T) {
	_, err := ParseRules([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "100", FormatNumber(100))
	assert.Equal(t, "99.5", FormatNumber(99.5))
	assert.Equal(t, "0.001", FormatNumber(0.001))
}
