package pipeline

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRow is one parsed CSV line keyed by header, the shape the upload API
// stores alongside row errors.
type RawRow map[string]string

// FieldError is one mapping or validation failure for a single field.
type FieldError struct {
	Field   string
	Message string
}

// Canonical is the coerced form of a row. Nil members are absent; the
// validator decides whether absence is an error.
type Canonical struct {
	Date        *time.Time
	Campaign    *string
	Channel     *string
	Spend       *decimal.Decimal
	Clicks      *int
	Conversions *int
}
