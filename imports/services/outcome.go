package services

import (
	"errors"
	"fmt"
)

// OutcomeKind classifies how a processing attempt ended.
type OutcomeKind int

const (
	// OutcomeSuccess: all rows processed, run finalized.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeSkipped: duplicate delivery or missing run, nothing done.
	OutcomeSkipped
	// OutcomeDeterministicFailure: config/schema/limit problem, retrying cannot help.
	OutcomeDeterministicFailure
	// OutcomeTransientFailure: infrastructure problem, worth retrying with backoff.
	OutcomeTransientFailure
)

// Outcome is the explicit result of processing a run. The task-queue adapter
// translates it into retry semantics; the processor itself never sleeps or
// reschedules.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

func FailedDeterministic(err error) Outcome {
	return Outcome{Kind: OutcomeDeterministicFailure, Reason: err.Error(), Err: err}
}

func FailedTransient(err error) Outcome {
	return Outcome{Kind: OutcomeTransientFailure, Reason: err.Error(), Err: err}
}

// DeterministicError marks a failure that must not be retried: the same input
// will fail the same way every time.
type DeterministicError struct {
	msg string
}

func (e *DeterministicError) Error() string { return e.msg }

func Deterministic(format string, args ...interface{}) error {
	return &DeterministicError{msg: fmt.Sprintf(format, args...)}
}

// IsDeterministic reports whether any error in the chain is deterministic.
// Everything else, including unexpected errors, is treated as transient.
func IsDeterministic(err error) bool {
	var det *DeterministicError
	return errors.As(err, &det)
}
