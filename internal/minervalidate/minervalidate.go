// Package minervalidate checks the span, offset, and confidence invariants
// that every write boundary in the pipeline must satisfy, using a
// collect-then-report Validator that accumulates every violation in a
// batch instead of failing on the first one.
package minervalidate

import (
	"fmt"
	"strings"
)

// FieldError is one invariant violation.
type FieldError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e *FieldError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors collects every violation found in one validation pass.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e Errors) HasErrors() bool { return len(e) > 0 }

func (e Errors) ToError() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Validator accumulates FieldErrors across a batch of checks.
type Validator struct {
	errors Errors
}

func New() *Validator { return &Validator{} }

func (v *Validator) AddError(field, message string, value interface{}) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message, Value: value})
}

func (v *Validator) Require(condition bool, field, message string) {
	if !condition {
		v.AddError(field, message, nil)
	}
}

func (v *Validator) Error() error { return v.errors.ToError() }
func (v *Validator) HasErrors() bool { return v.errors.HasErrors() }

// Span validates a half-open [start, end) character span against a
// containing text length N: 0 <= start <= end <= N.
func (v *Validator) Span(field string, start, end, n int) {
	v.Require(start >= 0, field+".start", "must be non-negative")
	v.Require(end >= start, field+".end", "must be >= start")
	v.Require(end <= n, field+".end", "must not exceed containing text length")
}

// Confidence validates a probability-like score in [0, 1].
func (v *Validator) Confidence(field string, value float64) {
	v.Require(value >= 0 && value <= 1, field, "must be in [0, 1]")
}

// ValidateChunkParams checks chunk token-window parameters: positive
// target, min <= target <= max, overlap smaller than the minimum window.
func ValidateChunkParams(target, min, max, overlap int) error {
	v := New()
	v.Require(target > 0, "target_tokens", "must be positive")
	v.Require(min > 0, "min_tokens", "must be positive")
	v.Require(min <= target, "min_tokens", "must be <= target_tokens")
	v.Require(target <= max, "max_tokens", "must be >= target_tokens")
	v.Require(overlap >= 0, "overlap_tokens", "must be non-negative")
	v.Require(overlap < min, "overlap_tokens", "must be less than min_tokens")
	return v.Error()
}

// ValidateCandidateSpan checks a trope_candidate's span against the
// owning work's text length and the chunk it was found in.
func ValidateCandidateSpan(start, end, workTextLen, chunkStart, chunkEnd int) error {
	v := New()
	v.Span("candidate", start, end, workTextLen)
	v.Require(start >= chunkStart, "candidate.start", "must not precede its chunk")
	v.Require(end <= chunkEnd, "candidate.end", "must not exceed its chunk")
	return v.Error()
}

// ValidateFinding checks a trope_finding's span and confidence before
// persisting it.
func ValidateFinding(evidenceStart, evidenceEnd, workTextLen int, confidence float64) error {
	v := New()
	v.Span("finding.evidence", evidenceStart, evidenceEnd, workTextLen)
	v.Confidence("finding.confidence", confidence)
	return v.Error()
}

// ValidateSupportSelection checks a support_selection row: rank is
// 1-based and contiguous is enforced by the caller across the full set,
// stage scores fall in [0, 1].
func ValidateSupportSelection(rank int, stage1, stage2 float64) error {
	v := New()
	v.Require(rank >= 1, "rank", "must be 1-based")
	v.Confidence("stage1_score", stage1)
	v.Confidence("stage2_score", stage2)
	return v.Error()
}
