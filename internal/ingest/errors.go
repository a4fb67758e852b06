package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrSchemaViolation = errors.New("schema violation")
	ErrRangeViolation  = errors.New("range violation")
	ErrDuplicateTitle  = errors.New("duplicate title")
	ErrInvalidNumber   = errors.New("invalid number")
)

// Reason is the record-level rejection cause reported per run.
type Reason string

const (
	ReasonSchemaViolation Reason = "schema_violation"
	ReasonRangeViolation  Reason = "range_violation"
	ReasonDuplicateTitle  Reason = "duplicate_title"
	ReasonInvalidNumber   Reason = "invalid_number"
)

// Reasons lists every rejection reason in report order.
var Reasons = []Reason{ReasonSchemaViolation, ReasonInvalidNumber, ReasonRangeViolation, ReasonDuplicateTitle}

func (r Reason) sentinel() error {
	switch r {
	case ReasonSchemaViolation:
		return ErrSchemaViolation
	case ReasonRangeViolation:
		return ErrRangeViolation
	case ReasonDuplicateTitle:
		return ErrDuplicateTitle
	case ReasonInvalidNumber:
		return ErrInvalidNumber
	}
	return errors.New(string(r))
}

// Rejection is one upload row excluded from the merge.
type Rejection struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Title  string `json:"title,omitempty"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail"`
}

// Err returns the rejection as an error wrapping the reason's sentinel.
func (r Rejection) Err() error {
	return fmt.Errorf("%s:%d: %w: %s", r.Source, r.Line, r.Reason.sentinel(), r.Detail)
}

// CountByReason tallies rejections. Every reason is present, zero or not.
func CountByReason(rejections []Rejection) map[Reason]int {
	out := make(map[Reason]int, len(Reasons))
	for _, r := range Reasons {
		out[r] = 0
	}
	for _, r := range rejections {
		out[r.Reason]++
	}
	return out
}
