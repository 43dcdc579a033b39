package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies analysis failures by how far they propagate.
type ErrorKind string

const (
	// KindConfiguration is fatal to the whole run.
	KindConfiguration ErrorKind = "configuration"
	// KindDataIntegrity is fatal to the whole run.
	KindDataIntegrity ErrorKind = "data_integrity"
	// KindDegenerateStatistic is fatal to the affected k only.
	KindDegenerateStatistic ErrorKind = "degenerate_statistic"
	// KindDivisionByZero is recovered per flow.
	KindDivisionByZero ErrorKind = "division_by_zero"
)

// Error carries the kind of failure and where it happened. K and FlowIndex are
// -1 when they do not apply.
type Error struct {
	Kind      ErrorKind
	K         int
	FlowIndex int
	Attribute string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.K >= 0 {
		fmt.Fprintf(&b, " k=%d", e.K)
	}
	if e.FlowIndex >= 0 {
		fmt.Fprintf(&b, " flow=%d", e.FlowIndex)
	}
	if e.Attribute != "" {
		fmt.Fprintf(&b, " attribute=%s", e.Attribute)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigurationError reports an invalid parameter or empty input.
func NewConfigurationError(k int, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, K: k, FlowIndex: -1, Err: fmt.Errorf(format, args...)}
}

// NewDataIntegrityError reports inputs that reference each other inconsistently.
func NewDataIntegrityError(flowIndex int, format string, args ...any) *Error {
	return &Error{Kind: KindDataIntegrity, K: -1, FlowIndex: flowIndex, Err: fmt.Errorf(format, args...)}
}

// NewDegenerateStatisticError reports a zero or undefined standard deviation.
func NewDegenerateStatisticError(k int, attr Attribute, format string, args ...any) *Error {
	return &Error{Kind: KindDegenerateStatistic, K: k, FlowIndex: -1, Attribute: string(attr), Err: fmt.Errorf(format, args...)}
}

// NewDivisionByZeroError reports an undefined indicator ratio for one flow.
func NewDivisionByZeroError(k, flowIndex int, attr Attribute) *Error {
	return &Error{
		Kind:      KindDivisionByZero,
		K:         k,
		FlowIndex: flowIndex,
		Attribute: string(attr),
		Err:       fmt.Errorf("%s is zero, indicator ratio is undefined", attr),
	}
}

// IsKind returns true if err (or any error in its chain) is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsFatal reports whether err must abort the whole run rather than a single k.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return true
	}
	return e.Kind == KindConfiguration || e.Kind == KindDataIntegrity
}
