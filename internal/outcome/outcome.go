// Package outcome carries the result of a pipeline stage together with how it
// was obtained: cleanly, or through a local fallback.
package outcome

import "fmt"

type Status int

const (
	StatusOK Status = iota
	StatusDegraded
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is Ok(value) or Degraded(value, reason). A degraded outcome always
// carries a usable substitute value.
type Outcome[T any] struct {
	Value  T
	Status Status
	// Reason is the degradation cause; nil when ok.
	Reason error
}

func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{Value: value, Status: StatusOK}
}

func Degraded[T any](value T, reason error) Outcome[T] {
	return Outcome[T]{Value: value, Status: StatusDegraded, Reason: reason}
}

func (o Outcome[T]) OK() bool       { return o.Status == StatusOK }
func (o Outcome[T]) Degraded() bool { return o.Status == StatusDegraded }
