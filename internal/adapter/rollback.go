package adapter

import "context"

// UndoFunc reverts exactly the side effect one EnsurePresent performed
type UndoFunc func(ctx context.Context, rc *Context) error

// Rollback is a compensating action registered after a successful step
type Rollback struct {
	Kind       string // e.g. "user.delete"
	Adapter    string
	TargetKind string
	TargetKey  string
	Undo       UndoFunc
}

// Result is what an EnsurePresent / EnsureAbsent call returns
type Result struct {
	Rollback *Rollback
	Details  map[string]any
}

// RollbackOutcome reports one unwound rollback
type RollbackOutcome struct {
	Rollback Rollback
	Err      error
}

// RollbackStack accumulates rollbacks in registration order
type RollbackStack struct {
	items []Rollback
}

// Push registers a rollback. Nil rollbacks are ignored.
func (s *RollbackStack) Push(rb *Rollback) {
	if rb == nil || rb.Undo == nil {
		return
	}
	s.items = append(s.items, *rb)
}

// Len returns the number of registered rollbacks
func (s *RollbackStack) Len() int {
	return len(s.items)
}

// Unwind invokes every rollback in reverse order of registration. It never
// stops early and never returns an error; failures are reported in the
// outcomes and through the context log.
func (s *RollbackStack) Unwind(ctx context.Context, rc *Context) []RollbackOutcome {
	outcomes := make([]RollbackOutcome, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		rb := s.items[i]
		err := rb.Undo(ctx, rc)
		outcomes = append(outcomes, RollbackOutcome{Rollback: rb, Err: err})

		entry := LogEntry{
			Adapter:    rb.Adapter,
			Operation:  OpDelete,
			TargetKind: rb.TargetKind,
			TargetKey:  rb.TargetKey,
			Success:    err == nil,
			Details:    map[string]any{"action": "rollback", "kind": rb.Kind},
		}
		if err != nil {
			entry.ErrorMessage = err.Error()
		}
		rc.Log(ctx, entry)
	}
	s.items = nil
	return outcomes
}
