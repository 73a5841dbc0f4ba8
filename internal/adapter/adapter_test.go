package adapter

import (
	"context"
	"errors"
	"testing"
)

type recordingSink struct {
	entries []LogEntry
}

func (s *recordingSink) Log(_ context.Context, entry LogEntry) {
	s.entries = append(s.entries, entry)
}

func TestRollbackStack_UnwindReverseOrder(t *testing.T) {
	var order []string
	push := func(s *RollbackStack, name string, fail bool) {
		s.Push(&Rollback{
			Kind:       name,
			Adapter:    name,
			TargetKind: "test",
			TargetKey:  name,
			Undo: func(ctx context.Context, rc *Context) error {
				order = append(order, name)
				if fail {
					return errors.New("undo failed")
				}
				return nil
			},
		})
	}

	var stack RollbackStack
	push(&stack, "user", false)
	push(&stack, "docroot", true)
	push(&stack, "vhost", false)
	stack.Push(nil)

	sink := &recordingSink{}
	rc := &Context{ServiceID: "1", Sink: sink}
	outcomes := stack.Unwind(context.Background(), rc)

	want := []string{"vhost", "docroot", "user"}
	if len(order) != len(want) {
		t.Fatalf("Expected %d undos, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Expected undo %d to be %s, got %s", i, want[i], order[i])
		}
	}

	if outcomes[1].Err == nil {
		t.Error("Expected docroot outcome to carry its error")
	}
	if len(sink.entries) != 3 {
		t.Fatalf("Expected 3 rollback log entries, got %d", len(sink.entries))
	}
	if sink.entries[1].Success || sink.entries[1].ErrorMessage == "" {
		t.Errorf("Expected failed rollback entry, got %+v", sink.entries[1])
	}
	if stack.Len() != 0 {
		t.Errorf("Expected empty stack after unwind, got %d", stack.Len())
	}
}

func TestContext_WouldOnlyInDryRun(t *testing.T) {
	sink := &recordingSink{}
	live := &Context{Sink: sink}
	if live.Would(context.Background(), LogEntry{Adapter: NameUser}) {
		t.Error("Expected Would to be false outside dry run")
	}

	dry := &Context{DryRun: true, Sink: sink}
	if !dry.Would(context.Background(), LogEntry{Adapter: NameUser, Operation: OpCreate}) {
		t.Error("Expected Would to be true in dry run")
	}
	if len(sink.entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(sink.entries))
	}
	if !sink.entries[0].DryRun || sink.entries[0].Details["action"] != "would_apply" {
		t.Errorf("Unexpected dry-run entry: %+v", sink.entries[0])
	}
}
