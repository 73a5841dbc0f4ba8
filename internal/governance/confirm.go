package governance

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

// Outcome is what an action reports back. An empty Status means SUCCESS.
type Outcome struct {
	Status string
	Steps  []Step
	Result any
}

// ActionFunc runs a verified intent
type ActionFunc func(ctx context.Context, intent *model.ActionIntent) (*Outcome, error)

// Confirm verifies the token, runs fn and records the result. An action
// error is folded into a FAILED envelope; only protocol errors are
// returned as errors.
func (l *Ledger) Confirm(ctx context.Context, intentID, token string, fn ActionFunc) (*Envelope, error) {
	intent, err := l.Verify(ctx, intentID, token)
	if err != nil {
		return nil, err
	}

	out, actErr := fn(ctx, intent)
	if out == nil {
		out = &Outcome{}
	}
	in := ResultInput{Intent: intent, Status: out.Status, Steps: out.Steps, Result: out.Result}

	if actErr != nil {
		in.Status = StatusFailed
		in.ErrorMessage = actErr.Error()
		if len(in.Steps) == 0 {
			in.Steps = []Step{{Name: intent.Action, Status: StatusFailed, ErrorMessage: actErr.Error()}}
		}
		failure := map[string]any{"message": actErr.Error()}
		if kind := errs.KindOf(actErr); kind != "" {
			failure["kind"] = kind
		}
		if details := errs.DetailsOf(actErr); details != nil {
			failure["details"] = details
		}
		if in.Result == nil {
			in.Result = map[string]any{"error": failure}
		}
		l.logger.WithError(actErr).WithField("intentId", intent.ID).Warn("governed action failed")
	} else {
		if in.Status == "" {
			in.Status = StatusSuccess
		}
		if len(in.Steps) == 0 {
			in.Steps = []Step{{Name: intent.Action, Status: in.Status}}
		}
	}
	return l.RecordResult(ctx, in)
}

// GovernedAction binds a module/action pair to the code that runs it.
// Prepare fills empty risk fields from the action's defaults.
type GovernedAction struct {
	Module             string
	Action             string
	TargetKind         string
	Risk               string
	Reversibility      string
	ImpactedSubsystems []string

	// Validate checks a prepare request before an intent is issued
	Validate func(req PrepareRequest) error
	Run      ActionFunc
}

func (a GovernedAction) key() string {
	return a.Module + "/" + a.Action
}

// Registry holds every action that can be confirmed
type Registry struct {
	mu      sync.RWMutex
	actions map[string]GovernedAction
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]GovernedAction)}
}

// Register adds or replaces an action
func (r *Registry) Register(a GovernedAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[a.key()] = a
}

// Lookup finds an action
func (r *Registry) Lookup(module, action string) (GovernedAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[module+"/"+action]
	return a, ok
}

// List returns the registered actions sorted by key
func (r *Registry) List() []GovernedAction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]GovernedAction, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// Dispatcher prepares and confirms registered actions
type Dispatcher struct {
	ledger   *Ledger
	registry *Registry
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(ledger *Ledger, registry *Registry) *Dispatcher {
	return &Dispatcher{ledger: ledger, registry: registry}
}

// Ledger exposes the underlying ledger
func (d *Dispatcher) Ledger() *Ledger {
	return d.ledger
}

// Prepare rejects unknown actions, applies the action's defaults and
// issues an intent
func (d *Dispatcher) Prepare(ctx context.Context, req PrepareRequest) (*PrepareResponse, error) {
	action, ok := d.registry.Lookup(req.Module, req.Action)
	if !ok {
		return nil, errs.Newf(errs.KindInvalidArgument, "unknown action %s/%s", req.Module, req.Action)
	}
	if req.TargetKind == "" {
		req.TargetKind = action.TargetKind
	}
	if req.TargetKind != action.TargetKind {
		return nil, errs.Newf(errs.KindInvalidArgument, "action %s targets %s, not %s", action.key(), action.TargetKind, req.TargetKind)
	}
	if req.Risk == "" {
		req.Risk = action.Risk
	}
	if req.Reversibility == "" {
		req.Reversibility = action.Reversibility
	}
	if req.ImpactedSubsystems == nil {
		req.ImpactedSubsystems = action.ImpactedSubsystems
	}
	if action.Validate != nil {
		if err := action.Validate(req); err != nil {
			return nil, err
		}
	}
	return d.ledger.Prepare(ctx, req)
}

// Confirm runs the action an intent was prepared for
func (d *Dispatcher) Confirm(ctx context.Context, intentID, token string) (*Envelope, error) {
	return d.ledger.Confirm(ctx, intentID, token, func(ctx context.Context, intent *model.ActionIntent) (*Outcome, error) {
		action, ok := d.registry.Lookup(intent.Module, intent.Action)
		if !ok {
			return nil, errs.Newf(errs.KindInvalidArgument, "action %s/%s is no longer registered", intent.Module, intent.Action)
		}
		return action.Run(ctx, intent)
	})
}

// DecodePayload unmarshals an intent's stored payload
func DecodePayload(intent *model.ActionIntent, v any) error {
	if len(intent.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(intent.Payload, v); err != nil {
		return errs.Wrap(errs.KindInvalidArgument, "intent payload does not match the action", err)
	}
	return nil
}
