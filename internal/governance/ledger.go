// Package governance implements the two-phase intent protocol for risky
// actions. Prepare issues a single-use token, Verify checks it without
// consuming it, and RecordResult consumes it while writing exactly one
// result audit row.
package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go_hostpanel/internal/auth"
	"go_hostpanel/internal/config"
	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

const (
	tokenBytes = 32
	defaultTTL = 10 * time.Minute
)

// Result statuses reported by governed actions
const (
	StatusSuccess        = "SUCCESS"
	StatusPartialSuccess = "PARTIAL_SUCCESS"
	StatusFailed         = "FAILED"
)

// Store is the persistence the ledger needs
type Store interface {
	CreateIntent(ctx context.Context, intent *model.ActionIntent) error
	GetIntent(ctx context.Context, id string) (*model.ActionIntent, error)
	TransitionIntent(ctx context.Context, id string, from, to string, mutate func(*model.ActionIntent)) (*model.ActionIntent, error)
	AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error
	ListAudit(ctx context.Context, intentID string) ([]model.AuditLogEntry, error)
}

// Actor identifies who asked for an action
type Actor struct {
	ID     string `json:"id,omitempty"`
	Role   string `json:"role,omitempty"`
	Type   string `json:"type,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// PrepareRequest describes an action to be confirmed later
type PrepareRequest struct {
	Module             string          `json:"module"`
	Action             string          `json:"action"`
	TargetKind         string          `json:"targetKind"`
	TargetKey          string          `json:"targetKey"`
	Payload            json.RawMessage `json:"payload"`
	Risk               string          `json:"risk"`
	Reversibility      string          `json:"reversibility"`
	ImpactedSubsystems []string        `json:"impactedSubsystems"`
	Actor              Actor           `json:"actor"`
}

// Confirmation is the summary shown to whoever confirms
type Confirmation struct {
	Module             string   `json:"module"`
	Action             string   `json:"action"`
	TargetKind         string   `json:"targetKind"`
	TargetKey          string   `json:"targetKey"`
	ImpactedSubsystems []string `json:"impactedSubsystems"`
	Reversibility      string   `json:"reversibility"`
	Risk               string   `json:"risk"`
}

// PrepareResponse carries the plaintext token. It is never returned again.
type PrepareResponse struct {
	IntentID       string       `json:"intentId"`
	Token          string       `json:"token"`
	TokenExpiresAt time.Time    `json:"tokenExpiresAt"`
	Confirmation   Confirmation `json:"confirmation"`
}

// Step is one entry of a governed action's step list
type Step struct {
	Name         string         `json:"name"`
	Status       string         `json:"status"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// ResultInput is what a caller reports after running the action
type ResultInput struct {
	Intent       *model.ActionIntent
	Status       string
	Steps        []Step
	Result       any
	ErrorMessage string
}

// Envelope is returned verbatim to the confirming caller
type Envelope struct {
	Status     string `json:"status"`
	Steps      []Step `json:"steps"`
	AuditLogID int64  `json:"auditLogId"`
	Result     any    `json:"result,omitempty"`
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger issues and consumes intents
type Ledger struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *logrus.Entry
}

// NewLedger creates a Ledger
func NewLedger(store Store, cfg config.GovernanceConfig, logger *logrus.Entry, opts ...Option) *Ledger {
	ttl := cfg.TokenTTL()
	if ttl <= 0 {
		ttl = defaultTTL
	}
	l := &Ledger{store: store, ttl: ttl, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func validRisk(r string) bool {
	switch r {
	case model.RiskLow, model.RiskMedium, model.RiskHigh:
		return true
	}
	return false
}

func validReversibility(r string) bool {
	switch r {
	case model.ReversibilityReversible, model.ReversibilityRequiresRestore, model.ReversibilityIrreversible:
		return true
	}
	return false
}

func validateRequest(req PrepareRequest) error {
	missing := func(field string) error {
		return errs.Newf(errs.KindInvalidArgument, "%s is required", field).WithDetail("field", field)
	}
	switch {
	case req.Module == "":
		return missing("module")
	case req.Action == "":
		return missing("action")
	case req.TargetKind == "":
		return missing("targetKind")
	case req.TargetKey == "":
		return missing("targetKey")
	}
	if !validRisk(req.Risk) {
		return errs.Newf(errs.KindInvalidArgument, "invalid risk %q", req.Risk).WithDetail("field", "risk")
	}
	if !validReversibility(req.Reversibility) {
		return errs.Newf(errs.KindInvalidArgument, "invalid reversibility %q", req.Reversibility).WithDetail("field", "reversibility")
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return errs.New(errs.KindInvalidArgument, "payload is not valid JSON").WithDetail("field", "payload")
	}
	return nil
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return data
}

func confirmationOf(intent *model.ActionIntent) Confirmation {
	var impacted []string
	_ = json.Unmarshal(intent.ImpactedSubsystems, &impacted)
	return Confirmation{
		Module:             intent.Module,
		Action:             intent.Action,
		TargetKind:         intent.TargetKind,
		TargetKey:          intent.TargetKey,
		ImpactedSubsystems: impacted,
		Reversibility:      intent.Reversibility,
		Risk:               intent.Risk,
	}
}

// Prepare persists a prepared intent and writes the confirmation audit row
func (l *Ledger) Prepare(ctx context.Context, req PrepareRequest) (*PrepareResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	token, err := auth.NewSecret(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	hash, err := auth.HashSecret(token)
	if err != nil {
		return nil, fmt.Errorf("failed to hash token: %w", err)
	}

	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	impacted := req.ImpactedSubsystems
	if impacted == nil {
		impacted = []string{}
	}

	intent := &model.ActionIntent{
		ID:                 uuid.NewString(),
		Module:             req.Module,
		Action:             req.Action,
		TargetKind:         req.TargetKind,
		TargetKey:          req.TargetKey,
		Payload:            []byte(payload),
		Risk:               req.Risk,
		Reversibility:      req.Reversibility,
		ImpactedSubsystems: mustJSON(impacted),
		Status:             model.IntentStatusPrepared,
		TokenHash:          hash,
		TokenExpiresAt:     l.now().Add(l.ttl),
		ActorID:            req.Actor.ID,
		ActorRole:          req.Actor.Role,
		ActorType:          req.Actor.Type,
		ActorReason:        req.Actor.Reason,
	}
	if err := l.store.CreateIntent(ctx, intent); err != nil {
		return nil, err
	}

	confirmation := confirmationOf(intent)
	if err := l.audit(ctx, intent, model.AuditPhaseConfirmation, model.AuditOutcomeSuccess, map[string]any{
		"confirmation":   confirmation,
		"tokenExpiresAt": intent.TokenExpiresAt.UTC().Format(time.RFC3339),
	}, ""); err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"intentId":  intent.ID,
		"module":    intent.Module,
		"action":    intent.Action,
		"targetKey": intent.TargetKey,
		"risk":      intent.Risk,
	}).Info("intent prepared")

	return &PrepareResponse{
		IntentID:       intent.ID,
		Token:          token,
		TokenExpiresAt: intent.TokenExpiresAt,
		Confirmation:   confirmation,
	}, nil
}

// Verify checks a token against a prepared intent without consuming it.
// An expired intent is flipped to expired on the first attempt.
func (l *Ledger) Verify(ctx context.Context, intentID, token string) (*model.ActionIntent, error) {
	intent, err := l.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != model.IntentStatusPrepared {
		return nil, errs.Newf(errs.KindInvalidIntentState, "intent %s is %s", intent.ID, intent.Status).
			WithDetail("status", intent.Status)
	}
	if !auth.CompareSecret(intent.TokenHash, token) {
		return nil, errs.New(errs.KindInvalidToken, "confirmation token does not match")
	}
	if l.now().After(intent.TokenExpiresAt) {
		if _, err := l.store.TransitionIntent(ctx, intent.ID, model.IntentStatusPrepared, model.IntentStatusExpired, nil); err != nil {
			l.logger.WithError(err).WithField("intentId", intent.ID).Warn("failed to mark intent expired")
		}
		return nil, errs.New(errs.KindTokenExpired, "confirmation token expired").
			WithDetail("tokenExpiresAt", intent.TokenExpiresAt.UTC().Format(time.RFC3339))
	}
	return intent, nil
}

func outcomeOf(status string) (string, error) {
	switch status {
	case StatusSuccess:
		return model.AuditOutcomeSuccess, nil
	case StatusPartialSuccess:
		return model.AuditOutcomePartial, nil
	case StatusFailed:
		return model.AuditOutcomeFailed, nil
	}
	return "", errs.Newf(errs.KindInvalidArgument, "unknown result status %q", status)
}

// RecordResult consumes the intent and writes its result audit row. It
// is called on both the success and the failure path.
func (l *Ledger) RecordResult(ctx context.Context, in ResultInput) (*Envelope, error) {
	if in.Intent == nil {
		return nil, errs.New(errs.KindInvalidArgument, "intent is required")
	}
	outcome, err := outcomeOf(in.Status)
	if err != nil {
		return nil, err
	}

	now := l.now()
	intent, err := l.store.TransitionIntent(ctx, in.Intent.ID, model.IntentStatusPrepared, model.IntentStatusConfirmed, func(i *model.ActionIntent) {
		i.ConfirmedAt = &now
	})
	if err != nil {
		if errs.IsKind(err, errs.KindInvalidState) {
			return nil, errs.Wrap(errs.KindInvalidIntentState, "intent already settled", err).WithDetail("intentId", in.Intent.ID)
		}
		return nil, err
	}

	steps := in.Steps
	if steps == nil {
		steps = []Step{}
	}
	entry, err := l.auditEntry(intent, model.AuditPhaseResult, outcome, map[string]any{
		"status": in.Status,
		"steps":  steps,
	}, in.ErrorMessage)
	if err != nil {
		return nil, err
	}
	if err := l.store.AppendAudit(ctx, entry); err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"intentId": intent.ID,
		"module":   intent.Module,
		"action":   intent.Action,
		"status":   in.Status,
	}).Info("intent confirmed")

	return &Envelope{Status: in.Status, Steps: steps, AuditLogID: entry.ID, Result: in.Result}, nil
}

// Cancel withdraws a prepared intent
func (l *Ledger) Cancel(ctx context.Context, intentID string, actor Actor) (*model.ActionIntent, error) {
	intent, err := l.store.TransitionIntent(ctx, intentID, model.IntentStatusPrepared, model.IntentStatusCancelled, nil)
	if err != nil {
		if errs.IsKind(err, errs.KindInvalidState) {
			return nil, errs.Wrap(errs.KindInvalidIntentState, "intent cannot be cancelled", err).WithDetail("intentId", intentID)
		}
		return nil, err
	}
	details := map[string]any{"status": model.IntentStatusCancelled, "cancelledBy": actor}
	if err := l.audit(ctx, intent, model.AuditPhaseResult, model.AuditOutcomeFailed, details, "cancelled"); err != nil {
		return nil, err
	}
	return intent, nil
}

// Describe returns an intent with its audit trail
func (l *Ledger) Describe(ctx context.Context, intentID string) (*model.ActionIntent, []model.AuditLogEntry, error) {
	intent, err := l.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := l.store.ListAudit(ctx, intentID)
	if err != nil {
		return nil, nil, err
	}
	return intent, rows, nil
}

func (l *Ledger) auditEntry(intent *model.ActionIntent, phase, outcome string, details map[string]any, errMsg string) (*model.AuditLogEntry, error) {
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit details: %w", err)
	}
	return &model.AuditLogEntry{
		IntentID:     intent.ID,
		Module:       intent.Module,
		Action:       intent.Action,
		Phase:        phase,
		TargetKind:   intent.TargetKind,
		TargetKey:    intent.TargetKey,
		Outcome:      outcome,
		ActorID:      intent.ActorID,
		ActorRole:    intent.ActorRole,
		ActorType:    intent.ActorType,
		ActorReason:  intent.ActorReason,
		Details:      data,
		ErrorMessage: errMsg,
	}, nil
}

func (l *Ledger) audit(ctx context.Context, intent *model.ActionIntent, phase, outcome string, details map[string]any, errMsg string) error {
	entry, err := l.auditEntry(intent, phase, outcome, details, errMsg)
	if err != nil {
		return err
	}
	return l.store.AppendAudit(ctx, entry)
}
