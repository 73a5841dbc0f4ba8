package memory

import (
	"context"
	"testing"

	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

func TestCreateService_DuplicateDomain(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateService(ctx, &model.HostingService{PrimaryDomain: "example.com"}); err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	err := s.CreateService(ctx, &model.HostingService{PrimaryDomain: "example.com"})
	if !errs.IsKind(err, errs.KindAlreadyExists) {
		t.Errorf("Expected %s, got %v", errs.KindAlreadyExists, err)
	}
}

func TestTransitionService_GuardsStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	svc := &model.HostingService{PrimaryDomain: "example.com"}
	if err := s.CreateService(ctx, svc); err != nil {
		t.Fatalf("CreateService: %v", err)
	}

	_, err := s.TransitionService(ctx, svc.ID, []string{model.ServiceStatusActive}, model.ServiceStatusSuspended, nil)
	if !errs.IsKind(err, errs.KindInvalidState) {
		t.Errorf("Expected %s, got %v", errs.KindInvalidState, err)
	}

	got, err := s.TransitionService(ctx, svc.ID, []string{model.ServiceStatusProvisioning}, model.ServiceStatusActive, func(h *model.HostingService) {
		h.SystemUser = "examplec"
	})
	if err != nil {
		t.Fatalf("TransitionService: %v", err)
	}
	if got.Status != model.ServiceStatusActive || got.SystemUser != "examplec" {
		t.Errorf("Unexpected service after transition: %+v", got)
	}
}

func TestTransitionIntent_SingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateIntent(ctx, &model.ActionIntent{ID: "i-1", Status: model.IntentStatusPrepared}); err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if _, err := s.TransitionIntent(ctx, "i-1", model.IntentStatusPrepared, model.IntentStatusConfirmed, nil); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if _, err := s.TransitionIntent(ctx, "i-1", model.IntentStatusPrepared, model.IntentStatusConfirmed, nil); err == nil {
		t.Error("Expected second transition to fail")
	}
}

func TestListSteps_OrderedBySeq(t *testing.T) {
	s := New()
	ctx := context.Background()
	steps := []model.MigrationStep{
		{ID: "c", JobID: "j", Seq: 3},
		{ID: "a", JobID: "j", Seq: 1},
		{ID: "b", JobID: "j", Seq: 2},
		{ID: "x", JobID: "other", Seq: 1},
	}
	if err := s.CreateSteps(ctx, steps); err != nil {
		t.Fatalf("CreateSteps: %v", err)
	}
	got, err := s.ListSteps(ctx, "j")
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(got) != 3 || got[0].ID != "a" || got[2].ID != "c" {
		t.Errorf("Unexpected order: %+v", got)
	}
}
