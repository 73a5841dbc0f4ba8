package factory

import (
	"testing"

	"go_hostpanel/internal/adapter/noop"
	"go_hostpanel/internal/adapter/shell"
	"go_hostpanel/internal/config"
	"go_hostpanel/internal/execx"
	"go_hostpanel/internal/logging"
)

func TestNew(t *testing.T) {
	runner := execx.NewRunner(0, logging.Discard())

	set, err := New(config.ProvisioningConfig{AdapterMode: ModeShell}, runner, logging.Discard())
	if err != nil {
		t.Fatalf("New(shell) failed: %v", err)
	}
	if _, ok := set.Users.(*shell.UserAdapter); !ok {
		t.Errorf("Expected shell user adapter, got %T", set.Users)
	}

	set, err = New(config.ProvisioningConfig{AdapterMode: ModeNoop}, runner, logging.Discard())
	if err != nil {
		t.Fatalf("New(noop) failed: %v", err)
	}
	if _, ok := set.Users.(*noop.Adapters); !ok {
		t.Errorf("Expected noop adapters, got %T", set.Users)
	}

	if _, err := New(config.ProvisioningConfig{AdapterMode: "docker"}, runner, logging.Discard()); err == nil {
		t.Error("Expected error for unknown mode")
	}
}
