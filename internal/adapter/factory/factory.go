// Package factory resolves the adapter set once at process start
package factory

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/adapter/noop"
	"go_hostpanel/internal/adapter/shell"
	"go_hostpanel/internal/config"
	"go_hostpanel/internal/execx"
)

// Mode values for ADAPTER_MODE
const (
	ModeShell = "shell"
	ModeNoop  = "noop"
)

// New returns the adapter set selected by cfg.AdapterMode
func New(cfg config.ProvisioningConfig, executor execx.Executor, logger *logrus.Entry) (adapter.Set, error) {
	switch cfg.AdapterMode {
	case ModeShell:
		return shell.New(cfg, executor, logger), nil
	case ModeNoop:
		return noop.New(), nil
	default:
		return adapter.Set{}, fmt.Errorf("unknown adapter mode %q", cfg.AdapterMode)
	}
}
