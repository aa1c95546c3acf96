package inputs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/logging"
)

// Manager merges the values of registered providers in registration order.
// Later providers override earlier ones field by field.
type Manager struct {
	providers []Provider
	logger    *zap.Logger
}

// NewManager creates an empty input manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logging.OrNop(logger)}
}

// Register adds a provider.
func (m *Manager) Register(p Provider) {
	m.providers = append(m.providers, p)
}

// Len returns the number of registered providers.
func (m *Manager) Len() int {
	return len(m.providers)
}

// Resolve runs every provider and merges the results over base. A failing
// provider is skipped with a warning; Resolve itself only fails when ctx is
// done.
func (m *Manager) Resolve(ctx context.Context, base calc.Defaults) (calc.Defaults, []string, error) {
	resolved := Merge(nil, base)
	var warnings []string

	for _, p := range m.providers {
		if err := ctx.Err(); err != nil {
			return nil, warnings, err
		}
		values, err := p.Defaults(ctx, resolved)
		if err != nil {
			m.logger.Warn("input provider failed", zap.String("provider", p.Name()), zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("provider %q: %v", p.Name(), err))
			continue
		}
		resolved = Merge(resolved, values)
	}

	return resolved, warnings, nil
}
