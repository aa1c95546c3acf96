// Package inputs resolves the values fed to a calculation's input windows
// before a start or resume: assignments given on the command line, defaults
// files, and external commands.
package inputs

import (
	"context"

	"github.com/uyoufu/uzoncalc/pkg/calc"
)

// Provider supplies input values. Implementations include files, command
// line assignments and external commands.
type Provider interface {
	// Name identifies the provider in warnings and logs.
	Name() string

	// Defaults returns the values this provider contributes. current holds
	// the values already resolved by earlier providers.
	Defaults(ctx context.Context, current calc.Defaults) (calc.Defaults, error)
}

// Static is a Provider backed by a fixed set of values.
type Static struct {
	Label  string
	Values calc.Defaults
}

func (s Static) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s Static) Defaults(context.Context, calc.Defaults) (calc.Defaults, error) {
	return Merge(nil, s.Values), nil
}
