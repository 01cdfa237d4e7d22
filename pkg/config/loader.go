package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is implemented by config structs with cross-field rules that
// env tags cannot express.
type Validator interface {
	Validate() error
}

// Option tweaks how Load reads variables.
type Option func(*env.Options)

// WithEnvironment reads vars instead of the process environment.
func WithEnvironment(vars map[string]string) Option {
	return func(o *env.Options) { o.Environment = vars }
}

// WithPrefix prepends prefix to every variable name.
func WithPrefix(prefix string) Option {
	return func(o *env.Options) { o.Prefix = prefix }
}

// Load fills a T from `env` tags and runs its Validate method when it has
// one.
func Load[T any](opts ...Option) (*T, error) {
	var o env.Options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := new(T)
	if err := env.ParseWithOptions(cfg, o); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if v, ok := any(cfg).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}
	return cfg, nil
}
