package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// NewEnv reads the configuration from environment variables, falling back to
// the envDefault tags.
func NewEnv() (IService, error) {
	s := settings{}
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	return &settingsService{s: s}, nil
}
