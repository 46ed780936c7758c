package secrets

import (
	"context"
	"fmt"
	"os"

	"github.com/cityofaustin/moped-claimsx"
)

// Env reads secrets from environment variables, optionally prefixed.
type Env struct {
	Prefix string
	lookup func(string) (string, bool)
}

// NewEnv returns an Env source.
func NewEnv(prefix string) *Env {
	return &Env{Prefix: prefix, lookup: os.LookupEnv}
}

// Secret implements Source.
func (e *Env) Secret(_ context.Context, name string) (string, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, ok := lookup(e.Prefix + name)
	if !ok {
		return "", claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("environment variable %s%s is not set", e.Prefix, name))
	}
	return value, nil
}
