// Package secrets resolves the claims encryption key and service settings
// from the environment, AWS Secrets Manager or HashiCorp Vault.
package secrets

import (
	"context"
	"errors"

	"github.com/cityofaustin/moped-claimsx"
)

// DefaultKeyField is the field holding the claims key in a JSON secret.
const DefaultKeyField = "COGNITO_DYNAMO_SECRET_KEY"

// Source resolves a named secret value. Implementations do not cache.
type Source interface {
	Secret(ctx context.Context, name string) (string, error)
}

// Key adapts a Source into a claimsx.KeySource for one named secret.
type Key struct {
	Source Source
	Name   string
}

// EncryptionKey implements claimsx.KeySource.
func (k Key) EncryptionKey(ctx context.Context) (string, error) {
	if k.Source == nil {
		return "", claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("secret source is not configured"))
	}
	name := k.Name
	if name == "" {
		name = DefaultKeyField
	}
	value, err := k.Source.Secret(ctx, name)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("secret "+name+" is empty"))
	}
	return value, nil
}

var _ claimsx.KeySource = Key{}
