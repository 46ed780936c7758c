package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/cityofaustin/moped-claimsx"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager reads fields of one JSON secret. An empty field name
// returns the whole secret string.
type SecretsManager struct {
	api      SecretsManagerAPI
	secretID string
}

// NewSecretsManager returns a source for secretID.
func NewSecretsManager(api SecretsManagerAPI, secretID string) (*SecretsManager, error) {
	if api == nil || secretID == "" {
		return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("secrets manager client and secret id are required"))
	}
	return &SecretsManager{api: api, secretID: secretID}, nil
}

// Secret implements Source.
func (s *SecretsManager) Secret(ctx context.Context, name string) (string, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return "", claimsx.NewError(claimsx.ErrCodeSecretUnavailable, fmt.Errorf("get secret value: %w", err))
	}
	raw := aws.ToString(out.SecretString)
	if name == "" {
		return raw, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("secret is not a JSON object: %w", err))
	}
	value, ok := fields[name].(string)
	if !ok {
		return "", claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("secret has no string field %s", name))
	}
	return value, nil
}
