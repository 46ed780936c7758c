package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityofaustin/moped-claimsx"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", s.Cognito.Region)
	assert.True(t, s.Authorizer.LoadJWKS)
	assert.Equal(t, "dynamodb", s.Store.Backend)
	assert.Equal(t, 3*time.Second, s.Store.Timeout)
	assert.Equal(t, 2, s.RepositoryConfig().Retries)
	assert.Equal(t, "env", s.Secrets.Backend)
	assert.Equal(t, "COGNITO_DYNAMO_SECRET_KEY", s.Secrets.KeyField)
}

func TestLoadLegacyEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("COGNITO_REGION", "us-west-2")
	t.Setenv("COGNITO_USERPOOL_ID", "us-west-2_pool")
	t.Setenv("COGNITO_APP_CLIENT_ID", "client")
	t.Setenv("API_GATEWAY_ARN", "arn:aws:execute-api:us-west-2:1:api")
	t.Setenv("LOAD_JWKS", "false")
	t.Setenv("COGNITO_DYNAMO_TABLE_NAME", "claims")
	t.Setenv("AWS_SECRETS_ID", "moped/secret")

	s, err := Load("")
	require.NoError(t, err)

	cfg := s.VerifierConfig()
	assert.Equal(t, "us-west-2", cfg.Region)
	assert.Equal(t, "us-west-2_pool", cfg.UserPoolID)
	assert.Equal(t, "client", cfg.ClientID)
	assert.False(t, cfg.LoadJWKS)
	assert.Equal(t, "https://cognito-idp.us-west-2.amazonaws.com/us-west-2_pool", cfg.Issuer())
	assert.Equal(t, "claims", s.Store.Table)
	assert.Equal(t, "moped/secret", s.Secrets.SecretID)
	require.NoError(t, s.ValidateAuthorizer())
	require.NoError(t, s.ValidateStore())
}

func TestLoadPrefixedEnvironmentWins(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("COGNITO_DYNAMO_TABLE_NAME", "legacy")
	t.Setenv("MOPED_STORE_TABLE", "modern")
	t.Setenv("MOPED_STORE_BACKEND", "redis")
	t.Setenv("MOPED_STORE_REDIS_URL", "redis://localhost:6379/0")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "modern", s.Store.Table)
	assert.Equal(t, "redis", s.Store.Backend)
	require.NoError(t, s.ValidateStore())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claimsx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cognito:
  user_pool_id: us-east-1_file
  client_id: file-client
store:
  backend: redis
  redis_url: redis://cache:6379/1
  retries: 5
  max_age: 24h
secrets:
  backend: vault
  vault_path: moped/claims
audit:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: moped.claims
`), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-client", s.Cognito.ClientID)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, s.Audit.Brokers)
	assert.Equal(t, 24*time.Hour, s.RepositoryConfig().MaxAge)
	assert.Equal(t, 5, s.RepositoryConfig().Retries)
	assert.Equal(t, "secret", s.Secrets.VaultMount)
	require.NoError(t, s.ValidateStore())
}

func TestZeroRetriesDisablesRetrying(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MOPED_STORE_RETRIES", "0")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Store.Retries)
	assert.Equal(t, -1, s.RepositoryConfig().Retries)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, claimsx.ErrCodeConfiguration, claimsx.CodeOf(err))
}

func TestValidation(t *testing.T) {
	chdir(t, t.TempDir())
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, claimsx.ErrCodeConfiguration, claimsx.CodeOf(s.ValidateAuthorizer()))
	assert.Equal(t, claimsx.ErrCodeConfiguration, claimsx.CodeOf(s.ValidateStore()))

	s.Store.Table = "claims"
	s.Secrets.Backend = "secretsmanager"
	assert.Equal(t, claimsx.ErrCodeConfiguration, claimsx.CodeOf(s.ValidateStore()))
	s.Secrets.SecretID = "id"
	assert.NoError(t, s.ValidateStore())

	s.Store.Backend = "postgres"
	assert.Equal(t, claimsx.ErrCodeConfiguration, claimsx.CodeOf(s.ValidateStore()))
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (stand-in for testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
