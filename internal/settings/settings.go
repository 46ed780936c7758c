// Package settings loads process configuration for the claimsx binaries.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cityofaustin/moped-claimsx"
)

// Settings holds the configuration shared by the binaries.
type Settings struct {
	Log        LogSettings        `mapstructure:"log"`
	Cognito    CognitoSettings    `mapstructure:"cognito"`
	Authorizer AuthorizerSettings `mapstructure:"authorizer"`
	Store      StoreSettings      `mapstructure:"store"`
	Secrets    SecretSettings     `mapstructure:"secrets"`
	Audit      AuditSettings      `mapstructure:"audit"`
}

// LogSettings selects the zap level and encoder ("json" or "console").
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CognitoSettings identifies the user pool and app client. ClientSecret and
// Domain are only needed for minting client-credentials tokens.
type CognitoSettings struct {
	Region       string `mapstructure:"region"`
	UserPoolID   string `mapstructure:"user_pool_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Domain       string `mapstructure:"domain"`
}

// AuthorizerSettings configures the Lambda authorizer. PolicyFile is an
// optional YAML permission table; without it every request is denied.
type AuthorizerSettings struct {
	APIGatewayARN string        `mapstructure:"api_gateway_arn"`
	LoadJWKS      bool          `mapstructure:"load_jwks"`
	JWKSURL       string        `mapstructure:"jwks_url"`
	PolicyFile    string        `mapstructure:"policy_file"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
}

// StoreSettings selects the claims table backend ("dynamodb" or "redis")
// and bounds each call. Retries of zero disables retrying.
type StoreSettings struct {
	Backend  string        `mapstructure:"backend"`
	Table    string        `mapstructure:"table"`
	RedisURL string        `mapstructure:"redis_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retries  int           `mapstructure:"retries"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

// SecretSettings selects where the Fernet key is read from: "env",
// "secretsmanager" or "vault". KeyField names the key inside the secret.
type SecretSettings struct {
	Backend      string `mapstructure:"backend"`
	SecretID     string `mapstructure:"secret_id"`
	KeyField     string `mapstructure:"key_field"`
	VaultAddress string `mapstructure:"vault_address"`
	VaultToken   string `mapstructure:"vault_token"`
	VaultMount   string `mapstructure:"vault_mount"`
	VaultPath    string `mapstructure:"vault_path"`
}

// AuditSettings enables the Kafka audit producer when Brokers is non-empty.
type AuditSettings struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// legacyEnv maps keys to the environment names the original services used.
var legacyEnv = map[string]string{
	"cognito.region":             "COGNITO_REGION",
	"cognito.user_pool_id":       "COGNITO_USERPOOL_ID",
	"cognito.client_id":          "COGNITO_APP_CLIENT_ID",
	"authorizer.api_gateway_arn": "API_GATEWAY_ARN",
	"authorizer.load_jwks":       "LOAD_JWKS",
	"store.table":                "COGNITO_DYNAMO_TABLE_NAME",
	"secrets.secret_id":          "AWS_SECRETS_ID",
}

// Load reads an optional YAML file, then MOPED_* and legacy environment
// variables. An empty path searches for claimsx.yaml in the working directory.
func Load(path string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cognito.region", "us-east-1")
	v.SetDefault("cognito.user_pool_id", "")
	v.SetDefault("cognito.client_id", "")
	v.SetDefault("cognito.client_secret", "")
	v.SetDefault("cognito.domain", "")
	v.SetDefault("authorizer.api_gateway_arn", "")
	v.SetDefault("authorizer.load_jwks", true)
	v.SetDefault("authorizer.jwks_url", "")
	v.SetDefault("authorizer.policy_file", "")
	v.SetDefault("authorizer.http_timeout", 5*time.Second)
	v.SetDefault("store.backend", "dynamodb")
	v.SetDefault("store.table", "")
	v.SetDefault("store.redis_url", "")
	v.SetDefault("store.timeout", 3*time.Second)
	v.SetDefault("store.retries", 2) // 0 disables retries
	v.SetDefault("store.max_age", time.Duration(0))
	v.SetDefault("secrets.backend", "env")
	v.SetDefault("secrets.secret_id", "")
	v.SetDefault("secrets.key_field", "COGNITO_DYNAMO_SECRET_KEY")
	v.SetDefault("secrets.vault_address", "")
	v.SetDefault("secrets.vault_token", "")
	v.SetDefault("secrets.vault_mount", "secret")
	v.SetDefault("secrets.vault_path", "")
	v.SetDefault("audit.brokers", []string{})
	v.SetDefault("audit.topic", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("claimsx")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("read config: %w", err))
		}
	}

	v.SetEnvPrefix("MOPED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "MOPED_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("decode config: %w", err))
	}
	return &s, nil
}

// VerifierConfig returns the token verification settings.
func (s *Settings) VerifierConfig() claimsx.VerifierConfig {
	return claimsx.VerifierConfig{
		Region:        s.Cognito.Region,
		UserPoolID:    s.Cognito.UserPoolID,
		ClientID:      s.Cognito.ClientID,
		APIGatewayARN: s.Authorizer.APIGatewayARN,
		LoadJWKS:      s.Authorizer.LoadJWKS,
		JWKSURL:       s.Authorizer.JWKSURL,
		HTTPTimeout:   s.Authorizer.HTTPTimeout,
	}
}

// RepositoryConfig returns the claims store settings. store.retries of zero
// or less disables retries; the loader default supplies the retry count.
func (s *Settings) RepositoryConfig() claimsx.RepositoryConfig {
	retries := s.Store.Retries
	if retries <= 0 {
		retries = -1
	}
	return claimsx.RepositoryConfig{
		Timeout: s.Store.Timeout,
		Retries: retries,
		MaxAge:  s.Store.MaxAge,
	}
}

// ValidateAuthorizer checks the settings the authorizer cannot start without.
func (s *Settings) ValidateAuthorizer() error {
	if s.Authorizer.APIGatewayARN == "" {
		return claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("authorizer.api_gateway_arn is required"))
	}
	_, err := s.VerifierConfig().Normalized()
	return err
}

// ValidateStore checks the settings the claims repository cannot start without.
func (s *Settings) ValidateStore() error {
	switch s.Store.Backend {
	case "dynamodb":
		if s.Store.Table == "" {
			return claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("store.table is required for dynamodb"))
		}
	case "redis":
		if s.Store.RedisURL == "" {
			return claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("store.redis_url is required for redis"))
		}
	default:
		return claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("unknown store backend %q", s.Store.Backend))
	}
	switch s.Secrets.Backend {
	case "env":
	case "secretsmanager":
		if s.Secrets.SecretID == "" {
			return claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("secrets.secret_id is required for secretsmanager"))
		}
	case "vault":
		if s.Secrets.VaultPath == "" {
			return claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("secrets.vault_path is required for vault"))
		}
	default:
		return claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("unknown secrets backend %q", s.Secrets.Backend))
	}
	return nil
}
