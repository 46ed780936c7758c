// Package bootstrap wires settings into repositories and verifiers.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cityofaustin/moped-claimsx"
	"github.com/cityofaustin/moped-claimsx/dynamostore"
	"github.com/cityofaustin/moped-claimsx/internal/settings"
	"github.com/cityofaustin/moped-claimsx/kafkaaudit"
	"github.com/cityofaustin/moped-claimsx/redisstore"
	"github.com/cityofaustin/moped-claimsx/secrets"
)

// Closer releases resources opened by the bootstrap functions.
type Closer func() error

// KeySource builds the claims key source for the configured secrets backend.
func KeySource(ctx context.Context, s *settings.Settings) (claimsx.KeySource, error) {
	var source secrets.Source
	switch s.Secrets.Backend {
	case "env":
		source = secrets.NewEnv("")
	case "secretsmanager":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.Cognito.Region))
		if err != nil {
			return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("load aws config: %w", err))
		}
		sm, err := secrets.NewSecretsManager(secretsmanager.NewFromConfig(awsCfg), s.Secrets.SecretID)
		if err != nil {
			return nil, err
		}
		source = sm
	case "vault":
		v, err := secrets.NewVault(secrets.VaultConfig{
			Address: s.Secrets.VaultAddress,
			Token:   s.Secrets.VaultToken,
			Mount:   s.Secrets.VaultMount,
			Path:    s.Secrets.VaultPath,
		})
		if err != nil {
			return nil, err
		}
		source = v
	default:
		return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("unknown secrets backend %q", s.Secrets.Backend))
	}
	return secrets.Key{Source: source, Name: s.Secrets.KeyField}, nil
}

// Store builds the configured claims store.
func Store(ctx context.Context, s *settings.Settings) (claimsx.Store, Closer, error) {
	switch s.Store.Backend {
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.Cognito.Region))
		if err != nil {
			return nil, nil, claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("load aws config: %w", err))
		}
		store, err := dynamostore.New(dynamodb.NewFromConfig(awsCfg), s.Store.Table)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case "redis":
		opts, err := redis.ParseURL(s.Store.RedisURL)
		if err != nil {
			return nil, nil, claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("parse redis url: %w", err))
		}
		client := redis.NewClient(opts)
		store, err := redisstore.New(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	}
	return nil, nil, claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("unknown store backend %q", s.Store.Backend))
}

// Repository builds a claims repository with the configured store, key
// source and, when brokers are set, Kafka audit events.
func Repository(ctx context.Context, s *settings.Settings, logger *zap.Logger, metrics *claimsx.Metrics) (*claimsx.Repository, Closer, error) {
	if err := s.ValidateStore(); err != nil {
		return nil, nil, err
	}
	keys, err := KeySource(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := Store(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	closers := []Closer{closeStore}

	opts := []claimsx.RepositoryOption{
		claimsx.WithRepositoryLogger(logger.Named("repository")),
		claimsx.WithRepositoryMetrics(metrics),
	}
	if len(s.Audit.Brokers) > 0 {
		producer, err := kafkaaudit.New(kafkaaudit.Config{Brokers: s.Audit.Brokers, Topic: s.Audit.Topic}, logger)
		if err != nil {
			_ = closeStore()
			return nil, nil, err
		}
		opts = append(opts, claimsx.WithAuditor(producer))
		closers = append(closers, producer.Close)
	}

	repo, err := claimsx.NewRepository(store, claimsx.NewCodec(keys), s.RepositoryConfig(), opts...)
	if err != nil {
		_ = closeAll(closers)
		return nil, nil, err
	}
	return repo, func() error { return closeAll(closers) }, nil
}

// Verifier builds a token verifier for the configured user pool.
func Verifier(s *settings.Settings, logger *zap.Logger, metrics *claimsx.Metrics) (*claimsx.Verifier, error) {
	cfg := s.VerifierConfig()
	keys, err := claimsx.NewKeyProvider(cfg, claimsx.WithKeyProviderLogger(logger.Named("jwks")))
	if err != nil {
		return nil, err
	}
	return claimsx.NewVerifier(cfg, keys,
		claimsx.WithVerifierLogger(logger.Named("verifier")),
		claimsx.WithVerifierMetrics(metrics),
	)
}

func closeAll(closers []Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
