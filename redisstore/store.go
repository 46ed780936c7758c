// Package redisstore keeps claims records as Redis hashes.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cityofaustin/moped-claimsx"
)

const defaultPrefix = "moped:claims:"

const (
	fieldUserID      = "user_id"
	fieldClaims      = "claims"
	fieldCognitoUUID = "cognito_uuid"
	fieldDatabaseID  = "database_id"
	fieldWorkgroupID = "workgroup_id"
)

// Store implements claimsx.Store on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option customizes a Store.
type Option func(*Store)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New returns a Store using client.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("redis client is required"))
	}
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetRecord implements claimsx.Store.
func (s *Store) GetRecord(ctx context.Context, userID string) (claimsx.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return claimsx.Record{}, claimsx.NewError(claimsx.ErrCodeStoreUnavailable, fmt.Errorf("hgetall: %w", err))
	}
	if len(fields) == 0 {
		return claimsx.Record{}, claimsx.NewError(claimsx.ErrCodeNotFound, fmt.Errorf("no claims for %q", userID))
	}
	return claimsx.Record{
		UserID:      fields[fieldUserID],
		Claims:      fields[fieldClaims],
		CognitoUUID: fields[fieldCognitoUUID],
		DatabaseID:  fields[fieldDatabaseID],
		WorkgroupID: fields[fieldWorkgroupID],
	}, nil
}

// PutRecord implements claimsx.Store. The hash is replaced, not merged.
func (s *Store) PutRecord(ctx context.Context, rec claimsx.Record) error {
	key := s.key(rec.UserID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		fieldUserID, rec.UserID,
		fieldClaims, rec.Claims,
		fieldCognitoUUID, rec.CognitoUUID,
		fieldDatabaseID, rec.DatabaseID,
		fieldWorkgroupID, rec.WorkgroupID,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return claimsx.NewError(claimsx.ErrCodeStoreUnavailable, fmt.Errorf("put claims transaction: %w", err))
	}
	return nil
}

// DeleteRecord implements claimsx.Store.
func (s *Store) DeleteRecord(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return claimsx.NewError(claimsx.ErrCodeStoreUnavailable, fmt.Errorf("del: %w", err))
	}
	return nil
}

func (s *Store) key(userID string) string {
	return s.prefix + userID
}

var _ claimsx.Store = (*Store)(nil)
