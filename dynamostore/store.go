// Package dynamostore keeps claims records in a DynamoDB table keyed by user_id.
package dynamostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cityofaustin/moped-claimsx"
)

const partitionKey = "user_id"

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Store implements claimsx.Store on DynamoDB.
type Store struct {
	api   API
	table string
}

type item struct {
	UserID      string `dynamodbav:"user_id"`
	Claims      string `dynamodbav:"claims"`
	CognitoUUID string `dynamodbav:"cognito_uuid"`
	DatabaseID  string `dynamodbav:"database_id"`
	WorkgroupID string `dynamodbav:"workgroup_id"`
}

// New returns a Store for table.
func New(api API, table string) (*Store, error) {
	if api == nil {
		return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("dynamodb client is required"))
	}
	if table == "" {
		return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("dynamodb table name is required"))
	}
	return &Store{api: api, table: table}, nil
}

// GetRecord implements claimsx.Store.
func (s *Store) GetRecord(ctx context.Context, userID string) (claimsx.Record, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return claimsx.Record{}, claimsx.NewError(claimsx.ErrCodeStoreUnavailable, fmt.Errorf("get item: %w", err))
	}
	if out == nil || len(out.Item) == 0 {
		return claimsx.Record{}, claimsx.NewError(claimsx.ErrCodeNotFound, fmt.Errorf("no claims for %q", userID))
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return claimsx.Record{}, claimsx.NewError(claimsx.ErrCodeInternal, fmt.Errorf("decode item: %w", err))
	}
	return claimsx.Record(it), nil
}

// PutRecord implements claimsx.Store. Existing items are replaced.
func (s *Store) PutRecord(ctx context.Context, rec claimsx.Record) error {
	av, err := attributevalue.MarshalMap(item(rec))
	if err != nil {
		return claimsx.NewError(claimsx.ErrCodeInternal, fmt.Errorf("encode item: %w", err))
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return claimsx.NewError(claimsx.ErrCodeStoreUnavailable, fmt.Errorf("put item: %w", err))
	}
	return nil
}

// DeleteRecord implements claimsx.Store. DynamoDB deletes are idempotent.
func (s *Store) DeleteRecord(ctx context.Context, userID string) error {
	if _, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key(userID),
	}); err != nil {
		return claimsx.NewError(claimsx.ErrCodeStoreUnavailable, fmt.Errorf("delete item: %w", err))
	}
	return nil
}

func key(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKey: &types.AttributeValueMemberS{Value: userID},
	}
}

var _ claimsx.Store = (*Store)(nil)
