package dynamostore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityofaustin/moped-claimsx"
)

type fakeAPI struct {
	items map[string]map[string]types.AttributeValue
	err   error
	gets  []*dynamodb.GetItemInput
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(k map[string]types.AttributeValue) string {
	return k[partitionKey].(*types.AttributeValueMemberS).Value
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.gets = append(f.gets, in)
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestStorePutGetDelete(t *testing.T) {
	api := newFakeAPI()
	store, err := New(api, "moped-claims")
	require.NoError(t, err)
	ctx := context.Background()

	rec := claimsx.Record{
		UserID:      "jane@austintexas.gov",
		Claims:      "gAAAAAB-cipher",
		CognitoUUID: "5f0e",
		DatabaseID:  "4",
		WorkgroupID: "1",
	}
	require.NoError(t, store.PutRecord(ctx, rec))

	stored := api.items["jane@austintexas.gov"]
	require.NotNil(t, stored)
	for _, attr := range []string{"user_id", "claims", "cognito_uuid", "database_id", "workgroup_id"} {
		_, ok := stored[attr].(*types.AttributeValueMemberS)
		assert.True(t, ok, "attribute %s should be a string", attr)
	}

	got, err := store.GetRecord(ctx, rec.UserID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	require.Len(t, api.gets, 1)
	assert.Equal(t, "moped-claims", aws.ToString(api.gets[0].TableName))
	assert.True(t, aws.ToBool(api.gets[0].ConsistentRead))

	require.NoError(t, store.DeleteRecord(ctx, rec.UserID))
	require.NoError(t, store.DeleteRecord(ctx, rec.UserID))
	_, err = store.GetRecord(ctx, rec.UserID)
	assert.True(t, claimsx.IsNotFound(err), "got %v", err)
}

func TestStoreErrors(t *testing.T) {
	api := newFakeAPI()
	store, err := New(api, "moped-claims")
	require.NoError(t, err)
	ctx := context.Background()

	api.items["bad"] = map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: "bad"},
		"claims":  &types.AttributeValueMemberBOOL{Value: true},
	}
	_, err = store.GetRecord(ctx, "bad")
	assert.Equal(t, claimsx.ErrCodeInternal, claimsx.CodeOf(err))

	outage := errors.New("RequestTimeout")
	api.err = outage
	_, err = store.GetRecord(ctx, "bad")
	assert.Equal(t, claimsx.ErrCodeStoreUnavailable, claimsx.CodeOf(err))
	assert.ErrorIs(t, err, outage)
	assert.Equal(t, claimsx.ErrCodeStoreUnavailable, claimsx.CodeOf(store.PutRecord(ctx, claimsx.Record{UserID: "x"})))
	assert.Equal(t, claimsx.ErrCodeStoreUnavailable, claimsx.CodeOf(store.DeleteRecord(ctx, "x")))
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, "t")
	assert.Equal(t, claimsx.ErrCodeConfiguration, claimsx.CodeOf(err))
	_, err = New(newFakeAPI(), "")
	assert.Equal(t, claimsx.ErrCodeConfiguration, claimsx.CodeOf(err))
}
