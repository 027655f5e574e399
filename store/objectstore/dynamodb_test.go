package objectstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/otic/vision/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB table keyed by "checksum" that
// evaluates the two condition expressions DynamoRegistry issues.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]string // checksum -> product_id
	err   error
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]string)}
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	key := params.Item["checksum"].(*types.AttributeValueMemberS).Value
	pid := params.Item["product_id"].(*types.AttributeValueMemberS).Value
	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(checksum) OR product_id = :pid" {
		want := params.ExpressionAttributeValues[":pid"].(*types.AttributeValueMemberS).Value
		if owner, ok := m.items[key]; ok && owner != want {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	m.items[key] = pid
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	key := params.Key["checksum"].(*types.AttributeValueMemberS).Value
	if aws.ToString(params.ConditionExpression) == "product_id = :pid" {
		want := params.ExpressionAttributeValues[":pid"].(*types.AttributeValueMemberS).Value
		if owner, ok := m.items[key]; !ok || owner != want {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	delete(m.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoRegistry(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	reg := NewDynamoRegistry(client, "checksums")

	require.NoError(t, reg.Claim(ctx, 0xdeadbeef, "p1"))
	require.NoError(t, reg.Claim(ctx, 0xdeadbeef, "p1"))
	assert.Equal(t, "p1", client.items["deadbeef"])

	assert.ErrorIs(t, reg.Claim(ctx, 0xdeadbeef, "p2"), store.ErrConflict)

	// Releasing someone else's claim is a no-op.
	require.NoError(t, reg.Release(ctx, 0xdeadbeef, "p2"))
	assert.Equal(t, "p1", client.items["deadbeef"])

	require.NoError(t, reg.Release(ctx, 0xdeadbeef, "p1"))
	require.NoError(t, reg.Release(ctx, 0xdeadbeef, "p1"))
	require.NoError(t, reg.Claim(ctx, 0xdeadbeef, "p2"))

	require.NoError(t, reg.Claim(ctx, 0x1, "p3"))
	assert.Equal(t, "p3", client.items["00000001"])
}

func TestDynamoRegistry_Errors(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	client.err = errors.New("throttled")
	reg := NewDynamoRegistry(client, "checksums")

	err := reg.Claim(ctx, 1, "p1")
	assert.ErrorIs(t, err, client.err)
	assert.NotErrorIs(t, err, store.ErrConflict)
	assert.ErrorIs(t, reg.Release(ctx, 1, "p1"), client.err)
}

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.Claim(ctx, 7, "a"))
	assert.ErrorIs(t, reg.Claim(ctx, 7, "b"), store.ErrConflict)
	require.NoError(t, reg.Release(ctx, 7, "b"))
	owner, ok := reg.Owner(7)
	require.True(t, ok)
	assert.Equal(t, "a", owner)

	require.NoError(t, reg.Release(ctx, 7, "a"))
	_, ok = reg.Owner(7)
	assert.False(t, ok)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, reg.Claim(canceled, 8, "a"), context.Canceled)
}
