package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/otic/vision/store"
)

// DDBClient is the subset of the DynamoDB API used by DynamoRegistry.
// *dynamodb.Client satisfies it.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoRegistry is a ChecksumRegistry on a DynamoDB table, safe for any
// number of writer processes. Conditional writes provide the
// compare-and-swap that object storage lacks.
//
// Table schema:
//   - Partition key: checksum (string, 8 lowercase hex digits)
//   - Attribute: product_id (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name product-checksums \
//	  --attribute-definitions AttributeName=checksum,AttributeType=S \
//	  --key-schema AttributeName=checksum,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DynamoRegistry struct {
	client DDBClient
	table  string
}

var _ ChecksumRegistry = (*DynamoRegistry)(nil)

// NewDynamoRegistry creates a registry on table.
func NewDynamoRegistry(client DDBClient, table string) *DynamoRegistry {
	return &DynamoRegistry{client: client, table: table}
}

func checksumKey(checksum uint32) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"checksum": &types.AttributeValueMemberS{Value: fmt.Sprintf("%08x", checksum)},
	}
}

// Claim implements ChecksumRegistry.
func (r *DynamoRegistry) Claim(ctx context.Context, checksum uint32, productID string) error {
	item := checksumKey(checksum)
	item["product_id"] = &types.AttributeValueMemberS{Value: productID}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(checksum) OR product_id = :pid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: productID},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: checksum %08x", store.ErrConflict, checksum)
		}
		return fmt.Errorf("dynamodb claim: %w", err)
	}
	return nil
}

// Release implements ChecksumRegistry.
func (r *DynamoRegistry) Release(ctx context.Context, checksum uint32, productID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.table),
		Key:                 checksumKey(checksum),
		ConditionExpression: aws.String("product_id = :pid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: productID},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil
		}
		return fmt.Errorf("dynamodb release: %w", err)
	}
	return nil
}
