package bookingstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// dynamoItem adds the table TTL attribute to a record.
type dynamoItem struct {
	Record
	ExpiresAt int64 `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore keeps one item per contact key in a DynamoDB table whose
// partition key is "contactKey".
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, ttl time.Duration) *DynamoStore {
	if client == nil {
		panic("bookingstore: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("bookingstore: table name cannot be empty")
	}
	return &DynamoStore{client: client, tableName: tableName, ttl: ttl}
}

// RecordBooking puts the item unconditionally so the latest webhook wins.
func (s *DynamoStore) RecordBooking(ctx context.Context, key string, rec Record) error {
	rec.Key = key
	item := dynamoItem{Record: rec}
	if s.ttl > 0 {
		item.ExpiresAt = time.Now().Add(s.ttl).Unix()
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("bookingstore: marshal item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("bookingstore: put item: %w", err)
	}
	return nil
}

// HasBooking reports whether an item exists for key.
func (s *DynamoStore) HasBooking(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.GetBooking(ctx, key)
	return ok, err
}

// GetBooking fetches the item for key with a consistent read.
func (s *DynamoStore) GetBooking(ctx context.Context, key string) (*Record, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"contactKey": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("bookingstore: get item: %w", err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, fmt.Errorf("bookingstore: decode item: %w", err)
	}
	if item.ExpiresAt > 0 && time.Now().Unix() >= item.ExpiresAt {
		// TTL deletion in DynamoDB is lazy.
		return nil, false, nil
	}
	return &item.Record, true, nil
}
