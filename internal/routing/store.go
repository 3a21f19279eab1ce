package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrNotFound indicates no routing entry exists under either the
// composite or legacy key.
var ErrNotFound = errors.New("routing: entry not found")

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Store point-reads routing entries from DynamoDB.
type Store struct {
	client    dynamoAPI
	tableName string
}

// NewStore builds a Store backed by the provided DynamoDB client.
func NewStore(client dynamoAPI, tableName string) *Store {
	if client == nil {
		panic("routing: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("routing: table name cannot be empty")
	}
	return &Store{client: client, tableName: tableName}
}

// CompositeKey builds the "{environment}#{compilerId}" key the router
// table is primarily keyed by.
func CompositeKey(environment, compilerID string) string {
	return fmt.Sprintf("%s#%s", environment, compilerID)
}

// Lookup reads an entry by the composite key, falling back to the bare
// (legacy) compiler id if the composite key is missing.
func (s *Store) Lookup(ctx context.Context, environment, compilerID string) (*Entry, error) {
	entry, err := s.getByKey(ctx, CompositeKey(environment, compilerID))
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.getByKey(ctx, compilerID)
}

func (s *Store) getByKey(ctx context.Context, key string) (*Entry, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"compilerId": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("routing: get item %q: %w", key, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var entry Entry
	if err := attributevalue.UnmarshalMap(out.Item, &entry); err != nil {
		return nil, fmt.Errorf("routing: decode item %q: %w", key, err)
	}
	return &entry, nil
}
