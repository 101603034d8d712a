package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dgduncan/go-query-cache/tokens"
)

// Client is the subset of the DynamoDB API used by the store.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Config defines the configuration options for the DynamoDB token store.
type Config struct {
	DeleteExpiredItems bool // Controls if the expired_at TTL property is written so DynamoDB deletes expired items

	ItemExpiration time.Duration // How long a stored token stays readable
	Table          string
}

// Store implements tokens.Store using Amazon DynamoDB as the storage
// backend, one item per key.
type Store struct {
	client Client

	table      string
	expiration time.Duration
	ttl        bool
	now        func() time.Time
}

type tokenItem struct {
	Key       string `json:"key" dynamodbav:"key"`
	Value     string `json:"value" dynamodbav:"value"`
	UpdatedAt int64  `json:"updated_at" dynamodbav:"updated_at"`
	ExpiredAt int64  `json:"expired_at,omitempty" dynamodbav:"expired_at,omitempty"`
	ValidTo   int64  `json:"valid_to" dynamodbav:"valid_to"`
}

func keyAttr(k string) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.Marshal(k)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{"key": key}, nil
}

// Get retrieves the value stored under k. Items past their validity are
// reported as missing even before DynamoDB's TTL sweep removes them.
func (s *Store) Get(ctx context.Context, k string) (string, error) {
	key, err := keyAttr(k)
	if err != nil {
		return "", err
	}

	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		Key:            key,
		ConsistentRead: aws.Bool(true),
		TableName:      aws.String(s.table),
	})
	if err != nil {
		return "", err
	}

	if output.Item == nil {
		return "", tokens.ErrNoToken
	}

	var item tokenItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return "", err
	}

	if s.now().UTC().Unix() >= item.ValidTo {
		return "", tokens.ErrNoToken
	}

	return item.Value, nil
}

// Set stores v under k, replacing any previous item.
func (s *Store) Set(ctx context.Context, k, v string) error {
	now := s.now().UTC()
	validTo := now.Add(s.expiration).Unix()

	i := tokenItem{
		Key:       k,
		Value:     v,
		UpdatedAt: now.Unix(),
		ValidTo:   validTo,
	}
	if s.ttl {
		i.ExpiredAt = validTo
	}

	av, err := attributevalue.MarshalMap(i)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	return err
}

// Delete removes the item for k.
func (s *Store) Delete(ctx context.Context, k string) error {
	key, err := keyAttr(k)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key,
	})
	return err
}

// New creates a new DynamoDB token store with the provided configuration.
// Returns an error if the client is nil or the table name is missing.
func New(_ context.Context, client Client, config *Config) (*Store, error) {
	if client == nil {
		return nil, tokens.ValidationError{
			Reason: "nil client",
		}
	}
	if config == nil || config.Table == "" {
		return nil, tokens.ValidationError{
			Reason: "missing table",
		}
	}

	itemExpiration := config.ItemExpiration
	if itemExpiration == 0 {
		itemExpiration = tokens.DefaultItemExpiration
	}

	return &Store{
		client: client,

		table:      config.Table,
		expiration: itemExpiration,
		ttl:        config.DeleteExpiredItems,
		now:        time.Now,
	}, nil
}
