package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stash/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the index needs.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// uploadItem is a single item in the uploads table, keyed by "key".
type uploadItem struct {
	Key          string `dynamodbav:"key"`
	URL          string `dynamodbav:"url"`
	Size         int64  `dynamodbav:"size"`
	ContentType  string `dynamodbav:"contentType"`
	OriginalName string `dynamodbav:"originalName"`
	Backend      string `dynamodbav:"backend"`
	Digest       string `dynamodbav:"digest,omitempty"`
	IngestedAt   string `dynamodbav:"ingestedAt"`
}

// DynamoIndex keeps upload metadata in a DynamoDB table. It suits function
// deployments, which have no durable local disk for SQLite.
type DynamoIndex struct {
	client DynamoAPI
	table  string
}

// NewDynamoIndex returns an index writing to table through client.
func NewDynamoIndex(client DynamoAPI, table string) *DynamoIndex {
	return &DynamoIndex{client: client, table: table}
}

// OpenDynamo builds a DynamoDB client from the default AWS configuration
// chain (environment, shared config, instance role).
func OpenDynamo(ctx context.Context, table string) (*DynamoIndex, error) {
	if table == "" {
		return nil, errors.New("dynamodb table name must not be empty")
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewDynamoIndex(dynamodb.NewFromConfig(cfg), table), nil
}

func (x *DynamoIndex) Record(ctx context.Context, ref storage.StoredObjectRef) error {
	item, err := attributevalue.MarshalMap(uploadItem{
		Key:          ref.Key,
		URL:          ref.URL,
		Size:         ref.Size,
		ContentType:  ref.ContentType,
		OriginalName: ref.OriginalName,
		Backend:      ref.Backend,
		Digest:       ref.Digest,
		IngestedAt:   ref.IngestedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal upload %q: %w", ref.Key, err)
	}

	if _, err := x.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(x.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("record upload %q: %w", ref.Key, err)
	}
	return nil
}

func (x *DynamoIndex) Lookup(ctx context.Context, key string) (storage.StoredObjectRef, error) {
	out, err := x.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(x.table),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return storage.StoredObjectRef{}, fmt.Errorf("lookup upload %q: %w", key, err)
	}
	if len(out.Item) == 0 {
		return storage.StoredObjectRef{}, ErrNotFound
	}

	var item uploadItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return storage.StoredObjectRef{}, fmt.Errorf("unmarshal upload %q: %w", key, err)
	}

	ingestedAt, err := time.Parse(time.RFC3339Nano, item.IngestedAt)
	if err != nil {
		return storage.StoredObjectRef{}, fmt.Errorf("parse ingestion time of %q: %w", key, err)
	}

	return storage.StoredObjectRef{
		Key:          item.Key,
		URL:          item.URL,
		Size:         item.Size,
		ContentType:  item.ContentType,
		OriginalName: item.OriginalName,
		Backend:      item.Backend,
		Digest:       item.Digest,
		IngestedAt:   ingestedAt.UTC(),
	}, nil
}

// Close is a no-op; the DynamoDB client holds no resources to release.
func (x *DynamoIndex) Close() error {
	return nil
}
