package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/promptlab/promptlab/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// dynamoTimeLayout is fixed width: RFC3339Nano trims trailing fractional
// zeros, which makes a whole-second instant compare lexicographically greater
// than a later fractional instant in the same second. The condition expression
// relies on byte order matching chronological order, so every digit is kept.
const dynamoTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dynamoRecord is the persisted shape. CreatedAt is a fixed-width timestamp
// string so the latest-wins condition expression can compare it
// lexicographically.
type dynamoRecord struct {
	EntityID    string `dynamodbav:"entityId"`
	State       string `dynamodbav:"state"`
	ID          string `dynamodbav:"id"`
	Kind        string `dynamodbav:"kind"`
	CreatedAt   string `dynamodbav:"createdAt"`
	WasReset    bool   `dynamodbav:"wasReset,omitempty"`
	WasRestored bool   `dynamodbav:"wasRestored,omitempty"`
	Payload     []byte `dynamodbav:"payload,omitempty"`
}

// DynamoStore is a Store backed by a DynamoDB table keyed
// (entityId, state). Latest-wins is enforced server side through a
// conditional put; SupersedeAndInsert rides a transaction.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("history: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("history: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{client: client, tableName: tableName, logger: logger}
}

var _ Store = (*DynamoStore)(nil)

func (s *DynamoStore) Upsert(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(toDynamo(record))
	if err != nil {
		return fmt.Errorf("history: failed to marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(entityId) OR createdAt <= :createdAt"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":createdAt": &types.AttributeValueMemberS{Value: record.CreatedAt.UTC().Format(dynamoTimeLayout)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			// An equal-or-newer record already holds the slot; replaying an
			// older record is a no-op.
			return nil
		}
		return fmt.Errorf("history: failed to persist record: %w", err)
	}
	return nil
}

func (s *DynamoStore) QueryByEntity(ctx context.Context, entityID string) ([]*Record, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("entityId = :entityId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":entityId": &types.AttributeValueMemberS{Value: entityID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: failed to query records: %w", err)
	}
	return unmarshalItems(out.Items)
}

func (s *DynamoStore) SupersedeAndInsert(ctx context.Context, outgoing, incoming *Record) error {
	superseded := outgoing.Clone()
	installed := incoming.Clone()
	if superseded == nil || installed == nil {
		return fmt.Errorf("history: supersede needs both records: %w", ErrInvalidRecord)
	}
	superseded.State = StateLast
	installed.State = StateCurrent
	if err := superseded.Validate(); err != nil {
		return err
	}
	if err := installed.Validate(); err != nil {
		return err
	}

	lastItem, err := attributevalue.MarshalMap(toDynamo(superseded))
	if err != nil {
		return fmt.Errorf("history: failed to marshal record: %w", err)
	}
	currentItem, err := attributevalue.MarshalMap(toDynamo(installed))
	if err != nil {
		return fmt.Errorf("history: failed to marshal record: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(s.tableName), Item: lastItem}},
			{Put: &types.Put{TableName: aws.String(s.tableName), Item: currentItem}},
		},
	})
	if err != nil {
		return fmt.Errorf("history: supersede transaction failed: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, entityID string, state State) error {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"entityId": &types.AttributeValueMemberS{Value: entityID},
			"state":    &types.AttributeValueMemberS{Value: string(state)},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return fmt.Errorf("history: failed to delete record: %w", err)
	}
	if len(out.Attributes) == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *DynamoStore) List(ctx context.Context) ([]*Record, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return nil, fmt.Errorf("history: failed to scan records: %w", err)
	}
	return unmarshalItems(out.Items)
}

func toDynamo(r *Record) *dynamoRecord {
	return &dynamoRecord{
		EntityID:    r.EntityID,
		State:       string(r.State),
		ID:          r.ID,
		Kind:        string(r.Kind),
		CreatedAt:   r.CreatedAt.UTC().Format(dynamoTimeLayout),
		WasReset:    r.WasReset,
		WasRestored: r.WasRestored,
		Payload:     r.Payload,
	}
}

func fromDynamo(d *dynamoRecord) (*Record, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("history: invalid createdAt %q: %w", d.CreatedAt, err)
	}
	return &Record{
		ID:          d.ID,
		EntityID:    d.EntityID,
		Kind:        Kind(d.Kind),
		State:       State(d.State),
		CreatedAt:   createdAt,
		WasReset:    d.WasReset,
		WasRestored: d.WasRestored,
		Payload:     d.Payload,
	}, nil
}

func unmarshalItems(items []map[string]types.AttributeValue) ([]*Record, error) {
	out := make([]*Record, 0, len(items))
	for _, item := range items {
		var d dynamoRecord
		if err := attributevalue.UnmarshalMap(item, &d); err != nil {
			return nil, fmt.Errorf("history: failed to decode record: %w", err)
		}
		record, err := fromDynamo(&d)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}
