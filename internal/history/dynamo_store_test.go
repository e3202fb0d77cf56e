package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type fakeDynamoAPI struct {
	putInput      *dynamodb.PutItemInput
	putErr        error
	deleteOutput  *dynamodb.DeleteItemOutput
	queryOutput   *dynamodb.QueryOutput
	transactInput *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamoAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInput = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoAPI) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.deleteOutput != nil {
		return f.deleteOutput, nil
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamoAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.queryOutput != nil {
		return f.queryOutput, nil
	}
	return &dynamodb.QueryOutput{}, nil
}

func (f *fakeDynamoAPI) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, nil
}

func (f *fakeDynamoAPI) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transactInput = in
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func TestDynamoUpsertConditionalPut(t *testing.T) {
	api := &fakeDynamoAPI{}
	store := NewDynamoStore(api, "history", nil)

	record := testRecord("recipe-1", StateCurrent, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), `{"v":1}`)
	if err := store.Upsert(context.Background(), record); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if api.putInput == nil {
		t.Fatal("no PutItem issued")
	}
	if api.putInput.ConditionExpression == nil || *api.putInput.ConditionExpression == "" {
		t.Error("latest-wins must be guarded by a condition expression")
	}
	if _, ok := api.putInput.ExpressionAttributeValues[":createdAt"]; !ok {
		t.Error("condition expression missing :createdAt value")
	}
}

func TestDynamoUpsertOlderReplayIsNoOp(t *testing.T) {
	api := &fakeDynamoAPI{putErr: &types.ConditionalCheckFailedException{}}
	store := NewDynamoStore(api, "history", nil)

	record := testRecord("recipe-1", StateCurrent, time.Now().UTC(), `{"v":1}`)
	if err := store.Upsert(context.Background(), record); err != nil {
		t.Fatalf("Upsert with failed condition should be a no-op, got %v", err)
	}
}

func TestDynamoTimestampOrderIsLexicographic(t *testing.T) {
	// The conditional put compares createdAt strings bytewise, so a
	// whole-second instant must sort before any later fractional instant in
	// the same second. A trimming layout like RFC3339Nano breaks this
	// ("...05Z" > "...05.5Z" bytewise) and lets an older replay win the slot.
	wholeSecond := time.Date(2026, 9, 1, 10, 0, 5, 0, time.UTC)
	cases := []struct {
		name  string
		older time.Time
		newer time.Time
	}{
		{"whole second before fractional", wholeSecond, wholeSecond.Add(500 * time.Millisecond)},
		{"fractional before next whole second", wholeSecond.Add(500 * time.Millisecond), wholeSecond.Add(time.Second)},
		{"nanosecond before microsecond", wholeSecond.Add(time.Nanosecond), wholeSecond.Add(time.Microsecond)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			older := tc.older.Format(dynamoTimeLayout)
			newer := tc.newer.Format(dynamoTimeLayout)
			if len(older) != len(newer) {
				t.Fatalf("layout is not fixed width: %q vs %q", older, newer)
			}
			if older >= newer {
				t.Errorf("stored %q >= %q, an older replay would overwrite the newer record", older, newer)
			}
		})
	}
}

func TestDynamoRecordRoundTripKeepsCreatedAt(t *testing.T) {
	created := time.Date(2026, 9, 1, 10, 0, 5, 0, time.UTC)
	record := testRecord("recipe-1", StateCurrent, created, `{"v":1}`)

	got, err := fromDynamo(toDynamo(record))
	if err != nil {
		t.Fatalf("fromDynamo: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
}

func TestDynamoDeleteMissing(t *testing.T) {
	api := &fakeDynamoAPI{deleteOutput: &dynamodb.DeleteItemOutput{}}
	store := NewDynamoStore(api, "history", nil)

	if err := store.Delete(context.Background(), "ghost", StateCurrent); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Delete = %v, want ErrRecordNotFound", err)
	}
}

func TestDynamoSupersedeUsesTransaction(t *testing.T) {
	api := &fakeDynamoAPI{}
	store := NewDynamoStore(api, "history", nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	outgoing := testRecord("recipe-1", StateCurrent, base, `{"v":"out"}`)
	incoming := testRecord("recipe-1", StateCurrent, base.Add(time.Minute), `{"v":"in"}`)

	if err := store.SupersedeAndInsert(context.Background(), outgoing, incoming); err != nil {
		t.Fatalf("SupersedeAndInsert: %v", err)
	}
	if api.transactInput == nil || len(api.transactInput.TransactItems) != 2 {
		t.Fatalf("expected one transaction with two puts, got %+v", api.transactInput)
	}

	states := make([]string, 0, 2)
	for _, item := range api.transactInput.TransactItems {
		if item.Put == nil {
			t.Fatal("transaction item is not a Put")
		}
		state, ok := item.Put.Item["state"].(*types.AttributeValueMemberS)
		if !ok {
			t.Fatal("put item missing state attribute")
		}
		states = append(states, state.Value)
	}
	if states[0] != string(StateLast) || states[1] != string(StateCurrent) {
		t.Errorf("states = %v, want [last current]", states)
	}
}
