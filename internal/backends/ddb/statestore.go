package ddb

import (
	"context"
	"time"

	"availsync/internal/backends/codec"
	"availsync/internal/types"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// StateStore keeps each logical group in its own item; PutItem replaces an item
// atomically.
type StateStore struct {
	table     string
	namespace string
	cli       *dynamodb.Client
}

type availItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	types.AvailabilityRecord
	UpdatedAt int64 `dynamodbav:"updated_at"`
}

type queueItem struct {
	PK    string `dynamodbav:"PK"`
	SK    string `dynamodbav:"SK"`
	Blob  string `dynamodbav:"blob"`
	Count int    `dynamodbav:"count"`
}

func NewStateStore(ctx context.Context, table, namespace string, cli *dynamodb.Client) (*StateStore, error) {
	if err := createTableIfNotExists(ctx, cli, table); err != nil {
		return nil, err
	}
	return &StateStore{table: table, namespace: namespace, cli: cli}, nil
}

func (s *StateStore) key(sk string) map[string]ddbTypes.AttributeValue {
	return map[string]ddbTypes.AttributeValue{
		"PK": &ddbTypes.AttributeValueMemberS{Value: pkDevice(s.namespace)},
		"SK": &ddbTypes.AttributeValueMemberS{Value: sk},
	}
}

func (s *StateStore) LoadAvailability(ctx context.Context) (types.AvailabilityRecord, bool, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            s.key(skAvail()),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return types.AvailabilityRecord{}, false, types.Err(types.ErrStoreAccess, err, "")
	}
	if out.Item == nil {
		return types.AvailabilityRecord{}, false, nil
	}
	var it availItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return types.AvailabilityRecord{}, false, types.Err(types.ErrStoreAccess, err, "")
	}
	return it.AvailabilityRecord, true, nil
}

func (s *StateStore) SaveAvailability(ctx context.Context, rec types.AvailabilityRecord) error {
	av, err := attributevalue.MarshalMap(availItem{
		PK:                 pkDevice(s.namespace),
		SK:                 skAvail(),
		AvailabilityRecord: rec,
		UpdatedAt:          time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	_, err = s.cli.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.table, Item: av})
	if err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

func (s *StateStore) LoadQueue(ctx context.Context) ([]types.PendingAction, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            s.key(skQueue()),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "")
	}
	if out.Item == nil {
		return nil, nil
	}
	var it queueItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "")
	}
	actions, err := codec.DecodeQueue(it.Blob)
	if err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "decode queue")
	}
	return actions, nil
}

func (s *StateStore) SaveQueue(ctx context.Context, actions []types.PendingAction) error {
	blob, err := codec.EncodeQueue(actions)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(queueItem{
		PK:    pkDevice(s.namespace),
		SK:    skQueue(),
		Blob:  blob,
		Count: len(actions),
	})
	if err != nil {
		return err
	}
	_, err = s.cli.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.table, Item: av})
	if err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

// ClearAll deletes both items. Used in tests only.
func (s *StateStore) ClearAll(ctx context.Context) error {
	for _, sk := range []string{skAvail(), skQueue()} {
		if _, err := s.cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &s.table, Key: s.key(sk)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateStore) Close() error { return nil }
