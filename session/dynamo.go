package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/internal/awsapi"
)

const (
	grantKeyPrefix   = "GRANT#"
	requestKeyPrefix = "REQ#"

	// markerRetention is how long a consumed request ID stays on record
	// after the grant itself is gone.
	markerRetention = 24 * time.Hour
)

// DynamoStore persists grants in a single DynamoDB table keyed by pk.
// Grants and request markers live side by side; the marker blocks request
// ID reuse and outlives the grant by markerRetention.
type DynamoStore struct {
	api   awsapi.DynamoDBAPI
	table string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store over the given table. The table needs a
// string partition key named pk and TTL enabled on the ttl attribute.
func NewDynamoStore(api awsapi.DynamoDBAPI, table string) (*DynamoStore, error) {
	if api == nil {
		return nil, ferryerrors.NewError("session.dynamo", ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("dynamodb client is required")
	}
	if table == "" {
		return nil, ferryerrors.NewError("session.dynamo", ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("table name is required")
	}
	return &DynamoStore{api: api, table: table}, nil
}

type grantItem struct {
	PK          string    `dynamodbav:"pk"`
	Kind        string    `dynamodbav:"kind"`
	GrantID     string    `dynamodbav:"grant_id"`
	RequestID   string    `dynamodbav:"request_id"`
	RequesterID string    `dynamodbav:"requester_id"`
	Region      string    `dynamodbav:"region"`
	IssuedAt    time.Time `dynamodbav:"issued_at"`
	ExpiresAt   time.Time `dynamodbav:"expires_at"`
	TTL         int64     `dynamodbav:"ttl"`
}

type markerItem struct {
	PK      string `dynamodbav:"pk"`
	Kind    string `dynamodbav:"kind"`
	GrantID string `dynamodbav:"grant_id"`
	TTL     int64  `dynamodbav:"ttl"`
}

// Put writes the grant and its request marker in one transaction. Both
// writes are conditional on their key being absent, so a replayed request
// ID cancels the whole transaction.
func (s *DynamoStore) Put(ctx context.Context, grant Grant) error {
	grantAV, err := attributevalue.MarshalMap(grantItem{
		PK:          grantKeyPrefix + grant.ID,
		Kind:        "grant",
		GrantID:     grant.ID,
		RequestID:   grant.RequestID,
		RequesterID: grant.RequesterID,
		Region:      grant.Region,
		IssuedAt:    grant.IssuedAt,
		ExpiresAt:   grant.ExpiresAt,
		TTL:         grant.ExpiresAt.Add(time.Minute).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}
	markerAV, err := attributevalue.MarshalMap(markerItem{
		PK:      requestKeyPrefix + grant.RequestID,
		Kind:    "request_marker",
		GrantID: grant.ID,
		TTL:     grant.IssuedAt.Add(markerRetention).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal request marker: %w", err)
	}

	_, err = s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.table),
				Item:                grantAV,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.table),
				Item:                markerAV,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && markerConditionFailed(canceled) {
			return ferryerrors.ErrDuplicateRequest
		}
		return fmt.Errorf("write grant: %w", err)
	}
	return nil
}

// markerConditionFailed reports whether the request-marker write is what
// canceled the transaction. Reasons are positional, matching TransactItems.
func markerConditionFailed(canceled *types.TransactionCanceledException) bool {
	if len(canceled.CancellationReasons) != 2 {
		return false
	}
	return aws.ToString(canceled.CancellationReasons[1].Code) == "ConditionalCheckFailed"
}

// Get reads the grant with a consistent read so a just-issued grant is
// always visible to validation.
func (s *DynamoStore) Get(ctx context.Context, grantID string) (*Grant, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            pkKey(grantKeyPrefix + grantID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("read grant: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ferryerrors.ErrGrantNotFound
	}

	var item grantItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal grant: %w", err)
	}
	return &Grant{
		ID:          item.GrantID,
		RequestID:   item.RequestID,
		RequesterID: item.RequesterID,
		Region:      item.Region,
		IssuedAt:    item.IssuedAt,
		ExpiresAt:   item.ExpiresAt,
	}, nil
}

// Used checks the request marker with a consistent read, so a replayed
// request ID can be rejected before any credentials are minted.
func (s *DynamoStore) Used(ctx context.Context, requestID string) (bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            pkKey(requestKeyPrefix + requestID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("read request marker: %w", err)
	}
	return len(out.Item) > 0, nil
}

// Delete removes the grant item. The request marker is left to expire on
// its own TTL.
func (s *DynamoStore) Delete(ctx context.Context, grantID string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       pkKey(grantKeyPrefix + grantID),
	})
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	return nil
}

// Ping describes the table as a cheap reachability probe.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", s.table, err)
	}
	return nil
}

func pkKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
	}
}
