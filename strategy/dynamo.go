package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/internal/awsapi"
)

const historyKeyPrefix = "HIST#"

// DynamoHistory stores the outcome log in a DynamoDB table partitioned by
// protocol and sorted by recording time, so recency queries are a single
// descending range read.
type DynamoHistory struct {
	api   awsapi.DynamoDBAPI
	table string
}

var _ History = (*DynamoHistory)(nil)

// NewDynamoHistory builds a history over the given table. The table needs a
// string partition key pk and a string sort key sk.
func NewDynamoHistory(api awsapi.DynamoDBAPI, table string) (*DynamoHistory, error) {
	if api == nil {
		return nil, ferryerrors.NewError("strategy.dynamo", ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("dynamodb client is required")
	}
	if table == "" {
		return nil, ferryerrors.NewError("strategy.dynamo", ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("table name is required")
	}
	return &DynamoHistory{api: api, table: table}, nil
}

type recordItem struct {
	PK          string `dynamodbav:"pk"`
	SK          string `dynamodbav:"sk"`
	RecordID    string `dynamodbav:"record_id"`
	Protocol    string `dynamodbav:"protocol"`
	SizeBucket  string `dynamodbav:"size_bucket"`
	SizeBytes   int64  `dynamodbav:"size_bytes"`
	Success     bool   `dynamodbav:"success"`
	DurationMS  int64  `dynamodbav:"duration_ms"`
	ChunkSize   int64  `dynamodbav:"chunk_size"`
	Parallelism int    `dynamodbav:"parallelism"`
	Attempts    int    `dynamodbav:"attempts"`
	ErrorClass  string `dynamodbav:"error_class,omitempty"`
	RecordedAt  string `dynamodbav:"recorded_at"`
}

// Append writes the record, refusing to overwrite an existing item so the
// log stays append-only.
func (h *DynamoHistory) Append(ctx context.Context, rec ferrytypes.TransferRecord) error {
	item, err := attributevalue.MarshalMap(recordItem{
		PK:          historyKeyPrefix + string(rec.Protocol),
		SK:          fmt.Sprintf("%s#%s", rec.RecordedAt.UTC().Format(time.RFC3339Nano), rec.ID),
		RecordID:    rec.ID,
		Protocol:    string(rec.Protocol),
		SizeBucket:  string(rec.SizeBucket),
		SizeBytes:   rec.SizeBytes,
		Success:     rec.Success,
		DurationMS:  rec.Duration.Milliseconds(),
		ChunkSize:   rec.ChunkSize,
		Parallelism: rec.Parallelism,
		Attempts:    rec.Attempts,
		ErrorClass:  rec.ErrorClass,
		RecordedAt:  rec.RecordedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = h.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(h.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Recent queries the protocol partition newest first.
func (h *DynamoHistory) Recent(ctx context.Context, protocol ferrytypes.Protocol, limit int) ([]ferrytypes.TransferRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	out, err := h.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(h.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: historyKeyPrefix + string(protocol)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	var items []recordItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}

	records := make([]ferrytypes.TransferRecord, 0, len(items))
	for _, item := range items {
		recordedAt, err := time.Parse(time.RFC3339Nano, item.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", item.RecordedAt, err)
		}
		records = append(records, ferrytypes.TransferRecord{
			ID:          item.RecordID,
			Protocol:    ferrytypes.Protocol(item.Protocol),
			SizeBucket:  ferrytypes.SizeBucket(item.SizeBucket),
			SizeBytes:   item.SizeBytes,
			Success:     item.Success,
			Duration:    time.Duration(item.DurationMS) * time.Millisecond,
			ChunkSize:   item.ChunkSize,
			Parallelism: item.Parallelism,
			Attempts:    item.Attempts,
			ErrorClass:  item.ErrorClass,
			RecordedAt:  recordedAt,
		})
	}
	return records, nil
}
