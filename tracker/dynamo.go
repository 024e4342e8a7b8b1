package tracker

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/internal/awsapi"
)

// requestKeyPrefix namespaces request status items.
const requestKeyPrefix = "REQUEST#"

// Dynamo mirrors request lifecycles into a DynamoDB status table, one item
// per request id. UpdateItem creates the item on the first transition.
type Dynamo struct {
	api   awsapi.DynamoDBAPI
	table string
	now   func() time.Time
}

// DynamoOption adjusts a Dynamo tracker.
type DynamoOption func(*Dynamo)

// WithClock replaces the time source.
func WithClock(now func() time.Time) DynamoOption {
	return func(d *Dynamo) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDynamo returns a tracker writing to the given status table.
func NewDynamo(api awsapi.DynamoDBAPI, table string, opts ...DynamoOption) (*Dynamo, error) {
	const op = "tracker.new"
	if api == nil {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("dynamodb client is required")
	}
	if table == "" {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("status table name is required")
	}
	d := &Dynamo{api: api, table: table, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

var _ Tracker = (*Dynamo)(nil)

// MarkState upserts the request's current state and transition timestamp.
func (d *Dynamo) MarkState(ctx context.Context, requestID string, state ferrytypes.TransferState) error {
	const op = "tracker.mark_state"
	_, err := d.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(d.table),
		Key:              requestKey(requestID),
		UpdateExpression: aws.String("SET #state = :state, updated_at = :now"),
		ExpressionAttributeNames: map[string]string{
			"#state": "state",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":state": &types.AttributeValueMemberS{Value: string(state)},
			":now":   &types.AttributeValueMemberS{Value: d.now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return ferryerrors.NewError(op, ferryerrors.KindInternal, err).
			WithRequestID(requestID).
			WithMessage("updating request state")
	}
	return nil
}

// Notify writes the terminal summary onto the request item.
func (d *Dynamo) Notify(ctx context.Context, summary ferrytypes.OutcomeSummary) error {
	const op = "tracker.notify"
	_, err := d.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.table),
		Key:       requestKey(summary.RequestID),
		UpdateExpression: aws.String(
			"SET #state = :state, outcome = :state, bytes_transferred = :bytes, " +
				"duration_ms = :duration, checksum = :checksum, error_kind = :error_kind, completed_at = :now",
		),
		ExpressionAttributeNames: map[string]string{
			"#state": "state",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":state":      &types.AttributeValueMemberS{Value: string(summary.Outcome)},
			":bytes":      &types.AttributeValueMemberN{Value: strconv.FormatInt(summary.Bytes, 10)},
			":duration":   &types.AttributeValueMemberN{Value: strconv.FormatInt(summary.Duration.Milliseconds(), 10)},
			":checksum":   &types.AttributeValueMemberS{Value: summary.Checksum},
			":error_kind": &types.AttributeValueMemberS{Value: summary.ErrorKind},
			":now":        &types.AttributeValueMemberS{Value: d.now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return ferryerrors.NewError(op, ferryerrors.KindInternal, err).
			WithRequestID(summary.RequestID).
			WithMessage("recording terminal outcome")
	}
	return nil
}

func requestKey(requestID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: requestKeyPrefix + requestID},
	}
}
