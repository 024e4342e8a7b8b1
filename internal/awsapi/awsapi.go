// Package awsapi defines interfaces for the AWS operations this module uses,
// to enable testing and mocking.
package awsapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// S3API defines the read-only S3 operations used by the object source.
// The engine never issues write or delete calls against the source.
type S3API interface {
	// GetObject retrieves an object or a byte range of it
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)

	// HeadObject retrieves metadata about an object without retrieving the object itself
	HeadObject(
		ctx context.Context,
		params *s3.HeadObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.HeadObjectOutput, error)
}

// DynamoDBAPI defines the DynamoDB operations used by the grant, history,
// and request-status stores.
type DynamoDBAPI interface {
	// GetItem reads a single item
	GetItem(
		ctx context.Context,
		params *dynamodb.GetItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.GetItemOutput, error)

	// PutItem writes a single item
	PutItem(
		ctx context.Context,
		params *dynamodb.PutItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.PutItemOutput, error)

	// DeleteItem deletes a single item
	DeleteItem(
		ctx context.Context,
		params *dynamodb.DeleteItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.DeleteItemOutput, error)

	// UpdateItem updates attributes of a single item
	UpdateItem(
		ctx context.Context,
		params *dynamodb.UpdateItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.UpdateItemOutput, error)

	// Query runs a key-condition query
	Query(
		ctx context.Context,
		params *dynamodb.QueryInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.QueryOutput, error)

	// TransactWriteItems writes multiple items atomically
	TransactWriteItems(
		ctx context.Context,
		params *dynamodb.TransactWriteItemsInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.TransactWriteItemsOutput, error)

	// DescribeTable reports table status, used as a liveness probe
	DescribeTable(
		ctx context.Context,
		params *dynamodb.DescribeTableInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.DescribeTableOutput, error)
}

// STSAPI defines the STS operations used by the identity provider.
type STSAPI interface {
	// AssumeRole obtains temporary credentials for a role
	AssumeRole(
		ctx context.Context,
		params *sts.AssumeRoleInput,
		optFns ...func(*sts.Options),
	) (*sts.AssumeRoleOutput, error)
}

// SecretsManagerAPI defines the Secrets Manager operations used by the
// destination-credential resolver.
type SecretsManagerAPI interface {
	// GetSecretValue retrieves a secret's current value
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// Verify that the AWS clients implement our interfaces
var (
	_ S3API             = (*s3.Client)(nil)
	_ DynamoDBAPI       = (*dynamodb.Client)(nil)
	_ STSAPI            = (*sts.Client)(nil)
	_ SecretsManagerAPI = (*secretsmanager.Client)(nil)
)
