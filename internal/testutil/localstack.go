// Package testutil starts LocalStack containers for integration tests and
// provisions the buckets, tables, and secrets the AWS-backed stores expect.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Stack bundles LocalStack-backed AWS clients for one integration test.
type Stack struct {
	S3      *s3.Client
	Dynamo  *dynamodb.Client
	Secrets *secretsmanager.Client

	container *localstack.LocalStackContainer
	endpoint  string
	region    string
}

// SetupLocalStack starts a LocalStack container and returns clients bound to
// it. The cleanup func terminates the container and should be deferred.
func SetupLocalStack(t *testing.T) (*Stack, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	stack, err := StartLocalStack(ctx)
	if err != nil {
		t.Fatalf("Failed to start LocalStack: %v", err)
	}

	cleanup := func() {
		if err := stack.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate LocalStack container: %v", err)
		}
	}
	return stack, cleanup
}

// StartLocalStack runs a LocalStack container and wires S3, DynamoDB, and
// Secrets Manager clients to its edge endpoint.
func StartLocalStack(ctx context.Context) (*Stack, error) {
	container, err := localstack.Run(ctx,
		"localstack/localstack:latest",
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").
				WithPort("4566").
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start localstack: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("resolve container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("resolve container port: %w", err)
	}

	endpoint := fmt.Sprintf("http://%s:%s", host, port.Port())
	region := "us-east-1"

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     "test",
					SecretAccessKey: "test",
				}, nil
			})),
	)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Stack{
		S3: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(endpoint)
		}),
		Dynamo: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}),
		Secrets: secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}),
		container: container,
		endpoint:  endpoint,
		region:    region,
	}, nil
}

// Endpoint returns the LocalStack edge endpoint URL.
func (s *Stack) Endpoint() string {
	return s.endpoint
}

// Region returns the region the clients are bound to.
func (s *Stack) Region() string {
	return s.region
}

// Terminate stops and removes the LocalStack container.
func (s *Stack) Terminate(ctx context.Context) error {
	if s.container == nil {
		return nil
	}
	if err := s.container.Terminate(ctx); err != nil {
		return fmt.Errorf("terminate localstack: %w", err)
	}
	return nil
}

// CreateBucket creates an S3 bucket.
func CreateBucket(ctx context.Context, client *s3.Client, bucket string) error {
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// PutObject uploads one object and returns the ETag S3 assigned to it.
func PutObject(ctx context.Context, client *s3.Client, bucket, key string, body []byte, contentType string) (string, error) {
	out, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return aws.ToString(out.ETag), nil
}

// CreateGrantTable provisions the single-key table the grant store expects,
// with TTL enabled on the ttl attribute.
func CreateGrantTable(ctx context.Context, client *dynamodb.Client, table string) error {
	if err := createTable(ctx, client, table, false); err != nil {
		return err
	}
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String("ttl"),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("enable ttl on %s: %w", table, err)
	}
	return nil
}

// CreateHistoryTable provisions the pk/sk table the outcome history expects.
func CreateHistoryTable(ctx context.Context, client *dynamodb.Client, table string) error {
	return createTable(ctx, client, table, true)
}

// CreateStatusTable provisions the single-key table the status tracker
// expects.
func CreateStatusTable(ctx context.Context, client *dynamodb.Client, table string) error {
	return createTable(ctx, client, table, false)
}

func createTable(ctx context.Context, client *dynamodb.Client, table string, withSortKey bool) error {
	attrs := []types.AttributeDefinition{
		{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
	}
	keys := []types.KeySchemaElement{
		{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
	}
	if withSortKey {
		attrs = append(attrs, types.AttributeDefinition{
			AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS,
		})
		keys = append(keys, types.KeySchemaElement{
			AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange,
		})
	}

	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(table),
		AttributeDefinitions: attrs,
		KeySchema:            keys,
		BillingMode:          types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	}, time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", table, err)
	}
	return nil
}

// CreateSecret stores a JSON credentials document in Secrets Manager.
func CreateSecret(ctx context.Context, client *secretsmanager.Client, name, document string) error {
	_, err := client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(document),
	})
	if err != nil {
		return fmt.Errorf("create secret %s: %w", name, err)
	}
	return nil
}
