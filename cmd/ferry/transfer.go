package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fileferry/ferry"
	"github.com/fileferry/ferry/creds"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/session"
	"github.com/fileferry/ferry/source"
	"github.com/fileferry/ferry/strategy"
	"github.com/fileferry/ferry/tracker"
)

var transferFlags struct {
	bucket    string
	key       string
	protocol  string
	host      string
	port      int
	path      string
	username  string
	password  string
	keyFile   string
	secretRef string

	requester string
	requestID string
	grantID   string

	region        string
	roleARN       string
	sessionsTable string
	historyTable  string
	requestsTable string
	timeout       time.Duration
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Execute one transfer request",
	Long: "Authorizes the request, plans a strategy from the object size, streams\n" +
		"the object to the destination, and verifies the end-to-end checksum.",
	Run: func(cmd *cobra.Command, args []string) {
		req, err := buildRequest()
		cobra.CheckErr(err)

		engine, err := buildEngine(cmd.Context())
		cobra.CheckErr(err)

		result, err := engine.Execute(cmd.Context(), req)
		printResult(result)
		cobra.CheckErr(err)
	},
}

func init() {
	f := transferCmd.Flags()
	f.StringVar(&transferFlags.bucket, "bucket", "", "source bucket")
	f.StringVar(&transferFlags.key, "key", "", "source object key")
	f.StringVar(&transferFlags.protocol, "protocol", "sftp", "destination protocol: ftp, ftps, or sftp")
	f.StringVar(&transferFlags.host, "host", "", "destination host")
	f.IntVar(&transferFlags.port, "port", 0, "destination port (0 selects the protocol default)")
	f.StringVar(&transferFlags.path, "path", "", "destination file path")
	f.StringVar(&transferFlags.username, "username", "", "destination account name (or FERRY_DEST_USERNAME)")
	f.StringVar(&transferFlags.password, "password", "", "destination account password (or FERRY_DEST_PASSWORD)")
	f.StringVar(&transferFlags.keyFile, "private-key", "", "PEM private key file for SFTP")
	f.StringVar(&transferFlags.secretRef, "secret-ref", "", "Secrets Manager secret holding destination credentials (or FERRY_DEST_SECRET)")
	f.StringVar(&transferFlags.requester, "requester", "", "requester identity (or FERRY_REQUESTER)")
	f.StringVar(&transferFlags.requestID, "request-id", "", "external request/ticket id, single use")
	f.StringVar(&transferFlags.grantID, "grant-id", "", "pre-issued grant id")
	f.StringVar(&transferFlags.region, "region", "", "storage region (or AWS_REGION)")
	f.StringVar(&transferFlags.roleARN, "role-arn", "", "role to assume for source reads (or FERRY_ROLE_ARN)")
	f.StringVar(&transferFlags.sessionsTable, "sessions-table", "", "DynamoDB grant table (or FERRY_SESSIONS_TABLE; in-memory when empty)")
	f.StringVar(&transferFlags.historyTable, "history-table", "", "DynamoDB outcome history table (or FERRY_HISTORY_TABLE; in-memory when empty)")
	f.StringVar(&transferFlags.requestsTable, "requests-table", "", "DynamoDB request status table (or FERRY_REQUESTS_TABLE; tracking off when empty)")
	f.DurationVar(&transferFlags.timeout, "timeout", 0, "job deadline (default 1h)")

	cobra.CheckErr(transferCmd.MarkFlagRequired("bucket"))
	cobra.CheckErr(transferCmd.MarkFlagRequired("key"))
	cobra.CheckErr(transferCmd.MarkFlagRequired("host"))
	cobra.CheckErr(transferCmd.MarkFlagRequired("path"))
	cobra.CheckErr(transferCmd.MarkFlagRequired("request-id"))

	rootCmd.AddCommand(transferCmd)
}

func buildRequest() (ferrytypes.TransferRequest, error) {
	protocol, err := ferrytypes.ParseProtocol(transferFlags.protocol)
	if err != nil {
		return ferrytypes.TransferRequest{}, err
	}

	var privateKey []byte
	if transferFlags.keyFile != "" {
		privateKey, err = os.ReadFile(transferFlags.keyFile)
		if err != nil {
			return ferrytypes.TransferRequest{}, fmt.Errorf("reading private key: %w", err)
		}
	}

	return ferrytypes.TransferRequest{
		Source: ferrytypes.ObjectRef{
			Bucket: transferFlags.bucket,
			Key:    transferFlags.key,
		},
		Dest: ferrytypes.Destination{
			Protocol:   protocol,
			Host:       transferFlags.host,
			Port:       transferFlags.port,
			Path:       transferFlags.path,
			Username:   envDefault(transferFlags.username, "FERRY_DEST_USERNAME"),
			Password:   envDefault(transferFlags.password, "FERRY_DEST_PASSWORD"),
			PrivateKey: privateKey,
			SecretRef:  envDefault(transferFlags.secretRef, "FERRY_DEST_SECRET"),
		},
		RequesterID: envDefault(transferFlags.requester, "FERRY_REQUESTER"),
		RequestID:   transferFlags.requestID,
		GrantID:     transferFlags.grantID,
	}, nil
}

func buildEngine(ctx context.Context) (*ferry.Engine, error) {
	region := envDefault(transferFlags.region, "AWS_REGION")
	cfg, err := awsconfig.LoadDefaultConfig(ctx, regionOpts(region)...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	manager, err := buildSessions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	history, err := buildHistory(cfg)
	if err != nil {
		return nil, err
	}
	learner, err := strategy.NewLearner(history)
	if err != nil {
		return nil, err
	}

	resolver, err := creds.NewSecretsResolver(secretsmanager.NewFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	sources := func(_ context.Context, credentials ferrytypes.Credentials) (source.Source, error) {
		return source.NewS3WithCredentials(cfg, credentials), nil
	}

	opts := []ferry.Option{
		ferry.WithRegion(region),
		ferry.WithCredentialResolver(resolver),
	}
	if transferFlags.timeout > 0 {
		opts = append(opts, ferry.WithJobTimeout(transferFlags.timeout))
	}
	if table := envDefault(transferFlags.requestsTable, "FERRY_REQUESTS_TABLE"); table != "" {
		trk, err := tracker.NewDynamo(dynamodb.NewFromConfig(cfg), table)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ferry.WithTracker(trk))
	}

	return ferry.New(sources, manager, learner, opts...)
}

func buildSessions(ctx context.Context, cfg aws.Config) (*session.Manager, error) {
	var store session.Store
	if table := envDefault(transferFlags.sessionsTable, "FERRY_SESSIONS_TABLE"); table != "" {
		dynamoStore, err := session.NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
		if err != nil {
			return nil, err
		}
		store = dynamoStore
	} else {
		store = session.NewMemoryStore()
	}

	var identity session.IdentityProvider
	if roleARN := envDefault(transferFlags.roleARN, "FERRY_ROLE_ARN"); roleARN != "" {
		assumed, err := session.NewSTSIdentity(sts.NewFromConfig(cfg), roleARN)
		if err != nil {
			return nil, err
		}
		identity = assumed
	} else {
		// Without a role to assume, grants capture the ambient credentials.
		ambient, err := cfg.Credentials.Retrieve(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving ambient credentials: %w", err)
		}
		identity = session.NewStaticIdentity(ferrytypes.Credentials{
			AccessKeyID:     ambient.AccessKeyID,
			SecretAccessKey: ambient.SecretAccessKey,
			SessionToken:    ambient.SessionToken,
			Expiry:          ambient.Expires,
		})
	}

	return session.NewManager(store, identity)
}

func buildHistory(cfg aws.Config) (strategy.History, error) {
	if table := envDefault(transferFlags.historyTable, "FERRY_HISTORY_TABLE"); table != "" {
		return strategy.NewDynamoHistory(dynamodb.NewFromConfig(cfg), table)
	}
	return strategy.NewMemoryHistory(), nil
}

func regionOpts(region string) []func(*awsconfig.LoadOptions) error {
	if region == "" {
		return nil
	}
	return []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
}

func printResult(result *ferrytypes.TransferResult) {
	if result == nil {
		return
	}
	fmt.Printf("state:       %s\n", result.State)
	if result.ErrorKind != "" {
		fmt.Printf("error kind:  %s\n", result.ErrorKind)
	}
	fmt.Printf("bytes:       %s\n", humanize.IBytes(uint64(result.BytesTransferred)))
	if result.Checksum != "" {
		fmt.Printf("checksum:    %s\n", result.Checksum)
	}
	if result.RemotePath != "" {
		fmt.Printf("remote path: %s\n", result.RemotePath)
	}
	fmt.Printf("attempts:    %d\n", result.Attempts)
	fmt.Printf("duration:    %s\n", result.Duration.Round(time.Millisecond))
	if result.Prediction.SampleSize > 0 || result.Prediction.SuccessRate > 0 {
		fmt.Printf("prediction:  %.0f%% success, ~%s (%s confidence, %d samples)\n",
			result.Prediction.SuccessRate*100,
			result.Prediction.ExpectedDuration.Round(time.Second),
			result.Prediction.Confidence,
			result.Prediction.SampleSize,
		)
	}
}
