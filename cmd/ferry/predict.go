package main

import (
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/strategy"
)

var predictFlags struct {
	protocol     string
	size         string
	region       string
	historyTable string
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Print the strategy and advisory outcome estimate for a transfer",
	Long: "Selects the strategy tier for the given object size and estimates the\n" +
		"outcome from recorded transfer history.",
	Run: func(cmd *cobra.Command, args []string) {
		protocol, err := ferrytypes.ParseProtocol(predictFlags.protocol)
		cobra.CheckErr(err)

		size, err := humanize.ParseBytes(predictFlags.size)
		cobra.CheckErr(err)

		var history strategy.History = strategy.NewMemoryHistory()
		if table := envDefault(predictFlags.historyTable, "FERRY_HISTORY_TABLE"); table != "" {
			region := envDefault(predictFlags.region, "AWS_REGION")
			cfg, err := awsconfig.LoadDefaultConfig(cmd.Context(), regionOpts(region)...)
			cobra.CheckErr(err)
			history, err = strategy.NewDynamoHistory(dynamodb.NewFromConfig(cfg), table)
			cobra.CheckErr(err)
		}

		learner, err := strategy.NewLearner(history)
		cobra.CheckErr(err)
		prediction, err := learner.Predict(cmd.Context(), protocol, int64(size))
		cobra.CheckErr(err)

		strat := strategy.Select(int64(size))
		fmt.Printf("tier:        %s (%s)\n", ferrytypes.BucketFor(int64(size)), humanize.IBytes(size))
		fmt.Printf("chunk size:  %s\n", chunkLabel(strat.ChunkSize))
		fmt.Printf("parallelism: %d\n", strat.Parallelism)
		fmt.Printf("compress:    %t\n", strat.Compress)
		fmt.Printf("risk:        %s\n", strat.Risk)
		fmt.Printf("estimate:    ~%s\n", strat.EstimatedDuration.Round(time.Second))
		fmt.Printf("success:     %.0f%%\n", prediction.SuccessRate*100)
		fmt.Printf("duration:    ~%s\n", prediction.ExpectedDuration.Round(time.Second))
		fmt.Printf("confidence:  %s (%d samples)\n", prediction.Confidence, prediction.SampleSize)
	},
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictFlags.protocol, "protocol", "sftp", "destination protocol: ftp, ftps, or sftp")
	f.StringVar(&predictFlags.size, "size", "", "object size, e.g. 250MiB")
	f.StringVar(&predictFlags.region, "region", "", "storage region (or AWS_REGION)")
	f.StringVar(&predictFlags.historyTable, "history-table", "", "DynamoDB outcome history table (or FERRY_HISTORY_TABLE)")

	cobra.CheckErr(predictCmd.MarkFlagRequired("size"))

	rootCmd.AddCommand(predictCmd)
}

func chunkLabel(chunkSize int64) string {
	if chunkSize <= 0 {
		return "single shot"
	}
	return humanize.IBytes(uint64(chunkSize))
}
