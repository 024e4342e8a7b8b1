// Command ferry moves single blob-storage objects to remote FTP, FTPS, and
// SFTP endpoints.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ferry",
	Short: "Managed single-object transfers from blob storage to remote endpoints",
	Long: "ferry authorizes, plans, and executes one-object transfers from S3 to\n" +
		"FTP, FTPS, and SFTP destinations, with chunked parallel streaming,\n" +
		"end-to-end checksums, and learned outcome predictions.",
	SilenceUsage: true,
}

func main() {
	// A local .env carries table names and credentials in development.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	})))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	switch os.Getenv("FERRY_DEBUG") {
	case "", "0", "false":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// envDefault returns value, or the named environment variable when the flag
// was left empty.
func envDefault(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}
