package main

import (
	"fmt"
	"os"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor runs state graphs for LLM agents",
	Long: `Arbor builds graphs from YAML definitions and runs them with durable
checkpoints, so a suspended run can be resumed later, from any process.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("dir", ".", "Directory containing the graph definitions")
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")
	flags.String("redis", "", "Redis URL for checkpoints and locks (default: file store)")
	flags.String("redis-prefix", cli.DefaultRedisPrefix, "Key prefix in Redis")
	flags.String("store-dir", "", "Checkpoint directory (default <dir>/"+cli.DefaultStoreDir+")")
	flags.String("encryption-key", "", "AES-256 key sealing stored checkpoints (env ARBOR_ENCRYPTION_KEY)")
	flags.StringSlice("mask", nil, "Regular expressions of state keys masked before storage")
	flags.Int("recursion-limit", 0, "Maximum super-steps per run (0: engine default)")
	flags.Duration("timeout", 0, "Maximum duration of one run or resume call")
	flags.String("tools", "tools.yaml", "Process tools file, relative to --dir")
}

// openRuntime builds the runtime from the persistent flags.
func openRuntime(cmd *cobra.Command) (*cli.Runtime, error) {
	flags := cmd.Flags()
	opts := cli.Options{}
	opts.Dir, _ = flags.GetString("dir")
	opts.LogLevel, _ = flags.GetString("log-level")
	opts.RedisURL, _ = flags.GetString("redis")
	opts.RedisPrefix, _ = flags.GetString("redis-prefix")
	opts.StoreDir, _ = flags.GetString("store-dir")
	opts.EncryptionKey, _ = flags.GetString("encryption-key")
	opts.MaskFields, _ = flags.GetStringSlice("mask")
	opts.RecursionLimit, _ = flags.GetInt("recursion-limit")
	opts.Timeout, _ = flags.GetDuration("timeout")
	opts.ToolsPath, _ = flags.GetString("tools")

	if opts.EncryptionKey == "" {
		opts.EncryptionKey = os.Getenv("ARBOR_ENCRYPTION_KEY")
	}
	if opts.RedisURL == "" {
		opts.RedisURL = os.Getenv("ARBOR_REDIS_URL")
	}
	return cli.Open(cmd.Context(), opts)
}
