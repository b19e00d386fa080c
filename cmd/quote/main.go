package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ProductStore/internal/quote"
	"ProductStore/pkg/kit"
)

var (
	baseURL  string
	timeout  time.Duration
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "quote [PAIR]",
	Short: "Print the latest bid for a currency pair",
	Long: `Fetch the latest quote for a currency pair (default USD-BRL) from an
AwesomeAPI compatible endpoint and print its bid.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runQuote,
}

func init() {
	rootCmd.Flags().StringVar(&baseURL, "base-url", quote.DefaultBaseURL, "quote API base URL")
	rootCmd.Flags().DurationVar(&timeout, "timeout", quote.DefaultTimeout, "request timeout")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
}

func runQuote(cmd *cobra.Command, args []string) error {
	log := kit.NewLogger("quote", logLevel)
	defer func() { _ = log.Sync() }()

	pair := quote.DefaultPair
	if len(args) == 1 {
		pair = args[0]
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	q, err := quote.NewClient(baseURL, timeout).Latest(ctx, pair)
	if err != nil {
		log.Error("fetch quote failed", zap.String("pair", pair), zap.Error(err))
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s bid: %v\n", q.Pair, q.Bid)
	return err
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
