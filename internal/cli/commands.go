package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"stock-insight/config"
	"stock-insight/internal/api"
	"stock-insight/internal/app"
	"stock-insight/observability"
	"stock-insight/services"
)

// Version is set at build time with -ldflags "-X stock-insight/internal/cli.Version=..."
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "stock-insight",
		Short: "Stock market data aggregation and natural-language analysis",
		Long: `stock-insight serves normalized stock profiles built from Alpha Vantage,
Yahoo Finance and Alpaca, and answers natural-language questions about stocks
with an OpenAI or AWS Bedrock language model.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is fine; the environment may already be set
			_ = godotenv.Load()

			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cfg = loaded

			level := cfg.Log.Level
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				level = "debug"
			}
			observability.InitLoggerFromConfig(cfg.Log.Format, level)
			observability.GetMetrics()
			app.ConfigureBreakers(cfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	loaded := func() *config.Config { return cfg }
	rootCmd.AddCommand(newServeCmd(loaded))
	rootCmd.AddCommand(newProfileCmd(loaded))
	rootCmd.AddCommand(newSearchCmd(loaded))
	rootCmd.AddCommand(newAskCmd(loaded))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newServeCmd creates the serve command
func newServeCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				c.HTTP.Port = port
			}
			if err := c.ValidateLLM(); err != nil {
				observability.Warn("natural-language queries will be unavailable", "error", err)
			}
			return runServer(cmd.Context(), c)
		},
	}
	cmd.Flags().Int("port", 0, "Port to listen on (overrides HTTP_PORT)")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           api.NewRouter(api.NewHandler(application), cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 10*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Info("starting HTTP server",
			"port", cfg.HTTP.Port,
			"providers", application.Providers(),
			"nlp_enabled", application.NLPEnabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	observability.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	observability.Info("HTTP server stopped")
	return nil
}

// newProfileCmd creates the profile command
func newProfileCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile SYMBOL",
		Short:   "Print the aggregated stock profile for a symbol",
		Example: "stock-insight profile IBM --provider alphavantage",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _ := cmd.Flags().GetString("provider")
			if err := api.ValidateSymbol(args[0]); err != nil {
				return err
			}
			application, err := app.NewFromConfig(commandContext(cmd), cfg())
			if err != nil {
				return err
			}
			profile, err := application.Profile(commandContext(cmd), provider, args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch data for %s: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), profile)
		},
	}
	cmd.Flags().String("provider", services.ProviderAlphaVantage, "Data provider: alphavantage, yahoo or alpaca")
	return cmd
}

// newSearchCmd creates the search command
func newSearchCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "search QUERY",
		Short:   "Search for symbols matching a keyword",
		Example: "stock-insight search tesco",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _ := cmd.Flags().GetString("provider")
			application, err := app.NewFromConfig(commandContext(cmd), cfg())
			if err != nil {
				return err
			}
			results, err := application.Search(commandContext(cmd), provider, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().String("provider", services.ProviderAlphaVantage, "Data provider: alphavantage or yahoo")
	return cmd
}

// newAskCmd creates the ask command
func newAskCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "ask QUESTION",
		Short:   "Ask a natural-language question about stocks",
		Example: `stock-insight ask "What's the price of AAPL?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question cannot be empty")
			}
			c := cfg()
			if err := c.ValidateLLM(); err != nil {
				return err
			}
			application, err := app.NewFromConfig(commandContext(cmd), c)
			if err != nil {
				return err
			}
			resp, err := application.Ask(commandContext(cmd), question)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%s", resp.Response)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Response)
			return nil
		},
	}
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// Printing the version needs no configuration
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stock-insight %s\n", Version)
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
