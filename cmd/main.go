package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"markov-go/internal/config"
	"markov-go/internal/controller"
	"markov-go/internal/handler"
	"markov-go/internal/service"
	"markov-go/internal/util"
	"markov-go/pkg/mcp"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	programName     = "markov"
	exitFatal       = 2
	shutdownTimeout = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewCLI().ExecuteContext(ctx)
	stop()
	if err != nil {
		fatalf(err)
	}
}

// fatalf reports err with the program prefix and exits. Callers flush
// stdout before returning the error.
func fatalf(err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
	os.Exit(exitFatal)
}

type options struct {
	configPath string
	logLevel   string
	inputs     []string
	maxWords   int
	seed       int64
	prompt     string
	overlong   string
	port       int
	mcp        bool
}

func NewCLI() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Generate text from an order-4 word Markov chain",
		Long: "Reads whitespace-separated words from the configured inputs or stdin, " +
			"trains an order-4 Markov chain and prints a random walk over it, one word per line.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Don't print the usage message when an error happens after parsing
			cmd.SilenceUsage = true
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Training corpus file or glob, repeatable (default stdin)")
	rootCmd.PersistentFlags().StringVar(&opts.overlong, "overlong", "", "Over-long word policy: truncate or split")
	addGenerateFlags(rootCmd, opts)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Train on the inputs and print one random walk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}
	addGenerateFlags(generateCmd, opts)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Train on the inputs and serve generation over HTTP and MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	serveCmd.Flags().IntVarP(&opts.port, "port", "p", 0, "HTTP port (default from config)")
	serveCmd.Flags().BoolVar(&opts.mcp, "mcp", false, "Also serve MCP tools on the configured MCP address")

	rootCmd.AddCommand(generateCmd, serveCmd)
	return rootCmd
}

func addGenerateFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().IntVarP(&opts.maxWords, "max-words", "n", config.DefaultMaxWords, "Maximum number of words to generate")
	cmd.Flags().Int64VarP(&opts.seed, "seed", "s", config.DefaultSeed, "Random seed, -1 for a random one")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Continue after these words instead of from the start of text")
}

// loadConfig reads the config file and applies command line overrides
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if opts.logLevel != "" {
		cfg.App.LogLevel = opts.logLevel
	}
	if len(opts.inputs) > 0 {
		cfg.App.Inputs = opts.inputs
	}
	if opts.overlong != "" {
		cfg.Generator.Overlong = opts.overlong
	}
	if flags.Lookup("max-words") != nil && flags.Changed("max-words") {
		cfg.Generator.MaxWords = opts.maxWords
	}
	if flags.Lookup("seed") != nil && flags.Changed("seed") {
		cfg.Generator.Seed = util.Ptr(opts.seed)
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.mcp {
		cfg.Mcp.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to stderr; stdout carries the generated words
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfgZap := zap.NewProductionConfig()
	cfgZap.Level = lvl
	cfgZap.OutputPaths = []string{"stderr"}
	cfgZap.ErrorOutputPaths = []string{"stderr"}
	return cfgZap.Build()
}

func setup(cmd *cobra.Command, opts *options) (*config.Config, *zap.Logger, *service.MarkovService, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg.App.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Debug("Configuration loaded", zap.Any("config", cfg))

	inputs, err := util.ExpandInputs(cfg.App.Inputs)
	if err != nil {
		return nil, nil, nil, err
	}

	markovService, err := service.NewMarkovService(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := markovService.Train(cmd.Context(), inputs, cmd.InOrStdin()); err != nil {
		markovService.Close()
		return nil, nil, nil, err
	}
	return cfg, logger, markovService, nil
}

func runGenerate(cmd *cobra.Command, opts *options) error {
	_, logger, markovService, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer markovService.Close()

	out := bufio.NewWriter(cmd.OutOrStdout())
	result, err := markovService.Emit(cmd.Context(), out, service.GenerateRequest{Prompt: opts.prompt})
	if flushErr := out.Flush(); err == nil && flushErr != nil {
		err = fmt.Errorf("failed to write output: %w", flushErr)
	}
	if err != nil {
		return err
	}

	logger.Info("Generation finished",
		zap.String("run_id", result.RunID),
		zap.Int64("seed", result.Seed),
		zap.Int("count", result.Count),
		zap.String("stop_reason", string(result.StopReason)))
	return nil
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg, logger, markovService, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer markovService.Close()

	markovController := controller.NewMarkovController(markovService, logger)
	router := handler.SetupRouter(markovController, logger)

	servers := []*http.Server{{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}}
	if cfg.Mcp.Enabled {
		mcpServer := mcp.NewMarkovServer(markovService, cfg, logger)
		servers = append(servers, mcpServer.NewHTTPServer())
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("Starting server", zap.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
