package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pet-listings-scraper/internal/app"
	"github.com/JakeFAU/pet-listings-scraper/internal/config"
	"github.com/JakeFAU/pet-listings-scraper/internal/logging"
	"github.com/JakeFAU/pet-listings-scraper/internal/telemetry"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// standaloneAnnotation marks commands that need neither config nor services.
const standaloneAnnotation = "standalone"

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = app.New

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	var logger *zap.Logger
	var tracerProvider *sdktrace.TracerProvider

	cmd := &cobra.Command{
		Use:   "petscraper",
		Short: "Scrapes pet classifieds into a queryable store.",
		Long: `petscraper crawls the pet adoption and sale listings of animalutul.ro,
enriches every card from its detail page and keeps the results in a store that
the HTTP API can filter, either with query parameters or a free-text prompt.`,
		SilenceUsage: true,

		// Builds the services once config is known and hands them to the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[standaloneAnnotation] == "true" {
				return nil
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			tracerProvider, err = telemetry.InitTracerProvider(cmd.Context(), cmd.Root().Name())
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				if err := appInstance.Close(context.Background()); err != nil {
					appInstance.Logger().Warn("failed to close services", zap.Error(err))
				}
			}
			if tracerProvider != nil {
				if err := tracerProvider.Shutdown(context.Background()); err != nil && logger != nil {
					logger.Warn("failed to shut down tracer provider", zap.Error(err))
				}
			}
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBuildURLCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
