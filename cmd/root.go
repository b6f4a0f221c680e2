// Package cmd defines and implements the CLI commands for the crawlscope executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/app"
	"github.com/JakeFAU/crawlscope/internal/config"
	"github.com/JakeFAU/crawlscope/internal/id/uuid"
	"github.com/JakeFAU/crawlscope/internal/logging"
	"github.com/JakeFAU/crawlscope/internal/scope"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands need from the wired application.
type App interface {
	Scope() *scope.Scope
	Run(ctx context.Context) error
	Close()
}

// appFactory builds the App from loaded configuration. Tests swap it for
// one that injects in-memory collaborators.
type appFactory func(ctx context.Context, cfg config.Config, cfgPath string, logger *zap.Logger) (App, error)

func defaultFactory(ctx context.Context, cfg config.Config, cfgPath string, logger *zap.Logger) (App, error) {
	var opts []app.Option
	if cfgPath != "" {
		opts = append(opts, app.WithOpener(app.FileOpener(filepath.Dir(cfgPath))))
	}
	return app.Build(ctx, cfg, logger, opts...)
}

type rootState struct {
	cfgFile string
	logger  *zap.Logger
}

// newRootCmd creates the root command with newApp as its App factory.
func newRootCmd(newApp appFactory) *cobra.Command {
	st := &rootState{}
	cmd := &cobra.Command{
		Use:   "crawlscope",
		Short: "Scope and politeness decisions for a web crawler.",
		Long: `crawlscope decides which discovered URIs belong to a crawl and whether
robots.txt lets the crawler fetch them. It evaluates configured rule
sequences, tracks per-server robots policies, and can serve those
decisions over HTTP for inspection.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(st.cfgFile)
			if err != nil {
				return err
			}
			base, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			st.logger = logging.ForRun(base, uuid.New(), cmd.Name())

			appInstance, err := newApp(cmd.Context(), cfg, st.cfgFile, st.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
			if st.logger != nil {
				if err := logging.Sync(st.logger); err != nil {
					fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", err)
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&st.cfgFile, "config", "", "config file (YAML, JSON or TOML); env vars use the CRAWLSCOPE_ prefix")

	cmd.AddCommand(newDecideCmd())
	cmd.AddCommand(newSurtsCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd(defaultFactory).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "crawlscope: %v\n", err)
		os.Exit(1)
	}
}
