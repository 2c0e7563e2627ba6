// Package commands implements the ratectl subcommands.
package commands

import (
	"fmt"
	"os"

	"github.com/amirphl/freightdesk/app/bootstrap"
	"github.com/amirphl/freightdesk/app/logging"
	businessflow "github.com/amirphl/freightdesk/business_flow"
	"github.com/amirphl/freightdesk/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// EngineOpener builds a rate engine for cfg. The returned func releases
// whatever the engine holds.
type EngineOpener func(cfg *config.ProductionConfig, logger *zap.Logger) (*businessflow.RateEngine, func(), error)

// Runtime carries what the commands need from the outside world. Tests
// replace both funcs.
type Runtime struct {
	LoadConfig func() (*config.ProductionConfig, error)
	OpenEngine EngineOpener

	cfg    *config.ProductionConfig
	logger *zap.Logger
}

// DefaultRuntime reads configuration from the environment and connects to
// the configured PostgreSQL and Redis.
func DefaultRuntime() *Runtime {
	return &Runtime{
		LoadConfig: config.LoadToolConfig,
		OpenEngine: func(cfg *config.ProductionConfig, logger *zap.Logger) (*businessflow.RateEngine, func(), error) {
			engine, err := bootstrap.NewEngine(cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			return engine.RateEngine, engine.Close, nil
		},
	}
}

func (rt *Runtime) engine() (*businessflow.RateEngine, func(), error) {
	if rt.cfg == nil {
		return nil, nil, fmt.Errorf("configuration not loaded")
	}
	engine, closeFn, err := rt.OpenEngine(rt.cfg, rt.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening rate engine: %w", err)
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return engine, closeFn, nil
}

// NewRootCmd creates the ratectl command tree.
func NewRootCmd(rt *Runtime) *cobra.Command {
	var (
		envFile    string
		configFile string
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "ratectl",
		Short: "Import freight rate sheets and resolve shipment rates",
		Long: `ratectl talks to the rate engine database directly.

Examples:
  ratectl import rates.xlsx --customer 42 --type LTL
  ratectl resolve --customer 42 --type LTL --city Toronto --skids 2
  ratectl cache invalidate --customer 42 --type LTL
  ratectl batches list --customer 42`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := os.Setenv("ENV_FILE", envFile); err != nil {
					return err
				}
			}
			if configFile != "" {
				if err := os.Setenv("RATESHEET_CONFIG_FILE", configFile); err != nil {
					return err
				}
			}

			cfg, err := rt.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg.Logging.Format = "console"
			cfg.Logging.Output = "stdout"
			if verbose {
				cfg.Logging.Enabled = true
				cfg.Logging.Level = "debug"
			} else {
				cfg.Logging.Level = "error"
			}

			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("initializing logging: %w", err)
			}
			rt.cfg = cfg
			rt.logger = logger
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	root.PersistentFlags().StringVar(&configFile, "config", "", "rate sheet YAML overlay")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newImportCmd(rt),
		newResolveCmd(rt),
		newCacheCmd(rt),
		newBatchesCmd(rt),
		newRecordsCmd(rt),
		newTemplateCmd(rt),
	)
	return root
}
