package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ssargent/litetx/pkg/catalog"
	"github.com/ssargent/litetx/pkg/config"
	"github.com/ssargent/litetx/pkg/logger"
	"github.com/ssargent/litetx/pkg/metrics"
	"github.com/ssargent/litetx/pkg/store"
)

// app holds what PersistentPreRunE resolves for the subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	log        *logrus.Logger
}

// openStore opens the LTX file store described by the config.
func (a *app) openStore(m *metrics.Metrics) (*store.Store, error) {
	return store.New(store.Config{
		Dir:        a.cfg.DataDir,
		BufferSize: a.cfg.Store.BufferSize,
		Fsync:      a.cfg.Store.Fsync,
		Metrics:    m,
		Logger:     a.log,
	})
}

func (a *app) openCatalog() (*catalog.Catalog, error) {
	if a.cfg.CatalogDir == "" {
		return nil, fmt.Errorf("catalog_dir must be set")
	}
	return catalog.Open(a.cfg.CatalogDir)
}

// NewRootCmd builds the litetx command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "litetx",
		Short: "litetx - LTX transaction file toolkit",
		Long: `litetx encodes, decodes, verifies and serves LTX files: checksummed
page-level change sets for SQLite-style databases.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (default: ~/.config/litetx/config.yaml)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Base data directory; overrides data_dir and catalog_dir")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newInitCmd(a),
		newEncodeDBCmd(a),
		newApplyCmd(a),
		newVerifyCmd(a),
		newDumpCmd(a),
		newListCmd(a),
		newServeCmd(a),
		newCatalogCmd(a),
	)
	return rootCmd
}

// load reads the config file, applies flag overrides and builds the logger.
// A missing default config is not an error; a missing --config file is.
func (a *app) load(cmd *cobra.Command) error {
	path := a.configPath
	explicit := path != ""
	if !explicit {
		path = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if explicit || config.ConfigExists(path) {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	a.configPath = path

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = filepath.Join(dataDir, "ltx")
		cfg.CatalogDir = filepath.Join(dataDir, "catalog")
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		return err
	}
	if cfg.Logging.File == "" {
		log.SetOutput(cmd.ErrOrStderr())
	}

	a.cfg = cfg
	a.log = log
	return nil
}

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// closeQuietly closes c, logging a failure.
func closeQuietly(log logrus.FieldLogger, c io.Closer) {
	if err := c.Close(); err != nil {
		log.WithError(err).Warn("close failed")
	}
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
