package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/litetx/pkg/config"
)

func newInitCmd(a *app) *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a litetx configuration file",
		Long: `Create a configuration file with a generated API key for the HTTP endpoint.

The store and catalog are placed under --data-dir (default ./data).

Examples:
  litetx init
  litetx init --data-dir ./mydata --config ./litetx.yaml --print-key`,
		Args: cobra.NoArgs,
		// The config file does not exist yet, so skip loading it.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath == "" {
				a.configPath = config.GetDefaultConfigPath()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			printKey, _ := cmd.Flags().GetBool("print-key")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			if dataDir == "" {
				dataDir = "./data"
			}

			if config.ConfigExists(a.configPath) && !force {
				return fmt.Errorf("config already exists at %s; use --force to overwrite", a.configPath)
			}

			cfg, err := config.BootstrapConfig(a.configPath, dataDir)
			if err != nil {
				return err
			}

			cmd.Printf("Configuration created at %s\n", a.configPath)
			cmd.Printf("Store directory: %s\n", cfg.DataDir)
			cmd.Printf("Catalog directory: %s\n", cfg.CatalogDir)
			if printKey {
				cmd.Printf("API key: %s\n", cfg.Server.APIKey)
			}
			return nil
		},
	}

	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	initCmd.Flags().Bool("print-key", false, "Print the generated API key")
	return initCmd
}
