package cmd

import (
	"fmt"

	"github.com/epeers/navgraph/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfg            *config.Config
	engineConfPath string
)

var rootCmd = &cobra.Command{
	Use:   "navgraph",
	Short: "Multi-level fund NAV, return and ownership engine",
	Long: `navgraph calculates period-by-period NAV, gains, returns and look-through
ownership for investors holding terminal investments through nested vehicles.

It provides tools for:
  - Running calculations over a ledger file or the configured store
  - Inspecting the leveled investment graph and dropped cycles
  - Serving calculation runs over HTTP

Configuration is read from the environment (and a .env file when present).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if engineConfPath != "" {
			engine, err := config.LoadEngineConfig(engineConfPath)
			if err != nil {
				return err
			}
			loaded.Engine = *engine
		}
		log.SetLevel(loaded.LogLevel)
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&engineConfPath, "engine-config", "c", "", "YAML engine config (overrides ENGINE_CONFIG)")
}
