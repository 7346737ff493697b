package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "gridport",
	Short: "Gridport — Grid base to PostgreSQL import tool",
	Long: `Gridport imports a grid-style base (tables of records behind an HTTP API)
into PostgreSQL. Declared field schemas become typed columns, link fields
are staged as record-id arrays, and the staged data is analyzed into
foreign key and junction table proposals you review and apply.

Start with 'gridport init' to create a config, then 'gridport import'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	// A local .env can supply ${ENV:...} config references
	_ = godotenv.Load()

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.gridport/gridport.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}
