package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and validate the Gridport configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println("Current configuration:")
		fmt.Println()
		fmt.Printf("  Source:\n")
		fmt.Printf("    Base URL:       %s\n", cfg.Source.BaseURL)
		fmt.Printf("    Base ID:        %s\n", cfg.Source.BaseID)
		fmt.Printf("    Token:          %s\n", maskSecret(cfg.Source.Token))
		fmt.Printf("    Page Size:      %d\n", cfg.Source.PageSize)
		fmt.Printf("    Max Retries:    %d\n", cfg.Source.MaxRetries)
		fmt.Println()
		fmt.Printf("  Storage:\n")
		fmt.Printf("    Host:           %s\n", cfg.Storage.Host)
		fmt.Printf("    Port:           %d\n", cfg.Storage.Port)
		fmt.Printf("    Database:       %s\n", cfg.Storage.Database)
		fmt.Printf("    Username:       %s\n", cfg.Storage.Username)
		fmt.Printf("    Password:       %s\n", maskSecret(cfg.Storage.Password))
		fmt.Printf("    SSL:            %t\n", cfg.Storage.SSL)
		fmt.Printf("    Max Conns:      %d\n", cfg.Storage.MaxConnections)
		fmt.Println()
		fmt.Printf("  Import:\n")
		fmt.Printf("    Mode:           %s\n", cfg.Import.Mode)
		fmt.Printf("    Drop Staging:   %t\n", cfg.Import.DropStaging)
		fmt.Println()
		fmt.Printf("  Analysis:\n")
		fmt.Printf("    One-to-many:    %.2f\n", cfg.Analysis.OneToManyConfidence)
		fmt.Printf("    Many-to-one:    %.2f\n", cfg.Analysis.ManyToOneConfidence)
		fmt.Printf("    Many-to-many:   %.2f\n", cfg.Analysis.ManyToManyConfidence)
		fmt.Printf("    Reuse Ratio:    %.2f\n", cfg.Analysis.ReuseRatio)
		fmt.Println()
		fmt.Printf("  Server:\n")
		fmt.Printf("    Port:           %d\n", cfg.Server.Port)

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		var errors []string

		if cfg.Source.BaseURL == "" {
			errors = append(errors, "source.base_url is required")
		}
		if cfg.Source.BaseID == "" {
			errors = append(errors, "source.base_id is required")
		}
		if cfg.Source.Token == "" {
			errors = append(errors, "source.token is required")
		}
		if cfg.Storage.Host == "" {
			errors = append(errors, "storage.host is required")
		}
		if cfg.Storage.Database == "" {
			errors = append(errors, "storage.database is required")
		}
		if cfg.Storage.Username == "" {
			errors = append(errors, "storage.username is required")
		}
		switch cfg.Import.Mode {
		case "insert", "upsert", "sync":
		default:
			errors = append(errors, "import.mode must be insert, upsert, or sync")
		}

		if len(errors) > 0 {
			fmt.Println("Validation errors:")
			for _, e := range errors {
				fmt.Printf("  - %s\n", e)
			}
			return fmt.Errorf("%d validation error(s)", len(errors))
		}

		fmt.Println("Configuration is valid.")
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
