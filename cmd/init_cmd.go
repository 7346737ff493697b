package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gridport/gridport/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long:  `Walk through prompts to create a Gridport configuration file at ~/.gridport/gridport.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Println("Gridport Configuration Setup")
		fmt.Println("============================")
		fmt.Println()

		fmt.Println("Source Base")
		fmt.Println("-----------")
		baseURL := prompt(reader, "API base URL", "https://api.example.com")
		baseID := prompt(reader, "Base ID", "")
		token := prompt(reader, "API token (or ${ENV:VAR} reference)", "${ENV:GRIDPORT_TOKEN}")
		fmt.Println()

		fmt.Println("Target PostgreSQL")
		fmt.Println("-----------------")
		host := prompt(reader, "Host", "localhost")
		portStr := prompt(reader, "Port", "5432")
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port: %s", portStr)
		}
		database := prompt(reader, "Database name", "")
		username := prompt(reader, "Username", "")
		password := prompt(reader, "Password (or ${ENV:VAR} reference)", "")
		ssl := strings.EqualFold(prompt(reader, "Require SSL (y/n)", "n"), "y")
		fmt.Println()

		fmt.Println("Import")
		fmt.Println("------")
		mode := prompt(reader, "Write mode (insert/upsert/sync)", "upsert")
		fmt.Println()

		cfg := &config.Config{
			Version: config.CurrentVersion,
			Source: config.SourceConfig{
				BaseURL: baseURL,
				BaseID:  baseID,
				Token:   token,
			},
			Storage: config.StorageConfig{
				Host:     host,
				Port:     port,
				Database: database,
				Username: username,
				Password: password,
				SSL:      ssl,
			},
			Import: config.ImportConfig{
				Mode: mode,
			},
		}

		cfgPath := config.ExpandHome(config.DefaultPath)
		if cfgFile != "" {
			cfgPath = cfgFile
		}

		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("Config written to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  gridport fields    — Inspect the base's tables and field mappings")
		fmt.Println("  gridport import    — Import the base into PostgreSQL")
		fmt.Println("  gridport serve     — Watch import progress over websocket")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
