package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/schema"
	"github.com/gridport/gridport/internal/state"
)

var (
	fieldsTable string
	fieldsSave  string
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the base's tables and field schemas",
	Long: `Fetch the declared table and field schemas from the grid base and show
how each field maps to a PostgreSQL column. Use --save to write the
snapshot as YAML for later diffing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src := buildSource(cfg)
		ctx := context.Background()

		fmt.Printf("Fetching schema for base %s...\n", cfg.Source.BaseID)
		tables, err := src.ListTables(ctx)
		if err != nil {
			return fmt.Errorf("listing tables: %w", err)
		}

		snap := &schema.Snapshot{
			BaseID:    cfg.Source.BaseID,
			FetchedAt: time.Now().UTC(),
			Tables:    tables,
		}
		fmt.Println(snap.Summary())

		reg := mapping.NewRegistry()
		for _, t := range snap.Tables {
			if fieldsTable != "" && t.Name != fieldsTable {
				continue
			}
			fmt.Printf("\n%s (%d fields)\n", t.Name, len(t.Fields))
			for _, f := range t.Fields {
				col, supported := reg.MapField(f)
				target := col.StorageType
				if !supported {
					target += " (fallback)"
				} else if col.IsStaging {
					target += " (staging)"
				}
				fmt.Printf("  %-32s %-16s -> %s\n", f.Name, f.Type, target)
			}
		}
		if fieldsTable != "" && snap.Table(fieldsTable) == nil {
			return fmt.Errorf("table %q not found in base %s", fieldsTable, cfg.Source.BaseID)
		}

		if fieldsSave != "" {
			if err := snap.WriteYAML(fieldsSave); err != nil {
				return fmt.Errorf("writing schema snapshot: %w", err)
			}
			fmt.Printf("\nSchema written to %s\n", fieldsSave)
			if st, err := state.Load(""); err == nil {
				st.SchemaPath = fieldsSave
				_ = st.Save("")
			}
		}
		return nil
	},
}

func init() {
	fieldsCmd.Flags().StringVar(&fieldsTable, "table", "", "show a single table")
	fieldsCmd.Flags().StringVar(&fieldsSave, "save", "", "write the schema snapshot to this YAML file")
	rootCmd.AddCommand(fieldsCmd)
}
