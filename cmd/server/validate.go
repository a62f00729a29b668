package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"viewql/internal/config"
	"viewql/internal/schema"
)

var validateSchemaPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a schema document without compiling it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		schemaPath := validateSchemaPath
		if schemaPath == "" {
			schemaPath = cfg.Schema.SchemaFile
		}
		if schemaPath == "" {
			return fmt.Errorf("no schema file: pass --schema or set schema.schema_file")
		}

		model, err := schema.Load(schemaPath)
		if err != nil {
			return err
		}

		errs, warns := schema.Validate(model, schema.ValidateOptions{
			KnownCapabilities: cfg.Schema.KnownCapabilities,
		})
		out := cmd.OutOrStdout()
		for _, w := range warns {
			fmt.Fprintf(out, "warning: %s: %s\n", w.Path, w.Message)
		}
		for _, e := range errs {
			fmt.Fprintf(out, "error: %s: %s\n", e.Path, e.Message)
		}
		if len(errs) > 0 {
			return fmt.Errorf("schema has %d error(s)", len(errs))
		}

		fmt.Fprintf(out, "schema ok: %d types, %d operations\n",
			len(model.Types),
			len(model.Queries)+len(model.Mutations)+len(model.Subscriptions)+len(model.AggregateQueries))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateSchemaPath, "schema", "", "schema document (overrides schema.schema_file)")
}
