package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"viewql/internal/compiler"
	"viewql/internal/config"
	"viewql/internal/schema"
)

var (
	compileSchemaPath string
	compileOutPath    string
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a schema document into an artifact",
	Long: `Compile validates the schema document, lowers every operation into
parameterized SQL, and writes the resulting artifact as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		schemaPath := compileSchemaPath
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

		art, err := compiler.Compile(model, compiler.Options{
			DefaultLimit:      cfg.Schema.DefaultLimit,
			MaxLimit:          cfg.Schema.MaxLimit,
			KnownCapabilities: cfg.Schema.KnownCapabilities,
		})
		if err != nil {
			return err
		}

		encoded, err := art.Encode()
		if err != nil {
			return err
		}

		if compileOutPath == "" || compileOutPath == "-" {
			_, err = cmd.OutOrStdout().Write(append(encoded, '\n'))
			return err
		}
		if err := os.WriteFile(compileOutPath, encoded, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "compiled %d operations to %s\n", len(art.Operations), compileOutPath)
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVar(&compileSchemaPath, "schema", "", "schema document (overrides schema.schema_file)")
	compileCmd.Flags().StringVarP(&compileOutPath, "out", "o", "", "artifact output path (default: stdout)")
}
