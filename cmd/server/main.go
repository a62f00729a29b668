// Command server compiles schemas and serves the compiled artifact over HTTP.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "viewql",
	Short: "viewql compiles schema documents and serves them as a query API",
	Long: `viewql compiles a language-neutral schema document into a versioned
artifact of parameterized SQL, and serves that artifact as a GraphQL-shaped
HTTP API backed by PostgreSQL views and stored functions.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.Version = Version + " (" + Commit + ")"
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: viewql.yaml in ., /etc/viewql)")
	rootCmd.AddCommand(compileCmd, validateCmd, serveCmd)
}
