// Command flows-spacelift runs the Spacelift blocks either as an MCP server
// or once from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "/config/config.yaml"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "flows-spacelift",
		Short: "Spacelift blocks for flows: create stacks from blueprints over GraphQL",
		Long: `flows-spacelift talks to the Spacelift GraphQL API with an API key,
caching the JWTs it obtains and retrying once when a token is rejected.

Run "flows-spacelift serve" to expose the blocks as MCP tools over HTTP, or
"flows-spacelift create-stack" to run the stack creation block once.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"Path to the YAML config file (can also use FLOWS_SPACELIFT_CONFIG_PATH, default "+defaultConfigPath+")")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newCreateStackCmd(flags))
	return root
}
