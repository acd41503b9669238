package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reinfer-cli/internal/app"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage reinfer authentication and endpoint contexts",
}

var addContextOpts app.AddContextOptions

var configAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new context, or update an existing one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunAddContext(cmd.Context(), globals(cmd), addContextOpts)
	},
}

var configCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the current context",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunCurrentContext(cmd.Context(), globals(cmd))
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunUseContext(cmd.Context(), globals(cmd), args[0])
	},
}

var configDeleteCmd = &cobra.Command{
	Use:     "delete <name>...",
	Aliases: []string{"rm"},
	Short:   "Delete contexts and their stored tokens",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunDeleteContexts(cmd.Context(), globals(cmd), args)
	},
}

var showTokens bool

var configListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List the available contexts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunListContexts(cmd.Context(), globals(cmd), showTokens)
	},
}

var configSetContextRequiredCmd = &cobra.Command{
	Use:       "set-context-required <true|false>",
	Short:     "Require an explicit --context or --endpoint on every request",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"true", "false"},
	RunE: func(cmd *cobra.Command, args []string) error {
		required, err := strconv.ParseBool(args[0])
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", args[0])
		}
		return app.RunSetContextRequired(cmd.Context(), globals(cmd), required)
	},
}

func init() {
	f := configAddCmd.Flags()
	f.StringVarP(&addContextOpts.Name, "name", "n", "", "context name")
	f.StringVarP(&addContextOpts.Endpoint, "endpoint", "e", "", "API endpoint")
	f.StringVarP(&addContextOpts.Token, "token", "t", "", "API token, prompted for when empty")
	f.BoolVarP(&addContextOpts.AcceptInvalidCertificates, "accept-invalid-certificates", "k", false, "skip TLS certificate verification for this context")
	f.StringVar(&addContextOpts.Proxy, "proxy", "", "HTTP proxy URL for this context")

	configListCmd.Flags().BoolVar(&showTokens, "tokens", false, "show API tokens instead of <Hidden>")

	configCmd.AddCommand(configAddCmd, configCurrentCmd, configUseCmd, configDeleteCmd, configListCmd, configSetContextRequiredCmd)
}
