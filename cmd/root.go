package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reinfer-cli/internal/app"
)

var (
	configFile         string
	contextName        string
	verbose            bool
	endpoint           string
	acceptInvalidCerts bool
	token              string
	proxy              string
	outputFormat       string
	numThreads         int
	logFile            string
)

var rootCmd = &cobra.Command{
	Use:   "re",
	Short: "re is the command line interface to reinfer clusters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// globals collects the persistent flags. Accept-invalid-certificates is
// only forwarded when given, so a context can still turn it on.
func globals(cmd *cobra.Command) app.GlobalOptions {
	g := app.GlobalOptions{
		ConfigFile: configFile,
		Context:    contextName,
		Verbose:    verbose,
		Endpoint:   endpoint,
		Token:      token,
		Proxy:      proxy,
		Output:     outputFormat,
		NumThreads: numThreads,
		LogFile:    logFile,
		UserAgent:  "re/" + Version,
	}
	if f := cmd.Flags().Lookup("accept-invalid-certificates"); f != nil && f.Changed {
		g.AcceptInvalidCertificates = acceptInvalidCerts
	}
	return g
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config-file", "", "path to the contexts file (defaults to <config dir>/reinfer/contexts.yaml)")
	pf.StringVarP(&contextName, "context", "c", "", "context to use instead of the current one")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging plus NDJSON request events")
	pf.StringVar(&endpoint, "endpoint", "", "API endpoint, overrides the context")
	pf.BoolVarP(&acceptInvalidCerts, "accept-invalid-certificates", "k", false, "skip TLS certificate verification")
	pf.StringVar(&token, "token", "", "API token, overrides the context")
	pf.StringVar(&proxy, "proxy", "", "HTTP proxy URL, overrides the context")
	pf.StringVarP(&outputFormat, "output", "o", "table", "output format: table or json")
	pf.IntVar(&numThreads, "num-threads", 0, "concurrent requests for annotation uploads (env REINFER_CLI_NUM_THREADS)")
	pf.StringVar(&logFile, "log-file", "", "also write logs as JSON to this file")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(versionCmd)
}
