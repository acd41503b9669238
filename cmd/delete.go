package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"reinfer-cli/internal/app"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a resource",
}

func deleteOneCmd(use, short string, run func(context.Context, app.GlobalOptions, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), globals(cmd), args[0])
		},
	}
}

var deleteCommentsSource string

var deleteCommentsCmd = &cobra.Command{
	Use:   "comments <id>...",
	Short: "Delete comments by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunDeleteComments(cmd.Context(), globals(cmd), deleteCommentsSource, args)
	},
}

var (
	deleteBulkOpts app.DeleteBulkOptions
	deleteBulkFrom string
	deleteBulkTo   string
)

var deleteBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Delete every comment of a source in a time range",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := deleteBulkOpts
		var err error
		if opts.From, opts.To, err = timeRange("from-timestamp", deleteBulkFrom, "to-timestamp", deleteBulkTo); err != nil {
			return err
		}
		return app.RunDeleteBulk(cmd.Context(), globals(cmd), opts)
	},
}

var deleteProjectForce bool

var deleteProjectCmd = &cobra.Command{
	Use:   "project <name>",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunDeleteProject(cmd.Context(), globals(cmd), args[0], deleteProjectForce)
	},
}

func init() {
	deleteCommentsCmd.Flags().StringVarP(&deleteCommentsSource, "source", "s", "", "source name or id")
	_ = deleteCommentsCmd.MarkFlagRequired("source")

	f := deleteBulkCmd.Flags()
	f.StringVarP(&deleteBulkOpts.Source, "source", "s", "", "source name or id")
	f.BoolVar(&deleteBulkOpts.IncludeAnnotated, "include-annotated", false, "also delete annotated comments")
	f.StringVar(&deleteBulkFrom, "from-timestamp", "", "earliest comment timestamp (RFC 3339)")
	f.StringVar(&deleteBulkTo, "to-timestamp", "", "latest comment timestamp (RFC 3339)")
	f.BoolVar(&deleteBulkOpts.NoProgress, "no-progress", false, "don't display a progress bar")
	_ = deleteBulkCmd.MarkFlagRequired("source")
	_ = deleteBulkCmd.MarkFlagRequired("include-annotated")

	deleteProjectCmd.Flags().BoolVar(&deleteProjectForce, "force", false, "also delete every resource in the project")

	deleteCmd.AddCommand(
		deleteOneCmd("source <name-or-id>", "Delete a source", app.RunDeleteSource),
		deleteCommentsCmd,
		deleteBulkCmd,
		deleteOneCmd("bucket <name-or-id>", "Delete a bucket", app.RunDeleteBucket),
		deleteOneCmd("dataset <name-or-id>", "Delete a dataset", app.RunDeleteDataset),
		deleteOneCmd("user <user-id>", "Delete a user", app.RunDeleteUser),
		deleteProjectCmd,
	)
}
