package cmd

import (
	"github.com/spf13/cobra"

	"reinfer-cli/internal/app"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update existing resources",
}

var (
	updateTitle       string
	updateDescription string
)

var (
	updateSourceOpts      app.UpdateSourceOptions
	updateSourceTranslate bool
	updateSourceBucket    string
)

var updateSourceCmd = &cobra.Command{
	Use:   "source <name-or-id>",
	Short: "Update a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := updateSourceOpts
		opts.Source = args[0]
		opts.Title = changed(cmd, "title", updateTitle)
		opts.Description = changed(cmd, "description", updateDescription)
		opts.ShouldTranslate = changed(cmd, "should-translate", updateSourceTranslate)
		opts.Bucket = changed(cmd, "bucket", updateSourceBucket)
		return app.RunUpdateSource(cmd.Context(), globals(cmd), opts)
	},
}

var updateDatasetSources []string

var updateDatasetCmd = &cobra.Command{
	Use:   "dataset <name-or-id>",
	Short: "Update a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunUpdateDataset(cmd.Context(), globals(cmd), app.UpdateDatasetOptions{
			Dataset:     args[0],
			Title:       changed(cmd, "title", updateTitle),
			Description: changed(cmd, "description", updateDescription),
			Sources:     updateDatasetSources,
		})
	},
}

var updateProjectCmd = &cobra.Command{
	Use:   "project <name>",
	Short: "Update a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunUpdateProject(cmd.Context(), globals(cmd), app.UpdateProjectOptions{
			Name:        args[0],
			Title:       changed(cmd, "title", updateTitle),
			Description: changed(cmd, "description", updateDescription),
		})
	},
}

var updateUserOpts app.UpdateUserOptions

var updateUserCmd = &cobra.Command{
	Use:   "user <user-id>",
	Short: "Update a user's permissions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := updateUserOpts
		opts.User = args[0]
		return app.RunUpdateUser(cmd.Context(), globals(cmd), opts)
	},
}

func titleFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	cmd.Flags().StringVar(&updateDescription, "description", "", "new description")
}

func init() {
	titleFlags(updateSourceCmd)
	titleFlags(updateDatasetCmd)
	titleFlags(updateProjectCmd)

	f := updateSourceCmd.Flags()
	f.BoolVar(&updateSourceTranslate, "should-translate", false, "translate comments to the source language")
	f.StringVar(&updateSourceBucket, "bucket", "", "bucket to pull emails from")
	f.StringSliceVar(&updateSourceOpts.SensitiveProperties, "sensitive-properties", nil, "user properties hidden from the UI")

	updateDatasetCmd.Flags().StringSliceVarP(&updateDatasetSources, "source", "s", nil, "replace the dataset sources")

	f = updateUserCmd.Flags()
	f.StringSliceVar(&updateUserOpts.GlobalPermissions, "global-permissions", nil, "global permissions to grant")
	f.StringVar(&updateUserOpts.Project, "project", "", "project to grant --project-permissions on")
	f.StringSliceVar(&updateUserOpts.ProjectPermissions, "project-permissions", nil, "project permissions to grant")

	updateCmd.AddCommand(updateSourceCmd, updateDatasetCmd, updateProjectCmd, updateUserCmd)
}
