package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"reinfer-cli/internal/app"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create new resources",
}

var (
	createSourceOpts      app.CreateSourceOptions
	createSourceTranslate bool
)

var createSourceCmd = &cobra.Command{
	Use:   "source <owner/name>",
	Short: "Create a new source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := createSourceOpts
		opts.Name = args[0]
		opts.ShouldTranslate = changed(cmd, "should-translate", createSourceTranslate)
		return app.RunCreateSource(cmd.Context(), globals(cmd), opts)
	},
}

var (
	createDatasetOpts      app.CreateDatasetOptions
	createDatasetSentiment bool
)

var createDatasetCmd = &cobra.Command{
	Use:   "dataset <owner/name>",
	Short: "Create a new dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := createDatasetOpts
		opts.Name = args[0]
		opts.HasSentiment = changed(cmd, "has-sentiment", createDatasetSentiment)
		return app.RunCreateDataset(cmd.Context(), globals(cmd), opts)
	},
}

var createBucketOpts app.CreateBucketOptions

var createBucketCmd = &cobra.Command{
	Use:   "bucket <owner/name>",
	Short: "Create a new bucket for raw emails",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := createBucketOpts
		opts.Name = args[0]
		return app.RunCreateBucket(cmd.Context(), globals(cmd), opts)
	},
}

var createProjectOpts app.CreateProjectOptions

var createProjectCmd = &cobra.Command{
	Use:   "project <name>",
	Short: "Create a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := createProjectOpts
		opts.Name = args[0]
		return app.RunCreateProject(cmd.Context(), globals(cmd), opts)
	},
}

var createUserOpts app.CreateUserOptions

var createUserCmd = &cobra.Command{
	Use:   "user <username> <email>",
	Short: "Create a new user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := createUserOpts
		opts.Username, opts.Email = args[0], args[1]
		return app.RunCreateUser(cmd.Context(), globals(cmd), opts)
	},
}

var createCommentsOpts app.CreateCommentsOptions

var createCommentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "Upload comments from a JSONL file or stdin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunCreateComments(cmd.Context(), globals(cmd), createCommentsOpts)
	},
}

var createAnnotationsOpts app.CreateAnnotationsOptions

var createAnnotationsCmd = &cobra.Command{
	Use:   "annotations",
	Short: "Upload annotations for existing comments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunCreateAnnotations(cmd.Context(), globals(cmd), createAnnotationsOpts)
	},
}

var createEmailsOpts app.CreateEmailsOptions

var createEmailsCmd = &cobra.Command{
	Use:   "emails [eml-file-or-dir]...",
	Short: "Upload raw emails to a bucket",
	Long: "Upload raw emails to a bucket, either from a JSONL file of {id, mime_content, metadata}\n" +
		"or from .eml files and directories given as arguments.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := createEmailsOpts
		if len(args) > 0 && opts.File != "" {
			return fmt.Errorf("--file cannot be combined with .eml paths")
		}
		opts.EmlPaths = args
		return app.RunCreateEmails(cmd.Context(), globals(cmd), opts)
	},
}

// exceptionCmd builds stream-exception and its trigger twin.
func exceptionCmd(kind string, run func(context.Context, app.GlobalOptions, app.CreateStreamExceptionOptions) error) *cobra.Command {
	var opts app.CreateStreamExceptionOptions
	cmd := &cobra.Command{
		Use:   kind + "-exception",
		Short: "Tag comments as exceptions on a " + kind,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), globals(cmd), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Stream, kind, "", kind+" as owner/dataset/"+kind)
	f.StringVar(&opts.Type, "type", "", "exception type recorded in the metadata")
	f.StringSliceVar(&opts.UIDs, "uid", nil, "comment uids to tag")
	_ = cmd.MarkFlagRequired(kind)
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

var (
	createStreamExceptionCmd  = exceptionCmd("stream", app.RunCreateStreamException)
	createTriggerExceptionCmd = exceptionCmd("trigger", app.RunCreateTriggerException)
)

var (
	createQuotaOpts         app.CreateQuotaOptions
	createQuotaAutoIncrease int64
)

var createQuotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Set a quota for a tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := createQuotaOpts
		if cmd.Flags().Changed("auto-increase-up-to") {
			opts.AutoIncreaseUpTo = &createQuotaAutoIncrease
		}
		return app.RunCreateQuota(cmd.Context(), globals(cmd), opts)
	},
}

var createStreamsOpts app.CreateStreamsOptions

var createStreamsCmd = &cobra.Command{
	Use:     "streams",
	Aliases: []string{"stream"},
	Short:   "Create streams from a JSON lines file of definitions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunCreateStreams(cmd.Context(), globals(cmd), createStreamsOpts)
	},
}

var createIntegrationOpts app.CreateIntegrationOptions

var createIntegrationCmd = &cobra.Command{
	Use:   "integration <owner/name>",
	Short: "Create or update a mailbox integration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := createIntegrationOpts
		opts.Name = args[0]
		return app.RunCreateIntegration(cmd.Context(), globals(cmd), opts)
	},
}

func init() {
	f := createSourceCmd.Flags()
	f.StringVar(&createSourceOpts.Title, "title", "", "title shown in the UI")
	f.StringVar(&createSourceOpts.Description, "description", "", "description shown in the UI")
	f.StringVar(&createSourceOpts.Language, "language", "", "language of the comments: en, de or xlm")
	f.BoolVar(&createSourceTranslate, "should-translate", false, "translate comments to the source language")
	f.StringVar(&createSourceOpts.Bucket, "bucket", "", "bucket to pull emails from")
	f.StringVar(&createSourceOpts.Kind, "kind", "", "source kind: email, comment, call, chat, ixp_design or ixp_runtime")
	f.StringVar(&createSourceOpts.TransformTag, "transform-tag", "", "email transform tag")
	f.StringSliceVar(&createSourceOpts.SensitiveProperties, "sensitive-properties", nil, "user properties hidden from the UI")

	f = createDatasetCmd.Flags()
	f.StringVar(&createDatasetOpts.Title, "title", "", "title shown in the UI")
	f.StringVar(&createDatasetOpts.Description, "description", "", "description shown in the UI")
	f.BoolVar(&createDatasetSentiment, "has-sentiment", false, "enable sentiment on labels")
	f.StringSliceVarP(&createDatasetOpts.Sources, "source", "s", nil, "source names or ids")
	f.StringVarP(&createDatasetOpts.EntityDefs, "entity-defs", "e", "", "entity definitions as a JSON array")
	f.StringVar(&createDatasetOpts.LabelDefs, "label-defs", "", "label definitions as a JSON array")
	f.StringVar(&createDatasetOpts.LabelGroups, "label-groups", "", "label groups as a JSON array, replaces --label-defs")
	f.StringVar(&createDatasetOpts.ModelFamily, "model-family", "", "model family to train")
	f.StringVar(&createDatasetOpts.CopyAnnotationsFrom, "copy-annotations-from", "", "dataset id to copy annotations from")

	f = createBucketCmd.Flags()
	f.StringVar(&createBucketOpts.Title, "title", "", "title shown in the UI")
	f.StringVar(&createBucketOpts.TransformTag, "transform-tag", "", "email transform tag")

	f = createProjectCmd.Flags()
	f.StringVar(&createProjectOpts.Title, "title", "", "title shown in the UI")
	f.StringVar(&createProjectOpts.Description, "description", "", "description shown in the UI")
	f.StringSliceVar(&createProjectOpts.UserIDs, "user-ids", nil, "users to add to the project")

	f = createUserCmd.Flags()
	f.StringSliceVar(&createUserOpts.GlobalPermissions, "global-permissions", nil, "global permissions to grant")
	f.StringVar(&createUserOpts.Project, "project", "", "project to grant --project-permissions on")
	f.StringSliceVar(&createUserOpts.ProjectPermissions, "project-permissions", nil, "project permissions to grant")
	f.BoolVar(&createUserOpts.SendWelcomeEmail, "send-welcome-email", false, "send the user a welcome email")

	f = createCommentsCmd.Flags()
	f.StringVarP(&createCommentsOpts.File, "file", "f", "", "JSONL file to upload (defaults to stdin)")
	f.StringVarP(&createCommentsOpts.Source, "source", "s", "", "source name or id")
	f.StringVarP(&createCommentsOpts.Dataset, "dataset", "d", "", "dataset to upload annotations to")
	f.IntVar(&createCommentsOpts.BatchSize, "batch-size", 128, "comments per request")
	f.BoolVar(&createCommentsOpts.Overwrite, "overwrite", false, "sync every comment, replacing existing ones")
	f.BoolVar(&createCommentsOpts.AllowDuplicates, "allow-duplicates", false, "allow repeated ids, later ones are synced")
	f.BoolVar(&createCommentsOpts.ResumeOnError, "resume-on-error", false, "skip comments the API rejects instead of failing")
	f.BoolVar(&createCommentsOpts.NoProgress, "no-progress", false, "don't display a progress bar")
	_ = createCommentsCmd.MarkFlagRequired("source")

	f = createAnnotationsCmd.Flags()
	f.StringVarP(&createAnnotationsOpts.File, "file", "f", "", "JSONL file to upload (defaults to stdin)")
	f.StringVarP(&createAnnotationsOpts.Source, "source", "s", "", "source the comments belong to")
	f.StringVarP(&createAnnotationsOpts.Dataset, "dataset", "d", "", "dataset to upload annotations to")
	f.IntVar(&createAnnotationsOpts.BatchSize, "batch-size", 128, "annotations read per batch")
	f.BoolVar(&createAnnotationsOpts.ResumeOnError, "resume-on-error", false, "skip annotations the API rejects instead of failing")
	f.BoolVar(&createAnnotationsOpts.NoProgress, "no-progress", false, "don't display a progress bar")
	_ = createAnnotationsCmd.MarkFlagRequired("source")
	_ = createAnnotationsCmd.MarkFlagRequired("dataset")

	f = createEmailsCmd.Flags()
	f.StringVarP(&createEmailsOpts.File, "file", "f", "", "JSONL file to upload (defaults to stdin)")
	f.StringVarP(&createEmailsOpts.Bucket, "bucket", "b", "", "bucket name or id")
	f.IntVar(&createEmailsOpts.BatchSize, "batch-size", 128, "emails per request")
	f.BoolVar(&createEmailsOpts.ResumeOnError, "resume-on-error", false, "skip emails the API rejects instead of failing")
	f.BoolVar(&createEmailsOpts.NoProgress, "no-progress", false, "don't display a progress bar")
	_ = createEmailsCmd.MarkFlagRequired("bucket")

	f = createQuotaCmd.Flags()
	f.StringVar(&createQuotaOpts.ReinferTenantID, "reinfer-tenant-id", "", "tenant id on the platform")
	f.StringVar(&createQuotaOpts.UiPathTenantID, "uipath-tenant-id", "", "tenant id in UiPath")
	f.StringVar(&createQuotaOpts.Kind, "tenant-quota-kind", "", "quota kind, e.g. sources or comments_per_source")
	f.Int64Var(&createQuotaOpts.HardLimit, "hard-limit", 0, "new value of the quota")
	f.Int64Var(&createQuotaAutoIncrease, "auto-increase-up-to", 0, "let the quota grow automatically up to this value")
	_ = createQuotaCmd.MarkFlagRequired("tenant-quota-kind")
	_ = createQuotaCmd.MarkFlagRequired("hard-limit")

	f = createStreamsCmd.Flags()
	f.StringVarP(&createStreamsOpts.Dataset, "dataset", "d", "", "dataset name or id")
	f.StringVarP(&createStreamsOpts.File, "file", "f", "", "JSONL file of stream definitions (defaults to stdin)")
	f.IntVarP(&createStreamsOpts.ModelVersion, "model-version", "v", 0, "model version the streams use")
	_ = createStreamsCmd.MarkFlagRequired("dataset")
	_ = createStreamsCmd.MarkFlagRequired("model-version")

	f = createIntegrationCmd.Flags()
	f.StringVarP(&createIntegrationOpts.File, "file", "f", "", "JSON file holding the integration")
	f.BoolVar(&createIntegrationOpts.Overwrite, "overwrite", false, "update the integration if it already exists")
	_ = createIntegrationCmd.MarkFlagRequired("file")

	createCmd.AddCommand(
		createSourceCmd,
		createDatasetCmd,
		createBucketCmd,
		createProjectCmd,
		createUserCmd,
		createCommentsCmd,
		createAnnotationsCmd,
		createEmailsCmd,
		createStreamExceptionCmd,
		createTriggerExceptionCmd,
		createQuotaCmd,
		createStreamsCmd,
		createIntegrationCmd,
	)
}
