package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reinfer-cli/internal/app"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Display resources and export comments to the local filesystem",
}

// listCmd builds a "get <resource> [name]" command.
func listCmd(use, short string, aliases []string, run func(context.Context, app.GlobalOptions, string) error) *cobra.Command {
	return &cobra.Command{
		Use:     use + " [name-or-id]",
		Aliases: aliases,
		Short:   short,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			return run(cmd.Context(), globals(cmd), name)
		},
	}
}

// plainCmd builds a "get <resource>" command without arguments.
func plainCmd(use, short string, aliases []string, run func(context.Context, app.GlobalOptions) error) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Aliases: aliases,
		Short:   short,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), globals(cmd))
		},
	}
}

var getCommentSource, getCommentFile string

var getCommentCmd = &cobra.Command{
	Use:   "comment <id>",
	Short: "Fetch a single comment from a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunGetComment(cmd.Context(), globals(cmd), getCommentSource, args[0], getCommentFile)
	},
}

var getEmailsOpts app.GetEmailsOptions

var getEmailsCmd = &cobra.Command{
	Use:   "emails <bucket>",
	Short: "Download all emails from a bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := getEmailsOpts
		opts.Bucket = args[0]
		return app.RunGetEmails(cmd.Context(), globals(cmd), opts)
	},
}

var getKeyedSyncStatesCmd = &cobra.Command{
	Use:   "keyed-sync-states <bucket>",
	Short: "List the mailbox sync states of a bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunGetKeyedSyncStates(cmd.Context(), globals(cmd), args[0])
	},
}

var (
	getCommentsOpts   app.GetCommentsOptions
	getCommentsFrom   string
	getCommentsTo     string
	getCommentsFilter string
)

var getCommentsCmd = &cobra.Command{
	Use:   "comments <source>",
	Short: "Download all comments from a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := getCommentsOpts
		opts.Source = args[0]
		var err error
		if opts.From, opts.To, err = timeRange("from-timestamp", getCommentsFrom, "to-timestamp", getCommentsTo); err != nil {
			return err
		}
		if getCommentsFilter != "" {
			opts.PropertyFilter = json.RawMessage(getCommentsFilter)
		}
		return app.RunGetComments(cmd.Context(), globals(cmd), opts)
	},
}

var getStreamsOpts app.GetStreamsOptions

var getStreamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "List the streams of a dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunGetStreams(cmd.Context(), globals(cmd), getStreamsOpts)
	},
}

var getTriggersDataset string

var getTriggersCmd = &cobra.Command{
	Use:   "triggers",
	Short: "List the triggers of a dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunGetTriggers(cmd.Context(), globals(cmd), getTriggersDataset)
	},
}

// cursorCommentsCmd builds stream-comments and its trigger twin, which
// differ only in the endpoints they poll.
func cursorCommentsCmd(use, kind, shorthand string, run func(context.Context, app.GlobalOptions, app.GetStreamCommentsOptions) error) *cobra.Command {
	var (
		opts       app.GetStreamCommentsOptions
		listenSecs float64
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Fetch comments from a %s, optionally listening for new ones", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := opts
			if cmd.Flags().Changed("listen") {
				o.Listen = time.Duration(listenSecs * float64(time.Second))
				if o.Listen <= 0 {
					o.Listen = time.Millisecond
				}
			}
			return run(cmd.Context(), globals(cmd), o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Stream, kind, shorthand, "", kind+" as owner/dataset/"+kind)
	f.IntVar(&opts.Size, "size", 16, "comments to fetch per batch")
	f.Float64Var(&listenSecs, "listen", 0, "keep polling, sleeping this many seconds when the "+kind+" is idle")
	f.BoolVar(&opts.IndividualAdvance, "individual-advance", false, "advance the "+kind+" after each printed comment")
	_ = cmd.MarkFlagRequired(kind)
	return cmd
}

var (
	getStreamCommentsCmd  = cursorCommentsCmd("stream-comments", "stream", "", app.RunGetStreamComments)
	getTriggerCommentsCmd = cursorCommentsCmd("trigger-comments", "trigger", "t", app.RunGetTriggerComments)
)

var streamStatsName string

var getStreamStatsCmd = &cobra.Command{
	Use:   "stream-stats",
	Short: "Show a stream and the number of comments its filter matches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunGetStreamStats(cmd.Context(), globals(cmd), streamStatsName)
	},
}

var auditMinimum, auditMaximum string

var getAuditEventsCmd = &cobra.Command{
	Use:   "audit-events",
	Short: "List audit events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := timeRange("minimum", auditMinimum, "maximum", auditMaximum)
		if err != nil {
			return err
		}
		return app.RunGetAuditEvents(cmd.Context(), globals(cmd), app.GetAuditEventsOptions{Minimum: start, Maximum: end})
	},
}

func init() {
	getCommentCmd.Flags().StringVar(&getCommentSource, "source", "", "source name or id")
	getCommentCmd.Flags().StringVarP(&getCommentFile, "file", "f", "", "write the comment to this file instead of stdout")
	_ = getCommentCmd.MarkFlagRequired("source")

	getEmailsCmd.Flags().StringVarP(&getEmailsOpts.File, "file", "f", "", "output file, .gz or .zst compresses (defaults to stdout)")
	getEmailsCmd.Flags().BoolVar(&getEmailsOpts.NoProgress, "no-progress", false, "don't display a progress bar")

	f := getCommentsCmd.Flags()
	f.StringVarP(&getCommentsOpts.Dataset, "dataset", "d", "", "dataset name or id, adds annotations to the export")
	f.BoolVar(&getCommentsOpts.NoProgress, "no-progress", false, "don't display a progress bar")
	f.BoolVar(&getCommentsOpts.Predictions, "predictions", false, "include predictions (requires --dataset)")
	f.IntVar(&getCommentsOpts.ModelVersion, "model-version", 0, "replace predictions with those of this model version")
	f.BoolVar(&getCommentsOpts.ReviewedOnly, "reviewed-only", false, "only export reviewed comments (requires --dataset)")
	f.StringVar(&getCommentsFrom, "from-timestamp", "", "earliest comment timestamp (RFC 3339)")
	f.StringVar(&getCommentsTo, "to-timestamp", "", "latest comment timestamp (RFC 3339)")
	f.StringVarP(&getCommentsOpts.File, "file", "f", "", "output file, .gz or .zst compresses (defaults to stdout)")
	f.StringVarP(&getCommentsFilter, "user-property-filter", "p", "", "user property filter as JSON (requires --dataset)")
	f.StringSliceVar(&getCommentsOpts.Senders, "senders", nil, "only comments sent by these addresses (requires --dataset)")
	f.StringSliceVar(&getCommentsOpts.Recipients, "recipients", nil, "only emails sent to these addresses (requires --dataset)")
	f.StringVarP(&getCommentsOpts.LabelFilter, "label-filter", "l", "", "regular expression over label names, keeps comments with a matching label (requires --dataset)")

	getStreamsCmd.Flags().StringVarP(&getStreamsOpts.Dataset, "dataset", "d", "", "dataset name")
	getStreamsCmd.Flags().StringVarP(&getStreamsOpts.File, "file", "f", "", "write the streams as JSON lines to this file")
	_ = getStreamsCmd.MarkFlagRequired("dataset")

	getTriggersCmd.Flags().StringVarP(&getTriggersDataset, "dataset", "d", "", "dataset name")
	_ = getTriggersCmd.MarkFlagRequired("dataset")

	getStreamStatsCmd.Flags().StringVar(&streamStatsName, "stream", "", "stream as owner/dataset/stream")
	_ = getStreamStatsCmd.MarkFlagRequired("stream")

	getAuditEventsCmd.Flags().StringVar(&auditMinimum, "minimum", "", "earliest event timestamp (RFC 3339)")
	getAuditEventsCmd.Flags().StringVar(&auditMaximum, "maximum", "", "latest event timestamp (RFC 3339)")

	getCmd.AddCommand(
		listCmd("sources", "List sources", []string{"source"}, app.RunGetSources),
		listCmd("datasets", "List datasets", []string{"dataset"}, app.RunGetDatasets),
		listCmd("buckets", "List buckets", []string{"bucket"}, app.RunGetBuckets),
		listCmd("projects", "List projects", []string{"project"}, app.RunGetProjects),
		listCmd("users", "List users", []string{"user"}, app.RunGetUsers),
		plainCmd("current-user", "Show the authenticated user", nil, app.RunGetCurrentUser),
		plainCmd("quotas", "List tenant quotas", []string{"quota"}, app.RunGetQuotas),
		plainCmd("integrations", "List mailbox integrations", []string{"integration"}, app.RunGetIntegrations),
		plainCmd("alerts", "List alerts", []string{"alert"}, app.RunGetAlerts),
		getCommentCmd,
		getCommentsCmd,
		getEmailsCmd,
		getKeyedSyncStatesCmd,
		getStreamsCmd,
		getTriggersCmd,
		getTriggerCommentsCmd,
		getStreamCommentsCmd,
		getStreamStatsCmd,
		getAuditEventsCmd,
	)
}
