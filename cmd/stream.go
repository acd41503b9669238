package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"reinfer-cli/internal/app"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Move a stream's position",
}

var (
	streamName       string
	streamSequenceID string
	streamResetTo    string
)

var streamAdvanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Advance a stream past a sequence id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunStreamAdvance(cmd.Context(), globals(cmd), streamName, streamSequenceID)
	},
}

var streamResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Rewind a stream to comments created after a timestamp",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := timestamp("to-comment-created-at", streamResetTo)
		if err != nil {
			return err
		}
		if to == nil {
			return fmt.Errorf("--to-comment-created-at is required")
		}
		return app.RunStreamReset(cmd.Context(), globals(cmd), streamName, *to)
	},
}

func init() {
	for _, c := range []*cobra.Command{streamAdvanceCmd, streamResetCmd} {
		c.Flags().StringVar(&streamName, "stream", "", "stream as owner/dataset/stream")
		_ = c.MarkFlagRequired("stream")
	}
	streamAdvanceCmd.Flags().StringVar(&streamSequenceID, "sequence-id", "", "sequence id returned by a fetch")
	_ = streamAdvanceCmd.MarkFlagRequired("sequence-id")
	streamResetCmd.Flags().StringVar(&streamResetTo, "to-comment-created-at", "", "RFC 3339 timestamp to rewind to")
	_ = streamResetCmd.MarkFlagRequired("to-comment-created-at")

	streamCmd.AddCommand(streamAdvanceCmd, streamResetCmd)
}
