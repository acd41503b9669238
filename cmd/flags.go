package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// timestamp parses an RFC 3339 flag value. An empty value means unset.
func timestamp(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("--%s expects an RFC 3339 timestamp such as 2024-01-31T00:00:00Z: %w", flag, err)
	}
	return &t, nil
}

func timeRange(fromFlag, from, toFlag, to string) (*time.Time, *time.Time, error) {
	start, err := timestamp(fromFlag, from)
	if err != nil {
		return nil, nil, err
	}
	end, err := timestamp(toFlag, to)
	if err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, fmt.Errorf("--%s must not be before --%s", toFlag, fromFlag)
	}
	return start, end, nil
}

// changed returns a pointer to v when the flag was set on the command line.
func changed[T any](cmd *cobra.Command, flag string, v T) *T {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &v
}
