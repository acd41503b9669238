package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"reinfer-cli/internal/client"
)

// deleteBatchSize is the most comments the API deletes in one call.
const deleteBatchSize = 128

type DeleteBulkOptions struct {
	Source           string
	IncludeAnnotated bool
	From             *time.Time
	To               *time.Time
	NoProgress       bool
}

type deleteStats struct {
	deleted atomic.Int64
	skipped atomic.Int64
}

func RunDeleteBulk(ctx context.Context, g GlobalOptions, opts DeleteBulkOptions) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	source, err := s.resolveSource(ctx, opts.Source)
	if err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("Deleting comments in source `%s`%s (include-annotated: %t)",
		source.FullName(), describeRange(opts.From, opts.To), opts.IncludeAnnotated))

	var stats deleteStats
	progress := startProgress(!opts.NoProgress, func() string {
		return fmt.Sprintf("%s deleted, %s skipped", comma(stats.deleted.Load()), comma(stats.skipped.Load()))
	})
	err = deleteCommentsInPeriod(ctx, s.client, source.FullName(), opts, &stats)
	progress.Done()
	if err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("Deleted %d comments (skipped %d).", stats.deleted.Load(), stats.skipped.Load()))
	return nil
}

func deleteCommentsInPeriod(ctx context.Context, api *client.Client, source client.FullName, opts DeleteBulkOptions, stats *deleteStats) error {
	pending := make([]string, 0, deleteBatchSize+client.MaxPageSize)
	flush := func(ids []string) error {
		if err := api.DeleteComments(ctx, source, ids); err != nil {
			return fmt.Errorf("operation to delete comments failed: %w", err)
		}
		stats.deleted.Add(int64(len(ids)))
		return nil
	}
	it := api.Comments(source, opts.From, opts.To, client.MaxPageSize)
	for !it.Done() {
		page, err := it.Next(ctx)
		if err != nil {
			return fmt.Errorf("operation to get comments failed: %w", err)
		}
		for _, c := range page {
			if !opts.IncludeAnnotated && c.HasAnnotations != nil && *c.HasAnnotations {
				stats.skipped.Add(1)
				continue
			}
			pending = append(pending, c.ID)
		}
		for len(pending) >= deleteBatchSize {
			if err := flush(pending[:deleteBatchSize]); err != nil {
				return err
			}
			pending = append(pending[:0], pending[deleteBatchSize:]...)
		}
	}
	if len(pending) > 0 {
		return flush(pending)
	}
	return nil
}

func describeRange(from, to *time.Time) string {
	switch {
	case from != nil && to != nil:
		return fmt.Sprintf(" in range %s -> %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	case from != nil:
		return " after " + from.Format(time.RFC3339)
	case to != nil:
		return " before " + to.Format(time.RFC3339)
	default:
		return ""
	}
}
