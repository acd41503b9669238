package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"reinfer-cli/internal/client"
	"reinfer-cli/internal/output"
)

const defaultStreamBatchSize = 16

type GetStreamCommentsOptions struct {
	Stream string
	Size   int
	// Listen polls forever, waiting this long whenever the stream is idle.
	// Zero fetches a single batch.
	Listen            time.Duration
	IndividualAdvance bool
}

// cursor is a stream or its older trigger form: both fetch batches and
// acknowledge them by sequence id.
type cursor struct {
	kind    string
	name    client.StreamFullName
	fetch   func(context.Context, client.StreamFullName, int) (client.StreamBatch, error)
	advance func(context.Context, client.StreamFullName, string) error
}

func streamCursor(api *client.Client, name client.StreamFullName) cursor {
	return cursor{kind: "stream", name: name, fetch: api.FetchStream, advance: api.AdvanceStream}
}

func triggerCursor(api *client.Client, name client.StreamFullName) cursor {
	return cursor{kind: "trigger", name: name, fetch: api.FetchTrigger, advance: api.AdvanceTrigger}
}

func (c cursor) Fetch(ctx context.Context, size int) (client.StreamBatch, error) {
	batch, err := c.fetch(ctx, c.name, size)
	if err != nil {
		return client.StreamBatch{}, fmt.Errorf("operation to fetch %s comments failed: %w", c.kind, err)
	}
	return batch, nil
}

func (c cursor) Advance(ctx context.Context, sequenceID, what string) error {
	if err := c.advance(ctx, c.name, sequenceID); err != nil {
		return fmt.Errorf("operation to advance %s for %s failed: %w", c.kind, what, err)
	}
	return nil
}

func RunGetStreamComments(ctx context.Context, g GlobalOptions, opts GetStreamCommentsOptions) error {
	return runCursorComments(ctx, g, opts, streamCursor)
}

// RunGetTriggerComments is stream-comments for datasets still using triggers.
func RunGetTriggerComments(ctx context.Context, g GlobalOptions, opts GetStreamCommentsOptions) error {
	return runCursorComments(ctx, g, opts, triggerCursor)
}

func runCursorComments(ctx context.Context, g GlobalOptions, opts GetStreamCommentsOptions, open func(*client.Client, client.StreamFullName) cursor) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	name, err := client.ParseStreamFullName(opts.Stream)
	if err != nil {
		return err
	}
	cur := open(s.client, name)
	size := opts.Size
	if size <= 0 {
		size = defaultStreamBatchSize
	}
	if opts.Listen <= 0 {
		batch, err := cur.Fetch(ctx, size)
		if err != nil {
			return err
		}
		return output.WriteJSONLines(stdout, batch)
	}
	s.log.Info(fmt.Sprintf("Listening on %s `%s`", cur.kind, name))
	return listen(ctx, cur, size, opts.Listen, opts.IndividualAdvance, stdout)
}

// listen fetches and acknowledges batches until ctx is done.
func listen(ctx context.Context, cur cursor, size int, idle time.Duration, individual bool, w io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := cur.Fetch(ctx, size)
		if err != nil {
			return err
		}
		if len(batch.Results) == 0 {
			if batch.Filtered == 0 {
				if err := sleepCtx(ctx, idle); err != nil {
					return err
				}
				continue
			}
			// Everything was filtered out; skip past it.
			if err := cur.Advance(ctx, batch.SequenceID, "batch"); err != nil {
				return err
			}
			continue
		}
		last := batch.Results[len(batch.Results)-1]
		needsFinalAdvance := !individual || batch.SequenceID != last.SequenceID
		for _, result := range batch.Results {
			if err := output.WriteJSONLines(w, result); err != nil {
				return err
			}
			if individual {
				if err := cur.Advance(ctx, result.SequenceID, "comment"); err != nil {
					return err
				}
			}
		}
		if needsFinalAdvance {
			if err := cur.Advance(ctx, batch.SequenceID, "batch"); err != nil {
				return err
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func RunStreamAdvance(ctx context.Context, g GlobalOptions, stream, sequenceID string) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	name, err := client.ParseStreamFullName(stream)
	if err != nil {
		return err
	}
	if sequenceID == "" {
		return errors.New("--sequence-id is required")
	}
	if err := s.client.AdvanceStream(ctx, name, sequenceID); err != nil {
		return fmt.Errorf("could not advance stream %s: %w", name, err)
	}
	s.log.Info(fmt.Sprintf("Advanced stream `%s` to sequence id %s", name, sequenceID))
	return nil
}

func RunStreamReset(ctx context.Context, g GlobalOptions, stream string, to time.Time) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	name, err := client.ParseStreamFullName(stream)
	if err != nil {
		return err
	}
	if err := s.client.ResetStream(ctx, name, to); err != nil {
		return fmt.Errorf("could not reset stream %s: %w", name, err)
	}
	s.log.Info(fmt.Sprintf("Reset stream `%s` to comments created at %s", name, to.UTC().Format(time.RFC3339)))
	return nil
}
