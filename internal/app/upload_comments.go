package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"reinfer-cli/internal/client"
	"reinfer-cli/internal/input"
)

type CreateCommentsOptions struct {
	Source          string
	Dataset         string
	File            string
	BatchSize       int
	Overwrite       bool
	AllowDuplicates bool
	ResumeOnError   bool
	NoProgress      bool
}

type uploadStats struct {
	uploaded          atomic.Int64
	new               atomic.Int64
	updated           atomic.Int64
	unchanged         atomic.Int64
	failed            atomic.Int64
	annotations       *atomic.Int64
	failedAnnotations *atomic.Int64
}

// commentUploader owns the pending put and sync batches of one upload.
type commentUploader struct {
	api             *client.Client
	source          client.FullName
	batchSize       int
	overwrite       bool
	allowDuplicates bool
	resumeOnError   bool
	annotations     *annotationPool

	seen    map[string]struct{}
	toPut   []client.NewComment
	toSync  []client.NewComment
	pending []client.NewAnnotatedComment
	stats   uploadStats
}

func newCommentUploader(api *client.Client, source client.FullName, opts CreateCommentsOptions, pool *annotationPool) *commentUploader {
	u := &commentUploader{
		api:             api,
		source:          source,
		batchSize:       opts.BatchSize,
		overwrite:       opts.Overwrite,
		allowDuplicates: opts.AllowDuplicates,
		resumeOnError:   opts.ResumeOnError,
		annotations:     pool,
		seen:            make(map[string]struct{}),
	}
	if pool != nil {
		u.stats.annotations = &pool.uploaded
		u.stats.failedAnnotations = &pool.failed
	} else {
		u.stats.annotations = new(atomic.Int64)
		u.stats.failedAnnotations = new(atomic.Int64)
	}
	return u
}

// shouldSync routes a comment to the sync endpoint, which tolerates ids the
// source already holds. Put rejects them.
func (u *commentUploader) shouldSync(id string) bool {
	if u.overwrite {
		return true
	}
	_, seen := u.seen[id]
	return u.allowDuplicates && seen
}

func (u *commentUploader) add(ctx context.Context, line client.NewAnnotatedComment) error {
	if u.shouldSync(line.Comment.ID) {
		u.toSync = append(u.toSync, line.Comment)
	} else {
		u.toPut = append(u.toPut, line.Comment)
	}
	u.seen[line.Comment.ID] = struct{}{}
	if u.annotations != nil && line.HasAnnotations() {
		u.pending = append(u.pending, line)
	}

	if len(u.toPut)+len(u.toSync) >= u.batchSize {
		if err := u.flushComments(ctx); err != nil {
			return err
		}
	}
	// Labellings need their comments to exist first.
	if len(u.pending) >= u.batchSize {
		if err := u.flushComments(ctx); err != nil {
			return err
		}
		if err := u.flushAnnotations(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (u *commentUploader) finish(ctx context.Context) error {
	if err := u.flushComments(ctx); err != nil {
		return err
	}
	return u.flushAnnotations(ctx)
}

func (u *commentUploader) flushAnnotations(ctx context.Context) error {
	if len(u.pending) == 0 {
		return nil
	}
	err := u.annotations.upload(ctx, u.pending)
	u.pending = u.pending[:0]
	return err
}

func (u *commentUploader) flushComments(ctx context.Context) error {
	if len(u.toPut) > 0 {
		failed, err := splitOnFailure(ctx, u.toPut, u.resumeOnError, func(ctx context.Context, batch []client.NewComment) error {
			return u.api.PutComments(ctx, u.source, batch)
		})
		if err != nil {
			return fmt.Errorf("could not put batch of comments: %w", err)
		}
		u.stats.uploaded.Add(int64(len(u.toPut) - failed))
		u.stats.failed.Add(int64(failed))
		u.toPut = u.toPut[:0]
	}
	if len(u.toSync) > 0 {
		var merged client.SyncCommentsResponse
		failed, err := splitOnFailure(ctx, u.toSync, u.resumeOnError, func(ctx context.Context, batch []client.NewComment) error {
			resp, err := u.api.SyncComments(ctx, u.source, batch)
			if err == nil {
				merged.Add(resp)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("could not sync batch of comments: %w", err)
		}
		u.stats.uploaded.Add(int64(len(u.toSync) - failed))
		u.stats.failed.Add(int64(failed))
		u.stats.new.Add(int64(merged.New))
		u.stats.updated.Add(int64(merged.Updated))
		u.stats.unchanged.Add(int64(merged.Unchanged))
		u.toSync = u.toSync[:0]
	}
	return nil
}

// splitOnFailure sends items in one request. When that fails in a way a
// single bad item could cause and split is set, every item is retried on
// its own and the number of items that still fail is returned.
func splitOnFailure[T any](ctx context.Context, items []T, split bool, call func(context.Context, []T) error) (int, error) {
	err := call(ctx, items)
	if err == nil {
		return 0, nil
	}
	if !split || !shouldSplit(err) {
		return 0, err
	}
	if len(items) == 1 {
		return 1, nil
	}
	failed := 0
	for i := range items {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
		if err := call(ctx, items[i:i+1]); err != nil {
			failed++
		}
	}
	return failed, nil
}

func shouldSplit(err error) bool {
	return client.IsStatus(err, http.StatusBadRequest) ||
		client.IsStatus(err, http.StatusUnprocessableEntity) ||
		client.IsTimeout(err) ||
		errors.Is(err, client.ErrEncodeRequest)
}

func RunCreateComments(ctx context.Context, g GlobalOptions, opts CreateCommentsOptions) error {
	if opts.BatchSize <= 0 {
		return errors.New("--batch-size must be greater than 0")
	}
	f, err := input.Open(opts.File)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if f.IsStdin() && !opts.AllowDuplicates {
		return errors.New("reading from stdin requires --allow-duplicates, since the input cannot be checked for duplicates")
	}
	if !opts.AllowDuplicates {
		if err := input.CheckNoDuplicateIDs(f); err != nil {
			return err
		}
	}

	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	source, err := s.resolveSource(ctx, opts.Source)
	if err != nil {
		return err
	}
	var pool *annotationPool
	if opts.Dataset != "" {
		dataset, err := s.resolveDataset(ctx, opts.Dataset)
		if err != nil {
			return err
		}
		pool = &annotationPool{
			api:           s.client,
			dataset:       dataset.FullName(),
			sourceID:      source.ID,
			threads:       s.threads,
			resumeOnError: opts.ResumeOnError,
			log:           s.log,
		}
	}

	if f.IsStdin() {
		s.log.Info(fmt.Sprintf("Uploading comments from stdin to source `%s` [id: %s]", source.FullName(), source.ID))
	} else {
		s.log.Info(fmt.Sprintf("Uploading comments from file `%s` to source `%s` [id: %s]", f.Path, source.FullName(), source.ID))
	}

	u := newCommentUploader(s.client, source.FullName(), opts, pool)
	progress := startProgress(!opts.NoProgress && !f.IsStdin(), func() string {
		msg := fmt.Sprintf("%s %s comments", bytesProgress(f.BytesRead(), f.Size), comma(u.stats.uploaded.Load()))
		if pool != nil {
			msg += fmt.Sprintf(" %s annotations", comma(u.stats.annotations.Load()))
		}
		if n := u.stats.failed.Load() + u.stats.failedAnnotations.Load(); n > 0 {
			msg += fmt.Sprintf(" %s skipped", comma(n))
		}
		return msg
	})
	err = uploadCommentsFrom(ctx, f, u)
	progress.Done()
	if err != nil {
		return err
	}
	s.log.Info(u.summary())
	return nil
}

func uploadCommentsFrom(ctx context.Context, f *input.File, u *commentUploader) error {
	for {
		var line client.NewAnnotatedComment
		ok, err := f.Next(&line)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := u.add(ctx, line); err != nil {
			return err
		}
	}
	return u.finish(ctx)
}

func (u *commentUploader) summary() string {
	st := &u.stats
	skipped := st.failed.Load() + st.failedAnnotations.Load()
	if u.overwrite {
		return fmt.Sprintf("Successfully uploaded %d comments [%d new | %d updated | %d unchanged | %d skipped] of which %d are annotated.",
			st.uploaded.Load(), st.new.Load(), st.updated.Load(), st.unchanged.Load(), skipped, st.annotations.Load())
	}
	return fmt.Sprintf("Successfully uploaded %d comments (of which %d are annotated). %d skipped",
		st.uploaded.Load(), st.annotations.Load(), skipped)
}
