package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"reinfer-cli/internal/client"
	"reinfer-cli/internal/input"
)

type CreateAnnotationsOptions struct {
	Source        string
	Dataset       string
	File          string
	BatchSize     int
	ResumeOnError bool
	NoProgress    bool
}

// annotationPool uploads labellings concurrently, at most threads at a time.
type annotationPool struct {
	api           *client.Client
	dataset       client.FullName
	sourceID      string
	threads       int
	resumeOnError bool
	log           *Logger

	uploaded atomic.Int64
	failed   atomic.Int64
}

func labellingUID(sourceID, commentID string) string {
	return sourceID + "." + commentID
}

// upload sends every annotation in batch and waits for all of them. Without
// resumeOnError the first failure is returned once the batch has drained.
func (p *annotationPool) upload(ctx context.Context, batch []client.NewAnnotatedComment) error {
	threads := p.threads
	if threads <= 0 {
		threads = defaultNumThreads
	}
	sem := semaphore.NewWeighted(int64(threads))
	var g errgroup.Group
	var acquireErr error
	for _, a := range batch {
		a := a
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			uid := labellingUID(p.sourceID, a.Comment.ID)
			err := p.api.UpdateLabelling(ctx, p.dataset, uid, a.Labelling, a.Entities, a.MoonForms)
			if err != nil {
				p.failed.Add(1)
				if p.resumeOnError {
					p.log.Debug("skipping annotation", "uid", uid, "err", err)
					return nil
				}
				return fmt.Errorf("could not update labelling for comment `%s`: %w", uid, err)
			}
			p.uploaded.Add(1)
			return nil
		})
	}
	err := g.Wait()
	if err == nil && acquireErr != nil {
		err = acquireErr
	}
	return err
}

func RunCreateAnnotations(ctx context.Context, g GlobalOptions, opts CreateAnnotationsOptions) error {
	if opts.BatchSize <= 0 {
		return errors.New("--batch-size must be greater than 0")
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
	dataset, err := s.resolveDataset(ctx, opts.Dataset)
	if err != nil {
		return err
	}

	f, err := input.Open(opts.File)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if f.IsStdin() {
		s.log.Info(fmt.Sprintf("Uploading annotations from stdin to source `%s` [id: %s] and dataset `%s` [id: %s]",
			source.FullName(), source.ID, dataset.FullName(), dataset.ID))
	} else {
		s.log.Info(fmt.Sprintf("Uploading annotations from file `%s` to source `%s` [id: %s] and dataset `%s` [id: %s]",
			f.Path, source.FullName(), source.ID, dataset.FullName(), dataset.ID))
	}

	pool := &annotationPool{
		api:           s.client,
		dataset:       dataset.FullName(),
		sourceID:      source.ID,
		threads:       s.threads,
		resumeOnError: opts.ResumeOnError,
		log:           s.log,
	}
	progress := startProgress(!opts.NoProgress && !f.IsStdin(), func() string {
		msg := fmt.Sprintf("%s %s annotations", bytesProgress(f.BytesRead(), f.Size), comma(pool.uploaded.Load()))
		if n := pool.failed.Load(); n > 0 {
			msg += fmt.Sprintf(" %s skipped", comma(n))
		}
		return msg
	})
	err = uploadAnnotationsFrom(ctx, f, pool, opts.BatchSize)
	progress.Done()
	if err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("Successfully uploaded %d annotations.", pool.uploaded.Load()))
	return nil
}

// uploadAnnotationsFrom streams f in batches. Lines without any assigned or
// dismissed labels, entities or forms are ignored.
func uploadAnnotationsFrom(ctx context.Context, f *input.File, pool *annotationPool, batchSize int) error {
	batch := make([]client.NewAnnotatedComment, 0, batchSize)
	for {
		var line client.NewAnnotatedComment
		ok, err := f.Next(&line)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if !line.HasAnnotations() {
			continue
		}
		batch = append(batch, line)
		if len(batch) >= batchSize {
			if err := pool.upload(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return pool.upload(ctx, batch)
	}
	return nil
}
