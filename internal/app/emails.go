package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"reinfer-cli/internal/client"
	"reinfer-cli/internal/input"
	"reinfer-cli/internal/output"
)

type CreateEmailsOptions struct {
	Bucket string
	// File is a JSONL of {id, mime_content, metadata?}. Empty reads stdin.
	File string
	// EmlPaths are .eml files or directories holding them. They take the
	// place of File when set.
	EmlPaths      []string
	BatchSize     int
	ResumeOnError bool
	NoProgress    bool
}

type emailStats struct {
	uploaded atomic.Int64
	failed   atomic.Int64
}

func RunCreateEmails(ctx context.Context, g GlobalOptions, opts CreateEmailsOptions) error {
	if opts.BatchSize <= 0 {
		return errors.New("--batch-size must be greater than 0")
	}
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	bucket, err := s.resolveBucket(ctx, opts.Bucket)
	if err != nil {
		return err
	}

	var stats emailStats
	send := func(batch []client.Email) error {
		failed, err := splitOnFailure(ctx, batch, opts.ResumeOnError, func(ctx context.Context, b []client.Email) error {
			return s.client.PutEmails(ctx, bucket.FullName(), b)
		})
		if err != nil {
			return fmt.Errorf("could not upload batch of emails: %w", err)
		}
		stats.uploaded.Add(int64(len(batch) - failed))
		stats.failed.Add(int64(failed))
		return nil
	}

	if len(opts.EmlPaths) > 0 {
		files, err := input.DiscoverEmails(opts.EmlPaths)
		if err != nil {
			return err
		}
		s.log.Info(fmt.Sprintf("Uploading %d .eml files to bucket `%s` [id: %s]", len(files), bucket.FullName(), bucket.ID))
		total := int64(len(files))
		progress := startProgress(!opts.NoProgress, func() string {
			return fmt.Sprintf("%s / %s emails", comma(stats.uploaded.Load()+stats.failed.Load()), comma(total))
		})
		err = uploadEmlFiles(files, opts.BatchSize, send)
		progress.Done()
		if err != nil {
			return err
		}
	} else {
		f, err := input.Open(opts.File)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if f.IsStdin() {
			s.log.Info(fmt.Sprintf("Uploading emails from stdin to bucket `%s` [id: %s]", bucket.FullName(), bucket.ID))
		} else {
			s.log.Info(fmt.Sprintf("Uploading emails from file `%s` to bucket `%s` [id: %s]", f.Path, bucket.FullName(), bucket.ID))
		}
		progress := startProgress(!opts.NoProgress && !f.IsStdin(), func() string {
			return fmt.Sprintf("%s %s emails", bytesProgress(f.BytesRead(), f.Size), comma(stats.uploaded.Load()))
		})
		err = uploadEmailLines(f, opts.BatchSize, send)
		progress.Done()
		if err != nil {
			return err
		}
	}

	msg := fmt.Sprintf("Successfully uploaded %d emails", stats.uploaded.Load())
	if n := stats.failed.Load(); n > 0 {
		msg += fmt.Sprintf(" (%d skipped)", n)
	}
	s.log.Info(msg)
	return nil
}

func uploadEmailLines(f *input.File, batchSize int, send func([]client.Email) error) error {
	batch := make([]client.Email, 0, batchSize)
	for {
		var email client.Email
		ok, err := f.Next(&email)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		batch = append(batch, email)
		if len(batch) == batchSize {
			if err := send(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return send(batch)
	}
	return nil
}

func uploadEmlFiles(files []input.EmailFile, batchSize int, send func([]client.Email) error) error {
	for start := 0; start < len(files); start += batchSize {
		end := min(start+batchSize, len(files))
		batch := make([]client.Email, 0, end-start)
		for _, f := range files[start:end] {
			batch = append(batch, client.Email{ID: f.ID, MIMEContent: f.MIME})
		}
		if err := send(batch); err != nil {
			return err
		}
	}
	return nil
}

type GetEmailsOptions struct {
	Bucket     string
	File       string
	NoProgress bool
}

func (s *session) resolveBucket(ctx context.Context, bucket string) (client.Bucket, error) {
	id, err := client.ParseBucketIdentifier(bucket)
	if err != nil {
		return client.Bucket{}, err
	}
	b, err := s.client.GetBucket(ctx, id)
	if err != nil {
		return client.Bucket{}, fmt.Errorf("could not get bucket %s: %w", id, err)
	}
	return b, nil
}

// RunGetEmails downloads every email in a bucket as JSON lines.
func RunGetEmails(ctx context.Context, g GlobalOptions, opts GetEmailsOptions) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	bucket, err := s.resolveBucket(ctx, opts.Bucket)
	if err != nil {
		return err
	}

	var total client.BucketCount
	if !opts.NoProgress {
		st, err := s.client.GetBucketStatistics(ctx, bucket.FullName())
		if err != nil {
			return fmt.Errorf("could not count emails in bucket: %w", err)
		}
		total = st.Count
	}

	var w io.Writer = stdout
	var export *output.Export
	if opts.File != "" {
		export, err = output.CreateExport(opts.File, bucket.FullName().String()+"_emails")
		if err != nil {
			return err
		}
		defer func() { _ = export.Close() }()
		w = export
	}

	var downloaded atomic.Int64
	progress := startProgress(!opts.NoProgress && export != nil, func() string {
		bound := comma(total.Value)
		if !total.Exact() {
			bound = "~" + bound
		}
		return fmt.Sprintf("%s / %s emails", comma(downloaded.Load()), bound)
	})
	err = writeEmails(ctx, s.client.Emails(bucket.FullName(), 0), w, &downloaded)
	progress.Done()
	if err != nil {
		return err
	}
	if export != nil {
		if err := export.Close(); err != nil {
			return err
		}
	}
	s.log.Info(fmt.Sprintf("Successfully downloaded %d emails.", downloaded.Load()))
	return nil
}

func writeEmails(ctx context.Context, it client.Pager[client.Email], w io.Writer, n *atomic.Int64) error {
	for !it.Done() {
		page, err := it.Next(ctx)
		if err != nil {
			return fmt.Errorf("operation to get emails failed: %w", err)
		}
		if err := output.WriteJSONLines(w, page); err != nil {
			return err
		}
		n.Add(int64(len(page)))
	}
	return nil
}

func RunGetKeyedSyncStates(ctx context.Context, g GlobalOptions, bucket string) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	b, err := s.resolveBucket(ctx, bucket)
	if err != nil {
		return err
	}
	states, err := s.client.GetKeyedSyncStates(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("operation to get keyed sync states failed: %w", err)
	}
	return s.printer.Print(states)
}
