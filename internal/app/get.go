package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"reinfer-cli/internal/client"
	"reinfer-cli/internal/output"
)

// runList fetches a resource list and prints it sorted by key.
func runList[T any](ctx context.Context, g GlobalOptions, fetch func(context.Context, *client.Client) ([]T, error), key func(T) string) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	items, err := fetch(ctx, s.client)
	if err != nil {
		return err
	}
	if key != nil {
		sort.SliceStable(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })
	}
	return s.printer.Print(items)
}

func one[T any](v T, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	return []T{v}, nil
}

func RunGetSources(ctx context.Context, g GlobalOptions, source string) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.Source, error) {
		if source == "" {
			return c.GetSources(ctx)
		}
		id, err := client.ParseSourceIdentifier(source)
		if err != nil {
			return nil, err
		}
		return one(c.GetSource(ctx, id))
	}, func(s client.Source) string { return s.FullName().String() })
}

func RunGetDatasets(ctx context.Context, g GlobalOptions, dataset string) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.Dataset, error) {
		if dataset == "" {
			return c.GetDatasets(ctx)
		}
		id, err := client.ParseDatasetIdentifier(dataset)
		if err != nil {
			return nil, err
		}
		return one(c.GetDataset(ctx, id))
	}, func(d client.Dataset) string { return d.FullName().String() })
}

func RunGetBuckets(ctx context.Context, g GlobalOptions, bucket string) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.Bucket, error) {
		if bucket == "" {
			return c.GetBuckets(ctx)
		}
		id, err := client.ParseBucketIdentifier(bucket)
		if err != nil {
			return nil, err
		}
		return one(c.GetBucket(ctx, id))
	}, func(b client.Bucket) string { return b.FullName().String() })
}

func RunGetProjects(ctx context.Context, g GlobalOptions, project string) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.Project, error) {
		if project == "" {
			return c.GetProjects(ctx)
		}
		name, err := client.ParseProjectName(project)
		if err != nil {
			return nil, err
		}
		return one(c.GetProject(ctx, name))
	}, func(p client.Project) string { return p.Name })
}

func RunGetUsers(ctx context.Context, g GlobalOptions, user string) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.User, error) {
		if user == "" {
			return c.GetUsers(ctx)
		}
		id, err := client.ParseUserID(user)
		if err != nil {
			return nil, err
		}
		return one(c.GetUser(ctx, id))
	}, func(u client.User) string { return u.Username })
}

func RunGetCurrentUser(ctx context.Context, g GlobalOptions) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.User, error) {
		return one(c.GetCurrentUser(ctx))
	}, nil)
}

func RunGetQuotas(ctx context.Context, g GlobalOptions) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.Quota, error) {
		return c.GetQuotas(ctx)
	}, func(q client.Quota) string { return q.Kind })
}

func RunGetIntegrations(ctx context.Context, g GlobalOptions) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.Integration, error) {
		return c.GetIntegrations(ctx)
	}, func(i client.Integration) string { return i.FullName().String() })
}

func RunGetAlerts(ctx context.Context, g GlobalOptions) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.Alert, error) {
		return c.GetAlerts(ctx)
	}, func(a client.Alert) string { return a.FullName().String() })
}

type GetStreamsOptions struct {
	Dataset string
	File    string
}

// RunGetStreams prints stream definitions, or writes them as JSON lines
// when a file is given.
func RunGetStreams(ctx context.Context, g GlobalOptions, opts GetStreamsOptions) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	ds, err := client.ParseFullName("dataset", opts.Dataset)
	if err != nil {
		return err
	}
	streams, err := s.client.GetStreams(ctx, ds)
	if err != nil {
		return err
	}
	sort.SliceStable(streams, func(i, j int) bool { return streams[i].Name < streams[j].Name })
	if opts.File == "" {
		return s.printer.Print(streams)
	}
	out, err := output.CreateExport(opts.File, ds.String()+"_streams")
	if err != nil {
		return err
	}
	if err := output.WriteJSONLines(out, streams); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("Wrote %d streams to %s", len(streams), out.Path))
	return nil
}

func RunGetTriggers(ctx context.Context, g GlobalOptions, dataset string) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.Stream, error) {
		ds, err := client.ParseFullName("dataset", dataset)
		if err != nil {
			return nil, err
		}
		return c.GetTriggers(ctx, ds)
	}, func(t client.Stream) string { return t.Name })
}

// RunGetComment prints one comment as JSON, or writes it to file when one
// is given.
func RunGetComment(ctx context.Context, g GlobalOptions, source, id, file string) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	src, err := s.sourceFullName(ctx, source)
	if err != nil {
		return err
	}
	comment, err := s.client.GetComment(ctx, src, id)
	if err != nil {
		return err
	}
	if file == "" {
		return output.WriteJSONLines(stdout, comment)
	}
	out, err := output.CreateExport(file, src.String()+"_"+id)
	if err != nil {
		return err
	}
	if err := output.WriteJSONLines(out, comment); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("Wrote comment %s to %s", id, out.Path))
	return nil
}

type StreamStats struct {
	Stream     client.Stream     `json:"stream"`
	Statistics client.Statistics `json:"statistics"`
}

// RunGetStreamStats prints a stream definition together with how many
// dataset comments its filter currently matches.
func RunGetStreamStats(ctx context.Context, g GlobalOptions, stream string) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	name, err := client.ParseStreamFullName(stream)
	if err != nil {
		return err
	}
	st, err := s.client.GetStream(ctx, name)
	if err != nil {
		return err
	}
	var filter json.RawMessage
	if len(st.CommentFilter) > 0 && string(st.CommentFilter) != "null" {
		filter = st.CommentFilter
	}
	stats, err := s.client.GetStatistics(ctx, name.Dataset, filter)
	if err != nil {
		return err
	}
	if s.printer.Format() == output.FormatJSON {
		return output.WriteJSONLines(stdout, StreamStats{Stream: st, Statistics: stats})
	}
	rows := [][]string{
		{"Stream", name.String()},
		{"Title", st.Title},
		{"Updated (UTC)", st.UpdatedAt.UTC().Format(output.TimeLayout)},
		{"Matching comments", comma(int64(stats.NumComments))},
	}
	if st.LabelFilter != nil {
		rows = append(rows,
			[]string{"Label", st.LabelFilter.Label},
			[]string{"Model version", fmt.Sprint(st.LabelFilter.ModelVersion)},
			[]string{"Threshold", fmt.Sprint(st.LabelFilter.Threshold)},
		)
	}
	return s.printer.Table([]string{"Field", "Value"}, rows)
}

type GetAuditEventsOptions struct {
	Minimum *time.Time
	Maximum *time.Time
}

func RunGetAuditEvents(ctx context.Context, g GlobalOptions, opts GetAuditEventsOptions) error {
	return runList(ctx, g, func(ctx context.Context, c *client.Client) ([]client.PrintableAuditEvent, error) {
		return client.All[client.PrintableAuditEvent](ctx, c.AuditEvents(opts.Minimum, opts.Maximum))
	}, nil)
}

// sourceFullName resolves an id to its owner/name, since comment
// endpoints only address sources by name.
func (s *session) sourceFullName(ctx context.Context, source string) (client.FullName, error) {
	src, err := s.resolveSource(ctx, source)
	if err != nil {
		return client.FullName{}, err
	}
	return src.FullName(), nil
}

func (s *session) resolveSource(ctx context.Context, source string) (client.Source, error) {
	id, err := client.ParseSourceIdentifier(source)
	if err != nil {
		return client.Source{}, err
	}
	src, err := s.client.GetSource(ctx, id)
	if err != nil {
		return client.Source{}, fmt.Errorf("could not get source %s: %w", id, err)
	}
	return src, nil
}

func (s *session) resolveDataset(ctx context.Context, dataset string) (client.Dataset, error) {
	id, err := client.ParseDatasetIdentifier(dataset)
	if err != nil {
		return client.Dataset{}, err
	}
	ds, err := s.client.GetDataset(ctx, id)
	if err != nil {
		return client.Dataset{}, fmt.Errorf("could not get dataset %s: %w", id, err)
	}
	return ds, nil
}
