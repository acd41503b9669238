package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"reinfer-cli/internal/client"
	"reinfer-cli/internal/output"
)

type GetCommentsOptions struct {
	Source       string
	Dataset      string
	File         string
	ReviewedOnly bool
	Predictions  bool
	// ModelVersion > 0 replaces stored predictions with a fresh run of that
	// model version.
	ModelVersion   int
	From           *time.Time
	To             *time.Time
	PropertyFilter json.RawMessage
	Senders        []string
	Recipients     []string
	// LabelFilter is a regular expression matched against the dataset's
	// label names.
	LabelFilter string
	NoProgress  bool
}

func (o GetCommentsOptions) validate() error {
	timeRange := o.From != nil || o.To != nil
	switch {
	case o.ReviewedOnly && timeRange:
		return errors.New("the --reviewed-only and --from-timestamp/--to-timestamp options are mutually exclusive")
	case o.ReviewedOnly && o.ModelVersion > 0:
		return errors.New("the --reviewed-only and --model-version options are mutually exclusive")
	case o.ReviewedOnly && len(o.PropertyFilter) > 0:
		return errors.New("the --reviewed-only and --user-property-filter options are mutually exclusive")
	case o.Dataset == "" && o.ReviewedOnly:
		return errors.New("cannot get reviewed comments when --dataset is not provided")
	case o.Dataset == "" && o.Predictions:
		return errors.New("cannot get predictions when --dataset is not provided")
	case o.Dataset == "" && o.ModelVersion > 0:
		return errors.New("cannot use --model-version when --dataset is not provided")
	case o.Dataset == "" && len(o.PropertyFilter) > 0:
		return errors.New("cannot filter on user properties when --dataset is not provided")
	case o.Dataset == "" && (len(o.Senders) > 0 || len(o.Recipients) > 0):
		return errors.New("cannot filter on --senders or --recipients when --dataset is not provided")
	case o.Dataset == "" && o.LabelFilter != "":
		return errors.New("cannot use --label-filter when --dataset is not provided")
	case o.ReviewedOnly && o.LabelFilter != "":
		return errors.New("the --reviewed-only and --label-filter options are mutually exclusive")
	case o.ModelVersion > 0 && o.LabelFilter != "":
		return errors.New("the --label-filter and --model-version options are mutually exclusive")
	}
	if len(o.PropertyFilter) > 0 && !json.Valid(o.PropertyFilter) {
		return errors.New("--user-property-filter must be valid JSON")
	}
	if o.LabelFilter != "" {
		if _, err := regexp.Compile(o.LabelFilter); err != nil {
			return fmt.Errorf("invalid --label-filter: %w", err)
		}
	}
	return nil
}

// matchingLabels returns the names of the dataset's labels matched by expr.
func matchingLabels(ds client.Dataset, expr string) ([]string, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, def := range ds.LabelDefs {
		if re.MatchString(def.Name) {
			names = append(names, def.Name)
		}
	}
	return names, nil
}

type downloadStats struct {
	downloaded atomic.Int64
	annotated  atomic.Int64
}

func RunGetComments(ctx context.Context, g GlobalOptions, opts GetCommentsOptions) error {
	if err := opts.validate(); err != nil {
		return err
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

	var dataset *client.Dataset
	var attrs []client.AttributeFilter
	if opts.Dataset != "" {
		ds, err := s.resolveDataset(ctx, opts.Dataset)
		if err != nil {
			return err
		}
		dataset = &ds
		if opts.LabelFilter != "" {
			labels, err := matchingLabels(ds, opts.LabelFilter)
			if err != nil {
				return err
			}
			if len(labels) == 0 {
				s.log.Info(fmt.Sprintf("No label names matching the filter '%s'", opts.LabelFilter))
				return nil
			}
			s.log.Info("Filtering on label(s): " + strings.Join(labels, ", "))
			attrs = append(attrs, client.LabelsAnyOf(labels))
		}
	}
	filter := client.CommentFilter{
		Sources:        []string{source.ID},
		UserProperties: opts.PropertyFilter,
		Messages:       client.ParticipantsFilter(opts.Senders, opts.Recipients),
	}
	if opts.From != nil || opts.To != nil {
		filter.Timestamp = &client.TimestampRange{Minimum: opts.From, Maximum: opts.To}
	}
	if opts.ReviewedOnly {
		filter.Reviewed = client.OnlyReviewed
	}

	var total int64
	if !opts.NoProgress {
		if total, err = s.countComments(ctx, source, dataset, filter, attrs); err != nil {
			return err
		}
	}

	var w io.Writer = stdout
	var export *output.Export
	if opts.File != "" {
		export, err = output.CreateExport(opts.File, source.FullName().String())
		if err != nil {
			return err
		}
		defer func() { _ = export.Close() }()
		w = export
	}

	var stats downloadStats
	progress := startProgress(!opts.NoProgress && export != nil, func() string {
		msg := fmt.Sprintf("%s / %s comments", comma(stats.downloaded.Load()), comma(total))
		if dataset != nil {
			msg += fmt.Sprintf(" %s annotated", comma(stats.annotated.Load()))
		}
		return msg
	})
	switch {
	case dataset == nil:
		err = exportSourceComments(ctx, s.client, source, opts, w, &stats)
	case opts.ReviewedOnly:
		err = exportReviewedComments(ctx, s.client, dataset.FullName(), source, opts.Predictions, w, &stats)
	default:
		err = exportQueriedComments(ctx, s.client, dataset.FullName(), filter, attrs, opts, w, &stats)
	}
	progress.Done()
	if err != nil {
		return err
	}
	if export != nil {
		if err := export.Close(); err != nil {
			return err
		}
	}
	s.log.Info(fmt.Sprintf("Successfully downloaded %d comments [%d annotated].", stats.downloaded.Load(), stats.annotated.Load()))
	return nil
}

func (s *session) countComments(ctx context.Context, source client.Source, dataset *client.Dataset, filter client.CommentFilter, attrs []client.AttributeFilter) (int64, error) {
	if dataset == nil {
		st, err := s.client.GetSourceStatistics(ctx, source.FullName())
		if err != nil {
			return 0, fmt.Errorf("could not count comments in source: %w", err)
		}
		return int64(st.NumComments), nil
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		return 0, err
	}
	st, err := s.client.GetStatistics(ctx, dataset.FullName(), raw, attrs...)
	if err != nil {
		return 0, fmt.Errorf("could not count comments in dataset: %w", err)
	}
	return int64(st.NumComments), nil
}

func exportSourceComments(ctx context.Context, api *client.Client, source client.Source, opts GetCommentsOptions, w io.Writer, stats *downloadStats) error {
	it := api.Comments(source.FullName(), opts.From, opts.To, client.MaxPageSize)
	for !it.Done() {
		page, err := it.Next(ctx)
		if err != nil {
			return fmt.Errorf("operation to get comments failed: %w", err)
		}
		rows := make([]client.AnnotatedComment, len(page))
		for i, c := range page {
			rows[i] = client.AnnotatedComment{Comment: c}
		}
		if err := output.WriteJSONLines(w, rows); err != nil {
			return err
		}
		stats.downloaded.Add(int64(len(page)))
	}
	return nil
}

func exportReviewedComments(ctx context.Context, api *client.Client, dataset client.FullName, source client.Source, predictions bool, w io.Writer, stats *downloadStats) error {
	it := api.Labellings(dataset, source.ID, predictions, 0)
	for !it.Done() {
		page, err := it.Next(ctx)
		if err != nil {
			return fmt.Errorf("operation to get labellings failed: %w", err)
		}
		if !predictions {
			for i := range page {
				page[i] = page[i].WithoutPredictions()
			}
		}
		if err := output.WriteJSONLines(w, page); err != nil {
			return err
		}
		stats.downloaded.Add(int64(len(page)))
		stats.annotated.Add(int64(len(page)))
	}
	return nil
}

func exportQueriedComments(ctx context.Context, api *client.Client, dataset client.FullName, filter client.CommentFilter, attrs []client.AttributeFilter, opts GetCommentsOptions, w io.Writer, stats *downloadStats) error {
	it := api.Query(dataset, filter, attrs...)
	for !it.Done() {
		page, err := it.Next(ctx)
		if err != nil {
			return fmt.Errorf("operation to get comments failed: %w", err)
		}
		if len(page) == 0 {
			continue
		}
		stats.downloaded.Add(int64(len(page)))
		if opts.ModelVersion > 0 {
			page, err = withModelPredictions(ctx, api, dataset, opts.ModelVersion, page)
			if err != nil {
				return err
			}
		} else {
			for i := range page {
				if !opts.Predictions {
					page[i] = page[i].WithoutPredictions()
				}
				if page[i].HasAnnotations() {
					stats.annotated.Add(1)
				}
			}
		}
		if err := output.WriteJSONLines(w, page); err != nil {
			return err
		}
	}
	return nil
}

// withModelPredictions swaps each comment's annotations for the predictions
// of one pinned model version.
func withModelPredictions(ctx context.Context, api *client.Client, dataset client.FullName, version int, page []client.AnnotatedComment) ([]client.AnnotatedComment, error) {
	uids := make([]string, len(page))
	for i, c := range page {
		uids[i] = c.Comment.UID
	}
	predictions, err := api.GetCommentPredictions(ctx, dataset, version, uids)
	if err != nil {
		return nil, fmt.Errorf("operation to get predictions failed: %w", err)
	}
	byUID := make(map[string]client.Prediction, len(predictions))
	for _, p := range predictions {
		byUID[p.UID] = p
	}
	out := make([]client.AnnotatedComment, len(page))
	for i, c := range page {
		out[i] = client.AnnotatedComment{Comment: c.Comment}
		if p, ok := byUID[c.Comment.UID]; ok {
			out[i].Labelling = &client.Labelling{Predicted: p.Labels}
			out[i].Entities = &client.Entities{Predicted: p.Entities}
		}
	}
	return out, nil
}
