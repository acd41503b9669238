package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"reinfer-cli/internal/client"
	"reinfer-cli/internal/input"
)

type CreateSourceOptions struct {
	Name                string
	Title               string
	Description         string
	Language            string
	ShouldTranslate     *bool
	Bucket              string
	Kind                string
	TransformTag        string
	SensitiveProperties []string
}

func RunCreateSource(ctx context.Context, g GlobalOptions, opts CreateSourceOptions) error {
	name, err := client.ParseFullName("source", opts.Name)
	if err != nil {
		return err
	}
	in := client.NewSource{
		Title:               opts.Title,
		Description:         opts.Description,
		ShouldTranslate:     opts.ShouldTranslate,
		SensitiveProperties: opts.SensitiveProperties,
		EmailTransformTag:   opts.TransformTag,
	}
	if opts.Language != "" {
		if err := client.ValidateLanguage(opts.Language); err != nil {
			return err
		}
		in.Language = opts.Language
	}
	if opts.Kind != "" {
		if in.Kind, err = client.ParseSourceKind(opts.Kind); err != nil {
			return err
		}
	}
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if opts.Bucket != "" {
		id, err := client.ParseBucketIdentifier(opts.Bucket)
		if err != nil {
			return err
		}
		bucket, err := s.client.GetBucket(ctx, id)
		if err != nil {
			return fmt.Errorf("could not get bucket %s: %w", id, err)
		}
		in.BucketID = bucket.ID
	}
	source, err := s.client.CreateSource(ctx, name, in)
	if err != nil {
		return fmt.Errorf("operation to create a source has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("New source `%s` [id: %s] created successfully", source.FullName(), source.ID))
	return s.printer.Print([]client.Source{source})
}

type CreateDatasetOptions struct {
	Name                string
	Title               string
	Description         string
	HasSentiment        *bool
	Sources             []string
	EntityDefs          string
	LabelDefs           string
	LabelGroups         string
	ModelFamily         string
	CopyAnnotationsFrom string
}

func parseRawList(flag, raw string) ([]json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON array: %w", flag, err)
	}
	return out, nil
}

func RunCreateDataset(ctx context.Context, g GlobalOptions, opts CreateDatasetOptions) error {
	name, err := client.ParseFullName("dataset", opts.Name)
	if err != nil {
		return err
	}
	entityDefs, err := parseRawList("entity-defs", opts.EntityDefs)
	if err != nil {
		return err
	}
	labelGroups, err := parseRawList("label-groups", opts.LabelGroups)
	if err != nil {
		return err
	}
	var labelDefs []client.LabelDef
	if strings.TrimSpace(opts.LabelDefs) != "" {
		if err := json.Unmarshal([]byte(opts.LabelDefs), &labelDefs); err != nil {
			return fmt.Errorf("--label-defs must be a JSON array: %w", err)
		}
	}
	// Label groups carry their own label defs.
	if len(labelGroups) > 0 {
		labelDefs = nil
	}
	hasSentiment := false
	if opts.HasSentiment != nil {
		hasSentiment = *opts.HasSentiment
	}

	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	sourceIDs := make([]string, 0, len(opts.Sources))
	for _, src := range opts.Sources {
		source, err := s.resolveSource(ctx, src)
		if err != nil {
			return err
		}
		sourceIDs = append(sourceIDs, source.ID)
	}
	dataset, err := s.client.CreateDataset(ctx, name, client.NewDataset{
		Title:               opts.Title,
		Description:         opts.Description,
		SourceIDs:           sourceIDs,
		HasSentiment:        &hasSentiment,
		ModelFamily:         opts.ModelFamily,
		EntityDefs:          entityDefs,
		LabelDefs:           labelDefs,
		LabelGroups:         labelGroups,
		CopyAnnotationsFrom: opts.CopyAnnotationsFrom,
	})
	if err != nil {
		return fmt.Errorf("operation to create a dataset has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("New dataset `%s` [id: %s] created successfully", dataset.FullName(), dataset.ID))
	return s.printer.Print([]client.Dataset{dataset})
}

type CreateBucketOptions struct {
	Name         string
	Title        string
	TransformTag string
}

func RunCreateBucket(ctx context.Context, g GlobalOptions, opts CreateBucketOptions) error {
	name, err := client.ParseBucketFullName(opts.Name)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	bucket, err := s.client.CreateBucket(ctx, name, client.NewBucket{
		BucketType:   client.BucketTypeEmails,
		Title:        opts.Title,
		TransformTag: opts.TransformTag,
	})
	if err != nil {
		return fmt.Errorf("operation to create a bucket has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("New bucket `%s` [id: %s] created successfully", bucket.FullName(), bucket.ID))
	return s.printer.Print([]client.Bucket{bucket})
}

type CreateProjectOptions struct {
	Name        string
	Title       string
	Description string
	UserIDs     []string
}

func RunCreateProject(ctx context.Context, g GlobalOptions, opts CreateProjectOptions) error {
	name, err := client.ParseProjectName(opts.Name)
	if err != nil {
		return err
	}
	for _, id := range opts.UserIDs {
		if _, err := client.ParseUserID(id); err != nil {
			return err
		}
	}
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	project, err := s.client.CreateProject(ctx, name, client.NewProject{Title: opts.Title, Description: opts.Description}, opts.UserIDs)
	if err != nil {
		return fmt.Errorf("operation to create a project has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("New project `%s` created successfully", project.Name))
	if err := refreshPermissions(ctx, s); err != nil {
		return err
	}
	return s.printer.Print([]client.Project{project})
}

type CreateUserOptions struct {
	Username           string
	Email              string
	GlobalPermissions  []string
	Project            string
	ProjectPermissions []string
	SendWelcomeEmail   bool
}

func projectPermissions(project string, perms []string) (map[string][]string, error) {
	switch {
	case project != "" && len(perms) > 0:
		name, err := client.ParseProjectName(project)
		if err != nil {
			return nil, err
		}
		return map[string][]string{name: perms}, nil
	case project == "" && len(perms) == 0:
		return nil, nil
	default:
		return nil, fmt.Errorf("arguments `--project` and `--project-permissions` have to be both specified or neither")
	}
}

func RunCreateUser(ctx context.Context, g GlobalOptions, opts CreateUserOptions) error {
	if !client.ValidUsername(opts.Username) {
		return &client.IdentifierError{Kind: "username", Value: opts.Username}
	}
	perms, err := projectPermissions(opts.Project, opts.ProjectPermissions)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	user, err := s.client.CreateUser(ctx, client.NewUser{
		Username:           opts.Username,
		Email:              opts.Email,
		GlobalPermissions:  opts.GlobalPermissions,
		ProjectPermissions: perms,
	})
	if err != nil {
		return fmt.Errorf("operation to create a user has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("New user `%s` with email `%s` [id: %s] created successfully", user.Username, user.Email, user.ID))
	if opts.SendWelcomeEmail {
		if err := s.client.SendWelcomeEmail(ctx, user.ID); err != nil {
			return fmt.Errorf("operation to send welcome email failed: %w", err)
		}
		s.log.Info("Welcome email sent", "user", user.Username)
	}
	return s.printer.Print([]client.User{user})
}

type CreateStreamExceptionOptions struct {
	Stream string
	Type   string
	UIDs   []string
}

func RunCreateStreamException(ctx context.Context, g GlobalOptions, opts CreateStreamExceptionOptions) error {
	return createExceptions(ctx, g, "stream", opts, (*client.Client).TagStreamExceptions)
}

// RunCreateTriggerException takes the trigger name in opts.Stream.
func RunCreateTriggerException(ctx context.Context, g GlobalOptions, opts CreateStreamExceptionOptions) error {
	return createExceptions(ctx, g, "trigger", opts, (*client.Client).TagTriggerExceptions)
}

type tagFunc func(*client.Client, context.Context, client.StreamFullName, []client.StreamException) error

func createExceptions(ctx context.Context, g GlobalOptions, kind string, opts CreateStreamExceptionOptions, tag tagFunc) error {
	stream, err := client.ParseStreamFullName(opts.Stream)
	if err != nil {
		return err
	}
	if len(opts.UIDs) == 0 {
		return fmt.Errorf("at least one --uid is required")
	}
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	exceptions := make([]client.StreamException, 0, len(opts.UIDs))
	for _, uid := range opts.UIDs {
		exceptions = append(exceptions, client.StreamException{
			Metadata: client.StreamExceptionMetadata{Type: opts.Type},
			UID:      uid,
		})
	}
	if err := tag(s.client, ctx, stream, exceptions); err != nil {
		return fmt.Errorf("operation to create a %s exception has failed: %w", kind, err)
	}
	s.log.Info(fmt.Sprintf("Tagged %d comments as exceptions on %s `%s`", len(exceptions), kind, stream))
	return nil
}

func refreshPermissions(ctx context.Context, s *session) error {
	if err := client.RetryCall(ctx, s.client.RefreshUserPermissions); err != nil {
		return fmt.Errorf("could not refresh user permissions: %w", err)
	}
	return nil
}

type CreateQuotaOptions struct {
	ReinferTenantID  string
	UiPathTenantID   string
	Kind             string
	HardLimit        int64
	AutoIncreaseUpTo *int64
}

func (o CreateQuotaOptions) tenantID() (string, error) {
	if (o.ReinferTenantID == "") == (o.UiPathTenantID == "") {
		return "", errors.New("expected one and only one of --reinfer-tenant-id and --uipath-tenant-id")
	}
	if o.ReinferTenantID != "" {
		return o.ReinferTenantID, nil
	}
	return o.UiPathTenantID, nil
}

func RunCreateQuota(ctx context.Context, g GlobalOptions, opts CreateQuotaOptions) error {
	tenant, err := opts.tenantID()
	if err != nil {
		return err
	}
	kind, err := client.ParseQuotaKind(opts.Kind)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	in := client.NewQuota{HardLimit: opts.HardLimit, AutoIncreaseUpTo: opts.AutoIncreaseUpTo}
	if err := s.client.SetQuota(ctx, tenant, kind, in); err != nil {
		return fmt.Errorf("operation to set quota has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("New quota `%s` set successfully in tenant with id `%s`", kind, tenant))
	return nil
}

type CreateStreamsOptions struct {
	Dataset string
	// File holds one stream definition per line. Empty reads stdin.
	File         string
	ModelVersion int
}

// RunCreateStreams creates every stream in a JSON lines file, pinning each
// to one model version.
func RunCreateStreams(ctx context.Context, g GlobalOptions, opts CreateStreamsOptions) error {
	if opts.ModelVersion <= 0 {
		return errors.New("--model-version must be greater than 0")
	}
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	ds, err := s.resolveDataset(ctx, opts.Dataset)
	if err != nil {
		return err
	}
	model, err := json.Marshal(map[string]int{"version": opts.ModelVersion})
	if err != nil {
		return err
	}
	f, err := input.Open(opts.File)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	created := 0
	for {
		stream := client.NewStream{}
		ok, err := f.Next(&stream)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		stream["model"] = model
		st, err := s.client.CreateStream(ctx, ds.FullName(), stream)
		if err != nil {
			return fmt.Errorf("operation to create a stream has failed: %w", err)
		}
		created++
		s.log.Info(fmt.Sprintf("Created stream '%s' in dataset '%s'", st.Name, ds.FullName()))
	}
	s.log.Info(fmt.Sprintf("Created %d streams", created))
	return nil
}
