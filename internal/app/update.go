package app

import (
	"context"
	"fmt"

	"reinfer-cli/internal/client"
)

type UpdateSourceOptions struct {
	Source              string
	Title               *string
	Description         *string
	ShouldTranslate     *bool
	Bucket              *string
	SensitiveProperties []string
}

func RunUpdateSource(ctx context.Context, g GlobalOptions, opts UpdateSourceOptions) error {
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	name, err := s.sourceFullName(ctx, opts.Source)
	if err != nil {
		return err
	}
	in := client.UpdateSource{
		Title:               opts.Title,
		Description:         opts.Description,
		ShouldTranslate:     opts.ShouldTranslate,
		SensitiveProperties: opts.SensitiveProperties,
	}
	if opts.Bucket != nil {
		id, err := client.ParseBucketIdentifier(*opts.Bucket)
		if err != nil {
			return err
		}
		bucket, err := s.client.GetBucket(ctx, id)
		if err != nil {
			return fmt.Errorf("could not get bucket %s: %w", id, err)
		}
		in.BucketID = &bucket.ID
	}
	source, err := s.client.UpdateSource(ctx, name, in)
	if err != nil {
		return fmt.Errorf("operation to update a source has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("Source `%s` [id: %s] updated successfully", source.FullName(), source.ID))
	return s.printer.Print([]client.Source{source})
}

type UpdateDatasetOptions struct {
	Dataset     string
	Title       *string
	Description *string
	Sources     []string
}

func RunUpdateDataset(ctx context.Context, g GlobalOptions, opts UpdateDatasetOptions) error {
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	current, err := s.resolveDataset(ctx, opts.Dataset)
	if err != nil {
		return err
	}
	in := client.UpdateDataset{Title: opts.Title, Description: opts.Description}
	for _, src := range opts.Sources {
		source, err := s.resolveSource(ctx, src)
		if err != nil {
			return err
		}
		in.SourceIDs = append(in.SourceIDs, source.ID)
	}
	dataset, err := s.client.UpdateDataset(ctx, current.FullName(), in)
	if err != nil {
		return fmt.Errorf("operation to update a dataset has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("Dataset `%s` [id: %s] updated successfully", dataset.FullName(), dataset.ID))
	return s.printer.Print([]client.Dataset{dataset})
}

type UpdateProjectOptions struct {
	Name        string
	Title       *string
	Description *string
}

func RunUpdateProject(ctx context.Context, g GlobalOptions, opts UpdateProjectOptions) error {
	name, err := client.ParseProjectName(opts.Name)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	project, err := s.client.UpdateProject(ctx, name, client.UpdateProject{Title: opts.Title, Description: opts.Description})
	if err != nil {
		return fmt.Errorf("operation to update a project has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("Project `%s` updated successfully", project.Name))
	return s.printer.Print([]client.Project{project})
}

type UpdateUserOptions struct {
	User               string
	GlobalPermissions  []string
	Project            string
	ProjectPermissions []string
}

func RunUpdateUser(ctx context.Context, g GlobalOptions, opts UpdateUserOptions) error {
	id, err := client.ParseUserID(opts.User)
	if err != nil {
		return err
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
	if err := s.client.UpdateUser(ctx, id, client.UpdateUser{ProjectPermissions: perms, GlobalPermissions: opts.GlobalPermissions}); err != nil {
		return fmt.Errorf("operation to update a user has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("User `%s` updated successfully", id))
	return nil
}
