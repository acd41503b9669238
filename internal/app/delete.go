package app

import (
	"context"
	"fmt"

	"reinfer-cli/internal/client"
)

func RunDeleteSource(ctx context.Context, g GlobalOptions, source string) error {
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	id, err := client.ParseSourceIdentifier(source)
	if err != nil {
		return err
	}
	sourceID := id.ID
	if !id.IsID() {
		src, err := s.client.GetSource(ctx, id)
		if err != nil {
			return fmt.Errorf("could not get source %s: %w", id, err)
		}
		sourceID = src.ID
	}
	if err := s.client.DeleteSource(ctx, sourceID); err != nil {
		return fmt.Errorf("operation to delete source has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("Deleted source %s", id))
	return nil
}

func RunDeleteComments(ctx context.Context, g GlobalOptions, source string, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("at least one comment id is required")
	}
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	name, err := s.sourceFullName(ctx, source)
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		if err := s.client.DeleteComments(ctx, name, ids[start:end]); err != nil {
			return fmt.Errorf("operation to delete comments has failed: %w", err)
		}
	}
	s.log.Info(fmt.Sprintf("Deleted %d comments from %s", len(ids), name))
	return nil
}

func RunDeleteBucket(ctx context.Context, g GlobalOptions, bucket string) error {
	id, err := client.ParseBucketIdentifier(bucket)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := s.client.DeleteBucket(ctx, id); err != nil {
		return fmt.Errorf("operation to delete bucket has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("Deleted bucket %s", id))
	return nil
}

func RunDeleteDataset(ctx context.Context, g GlobalOptions, dataset string) error {
	id, err := client.ParseDatasetIdentifier(dataset)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := s.client.DeleteDataset(ctx, id); err != nil {
		return fmt.Errorf("operation to delete dataset has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("Deleted dataset %s", id))
	return nil
}

func RunDeleteUser(ctx context.Context, g GlobalOptions, user string) error {
	id, err := client.ParseUserID(user)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := s.client.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("operation to delete user has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("Deleted user %s", id))
	return nil
}

func RunDeleteProject(ctx context.Context, g GlobalOptions, project string, force bool) error {
	name, err := client.ParseProjectName(project)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := s.client.DeleteProject(ctx, name, force); err != nil {
		if client.IsStatus(err, 409) && !force {
			return fmt.Errorf("project %s is not empty, use --force to delete it with all its resources: %w", name, err)
		}
		return fmt.Errorf("operation to delete project has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("Deleted project %s", name))
	return nil
}
