package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/go-cmp/cmp"

	"reinfer-cli/internal/client"
)

type CreateIntegrationOptions struct {
	Name string
	// File is a JSON document of {title?, enabled?, configuration}.
	File      string
	Overwrite bool
}

// integrationView is the part of an integration a file can change, with
// the configuration decoded so key order does not count as a difference.
type integrationView struct {
	Title         string
	Enabled       bool
	Configuration any
}

func viewOf(title string, enabled bool, configuration json.RawMessage) (integrationView, error) {
	v := integrationView{Title: title, Enabled: enabled}
	if len(configuration) > 0 {
		if err := json.Unmarshal(configuration, &v.Configuration); err != nil {
			return integrationView{}, fmt.Errorf("invalid integration configuration: %w", err)
		}
	}
	return v, nil
}

func readIntegrationFile(path string) (client.NewIntegration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return client.NewIntegration{}, fmt.Errorf("could not read integration file: %w", err)
	}
	var in client.NewIntegration
	if err := json.Unmarshal(b, &in); err != nil {
		return client.NewIntegration{}, fmt.Errorf("could not parse integration file %s: %w", path, err)
	}
	if len(in.Configuration) == 0 {
		return client.NewIntegration{}, fmt.Errorf("integration file %s has no configuration", path)
	}
	return in, nil
}

// RunCreateIntegration creates an integration, or updates it after showing
// the changes and asking for confirmation when --overwrite is given.
func RunCreateIntegration(ctx context.Context, g GlobalOptions, opts CreateIntegrationOptions) error {
	name, err := client.ParseFullName("integration", opts.Name)
	if err != nil {
		return err
	}
	in, err := readIntegrationFile(opts.File)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	existing, err := s.client.GetIntegration(ctx, name)
	switch {
	case client.IsStatus(err, http.StatusNotFound):
		created, err := s.client.CreateIntegration(ctx, name, in)
		if err != nil {
			return fmt.Errorf("operation to create an integration has failed: %w", err)
		}
		s.log.Info(fmt.Sprintf("New integration `%s` [id: %s] created successfully", name, created.ID))
		return nil
	case err != nil:
		return fmt.Errorf("could not get integration %s: %w", name, err)
	case !opts.Overwrite:
		return errors.New("integration already exists, provide the --overwrite flag to update it")
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	title := in.Title
	if title == "" {
		title = existing.Title
	}
	before, err := viewOf(existing.Title, existing.Enabled, existing.Configuration)
	if err != nil {
		return err
	}
	after, err := viewOf(title, enabled, in.Configuration)
	if err != nil {
		return err
	}
	diff := cmp.Diff(before, after)
	if diff == "" {
		return errors.New("new integration is the same as the existing integration")
	}
	fmt.Fprintf(stderr, "Changes to integration %s (-existing +new):\n%s", name, diff)
	answer, err := readLine("Apply these changes? [y/N] ")
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		return errors.New("operation aborted by user")
	}
	in.Title = title
	in.Enabled = &enabled
	if _, err := s.client.UpdateIntegration(ctx, name, in); err != nil {
		return fmt.Errorf("operation to update an integration has failed: %w", err)
	}
	s.log.Info(fmt.Sprintf("Integration `%s` updated successfully", name))
	return nil
}
