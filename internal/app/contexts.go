package app

import (
	"context"
	"fmt"
	"strings"

	"reinfer-cli/internal/cache"
	"reinfer-cli/internal/client"
	"reinfer-cli/internal/config"
	"reinfer-cli/internal/output"
	"reinfer-cli/internal/util"
)

type AddContextOptions struct {
	Name                      string
	Endpoint                  string
	Token                     string
	AcceptInvalidCertificates bool
	Proxy                     string
}

type contextsEnv struct {
	log   *Logger
	path  string
	file  config.File
	creds config.Credentials
}

func openContexts(g GlobalOptions) (*contextsEnv, error) {
	log, err := NewLogger(g.Verbose, g.LogFile)
	if err != nil {
		return nil, err
	}
	path, err := config.ResolvePath(g.ConfigFile)
	if err != nil {
		_ = log.Close()
		return nil, err
	}
	file, err := config.Load(path)
	if err != nil {
		_ = log.Close()
		return nil, err
	}
	return &contextsEnv{log: log, path: path, file: file, creds: config.CredentialsFor(path)}, nil
}

func (e *contextsEnv) save() error { return config.Save(e.path, e.file) }

func RunAddContext(_ context.Context, g GlobalOptions, opts AddContextOptions) error {
	env, err := openContexts(g)
	if err != nil {
		return err
	}
	defer func() { _ = env.log.Close() }()

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		if name, err = readLine("Context name: "); err != nil {
			return err
		}
	}
	if name == "" {
		return fmt.Errorf("context name cannot be empty")
	}

	existing, exists := env.file.GetContext(name)
	if exists {
		env.log.Info(fmt.Sprintf("Context `%s` already exists, it will be modified.", name))
	} else {
		env.log.Info(fmt.Sprintf("A new context `%s` will be created.", name))
	}

	token := opts.Token
	if token == "" {
		token, err = readSecret("API token (leave empty to enter it on every request): ")
		if err != nil {
			return fmt.Errorf("could not read API token: %w", err)
		}
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		def := config.DefaultEndpoint
		if exists {
			def = existing.Endpoint
		}
		endpoint, err = readLine(fmt.Sprintf("Endpoint [%s]: ", def))
		if err != nil {
			return err
		}
		if endpoint == "" {
			endpoint = def
		}
	}
	u, err := client.ParseEndpoint(endpoint)
	if err != nil {
		return err
	}

	proxy := opts.Proxy
	if proxy == "" && exists {
		proxy = existing.Proxy
	}

	replaced := env.file.SetContext(config.Context{
		Name:                      name,
		Endpoint:                  u.String(),
		AcceptInvalidCertificates: opts.AcceptInvalidCertificates,
		Proxy:                     proxy,
	})
	if !replaced && len(env.file.Contexts) == 1 {
		env.log.Info(fmt.Sprintf("Default context set to `%s`.", name))
		env.file.SetCurrentContext(name)
	}
	if err := env.save(); err != nil {
		return err
	}
	if token == "" {
		env.log.Info("No API token was associated with the context. You will have to enter it for every request.")
		if err := env.creds.DeleteToken(name); err != nil {
			return err
		}
	} else {
		if err := env.creds.SetToken(name, token); err != nil {
			return err
		}
		env.log.Info("API token stored", "path", env.creds.Path)
	}
	if cacheDir, err := util.DefaultCacheDir(); err == nil {
		_ = cache.Clear(cacheDir, name)
	}
	if replaced {
		env.log.Info(fmt.Sprintf("Context `%s` was updated.", name))
	} else {
		env.log.Info(fmt.Sprintf("New context `%s` was created.", name))
	}
	return nil
}

func RunCurrentContext(_ context.Context, g GlobalOptions) error {
	env, err := openContexts(g)
	if err != nil {
		return err
	}
	defer func() { _ = env.log.Close() }()
	current, ok := env.file.Current()
	if !ok {
		env.log.Info("There is no default context in use.")
		return nil
	}
	_, err = fmt.Fprintln(stdout, current.Name)
	return err
}

func RunUseContext(_ context.Context, g GlobalOptions, name string) error {
	env, err := openContexts(g)
	if err != nil {
		return err
	}
	defer func() { _ = env.log.Close() }()
	if !env.file.SetCurrentContext(name) {
		return fmt.Errorf("no such context `%s` exists in `%s`", name, env.path)
	}
	if err := env.save(); err != nil {
		return err
	}
	env.log.Info(fmt.Sprintf("Switched to context `%s`.", name))
	return nil
}

// RunDeleteContexts deletes every name it can and fails if any was unknown.
func RunDeleteContexts(_ context.Context, g GlobalOptions, names []string) error {
	env, err := openContexts(g)
	if err != nil {
		return err
	}
	defer func() { _ = env.log.Close() }()
	var missing []string
	for _, name := range names {
		if !env.file.DeleteContext(name) {
			missing = append(missing, name)
			continue
		}
		if err := env.save(); err != nil {
			return err
		}
		if err := env.creds.DeleteToken(name); err != nil {
			return err
		}
		if cacheDir, err := util.DefaultCacheDir(); err == nil {
			_ = cache.Clear(cacheDir, name)
		}
		env.log.Info(fmt.Sprintf("Deleted context `%s` from `%s`.", name, env.path))
	}
	if len(missing) > 0 {
		return fmt.Errorf("no such context %s exists in `%s`", strings.Join(missing, ", "), env.path)
	}
	return nil
}

func RunListContexts(_ context.Context, g GlobalOptions, showTokens bool) error {
	env, err := openContexts(g)
	if err != nil {
		return err
	}
	defer func() { _ = env.log.Close() }()
	if len(env.file.Contexts) == 0 {
		env.log.Info("No available contexts.")
		return nil
	}
	rows := make([][]string, 0, len(env.file.Contexts))
	for _, name := range env.file.Names() {
		c, _ := env.file.GetContext(name)
		active := ""
		if name == env.file.CurrentContext {
			active = "->"
		}
		insecure := "No"
		if c.AcceptInvalidCertificates {
			insecure = "Yes"
		}
		token := "<Hidden>"
		if showTokens {
			token, err = env.creds.Token(name)
			if err != nil {
				token = ""
			}
		}
		rows = append(rows, []string{active, name, c.Endpoint, insecure, token, c.Proxy})
	}
	p := output.NewPrinter(stdout, output.FormatTable)
	return p.Table([]string{"Active", "Context", "Endpoint", "Insecure", "Token", "Proxy"}, rows)
}

func RunSetContextRequired(_ context.Context, g GlobalOptions, required bool) error {
	env, err := openContexts(g)
	if err != nil {
		return err
	}
	defer func() { _ = env.log.Close() }()
	env.file.ContextIsRequired = required
	if err := env.save(); err != nil {
		return err
	}
	env.log.Info(fmt.Sprintf("Context required set to %t.", required))
	return nil
}
