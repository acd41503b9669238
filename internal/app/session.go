package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"reinfer-cli/internal/cache"
	"reinfer-cli/internal/client"
	"reinfer-cli/internal/config"
	"reinfer-cli/internal/output"
	"reinfer-cli/internal/util"
)

const (
	numThreadsEnv     = "REINFER_CLI_NUM_THREADS"
	defaultNumThreads = 32
)

var domainsThatRequireContext = []string{"uipath.com", "reinfer.dev"}

var (
	// Overridden in tests.
	currentUserCacheTTL = time.Hour
	retryConfig         = client.DefaultRetryConfig
	stdin               io.Reader = os.Stdin
	stdout              io.Writer = os.Stdout
	readSecret                    = readSecretFromTerminal
)

// GlobalOptions are the flags shared by every command.
type GlobalOptions struct {
	ConfigFile                string
	Context                   string
	Verbose                   bool
	Endpoint                  string
	AcceptInvalidCertificates bool
	Token                     string
	Proxy                     string
	Output                    string
	NumThreads                int
	LogFile                   string
	UserAgent                 string
}

type session struct {
	log     *Logger
	client  *client.Client
	printer *output.Printer
	threads int
	context string
}

func (s *session) Close() error { return s.log.Close() }

// openSession resolves the client for a command that talks to the API.
// refresh additionally asks the server to recompute the caller's permissions.
func openSession(ctx context.Context, g GlobalOptions, refresh bool) (*session, error) {
	log, err := NewLogger(g.Verbose, g.LogFile)
	if err != nil {
		return nil, err
	}
	s, err := newSession(ctx, g, log, refresh)
	if err != nil {
		_ = log.Close()
		return nil, err
	}
	return s, nil
}

func newSession(ctx context.Context, g GlobalOptions, log *Logger, refresh bool) (*session, error) {
	format, err := output.ParseFormat(g.Output)
	if err != nil {
		return nil, err
	}
	threads, err := resolveNumThreads(g.NumThreads)
	if err != nil {
		return nil, err
	}
	cfgPath, err := config.ResolvePath(g.ConfigFile)
	if err != nil {
		return nil, err
	}
	if g.ConfigFile != "" {
		if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
			log.Warn("configuration file does not exist", "path", cfgPath)
		}
	}
	file, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	var current config.Context
	hasContext := false
	if g.Context != "" {
		current, hasContext = file.GetContext(g.Context)
		if !hasContext {
			return nil, fmt.Errorf("unknown context %q", g.Context)
		}
	} else {
		current, hasContext = file.Current()
	}

	endpoint := g.Endpoint
	if endpoint == "" && hasContext {
		endpoint = current.Endpoint
	}
	if endpoint == "" {
		endpoint = config.DefaultEndpoint
	}

	token := g.Token
	if token == "" && hasContext {
		token, err = config.CredentialsFor(cfgPath).Token(current.Name)
		if err != nil && !errors.Is(err, config.ErrTokenNotConfigured) {
			return nil, err
		}
	}
	if token == "" {
		token, err = readSecret("API token: ")
		if err != nil {
			return nil, fmt.Errorf("could not read API token: %w", err)
		}
	}

	insecure := g.AcceptInvalidCertificates || (hasContext && current.AcceptInvalidCertificates)
	if insecure {
		log.Warn("TLS certificate verification is disabled. Do NOT use this over an insecure network.")
	}
	proxy := g.Proxy
	if proxy == "" && hasContext {
		proxy = current.Proxy
	}

	retry := retryConfig()
	api, err := client.New(client.Config{
		Endpoint:                  endpoint,
		Token:                     token,
		AcceptInvalidCertificates: insecure,
		Proxy:                     proxy,
		UserAgent:                 g.UserAgent,
		Retry:                     &retry,
	})
	if err != nil {
		return nil, fmt.Errorf("could not initialise the HTTP client: %w", err)
	}
	if g.Verbose {
		api.SetTrace(func(ev client.TraceEvent) {
			log.Event("http_"+ev.Stage, map[string]any{
				"method":      ev.Method,
				"url":         ev.URL,
				"status_code": ev.StatusCode,
				"duration_ms": ev.DurationMs,
				"request":     ev.Request,
				"response":    ev.Response,
				"error":       ev.Error,
			})
		})
	}

	s := &session{
		log:     log,
		client:  api,
		printer: output.NewPrinter(stdout, format),
		threads: threads,
	}
	if hasContext {
		s.context = current.Name
	}

	explicit := g.Context != "" || g.Endpoint != ""
	if file.ContextIsRequired && !explicit {
		return nil, errors.New("please provide a context with the `re -c <context>` option or opt out with `re config set-context-required false`")
	}
	if !explicit {
		email, err := s.currentUserEmail(ctx)
		if err != nil {
			return nil, err
		}
		if requiresContext(email) {
			return nil, errors.New("as a UiPath user, please provide a context with the `re -c <context>` option")
		}
	}
	if refresh {
		if err := client.RetryCall(ctx, api.RefreshUserPermissions); err != nil {
			return nil, fmt.Errorf("could not refresh user permissions: %w", err)
		}
	}
	return s, nil
}

func requiresContext(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, domain := range domainsThatRequireContext {
		if strings.HasSuffix(email, domain) {
			return true
		}
	}
	return false
}

// currentUserEmail asks the server who the token belongs to, remembering
// the answer per context for an hour.
func (s *session) currentUserEmail(ctx context.Context) (string, error) {
	cacheDir := ""
	if s.context != "" {
		if dir, err := util.DefaultCacheDir(); err == nil {
			cacheDir = dir
		}
	}
	if cacheDir != "" {
		entry, found, err := cache.LoadUser(cacheDir, s.context)
		if err != nil {
			s.log.Debug("ignoring user cache", "err", err)
		} else if found && entry.Endpoint == s.client.Endpoint() && entry.Fresh(time.Now(), currentUserCacheTTL) {
			return entry.Email, nil
		}
	}
	var user client.User
	err := client.RetryCall(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.client.GetCurrentUser(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("could not get the current user: %w", err)
	}
	if cacheDir != "" {
		entry := cache.UserEntry{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			Endpoint:  s.client.Endpoint(),
			FetchedAt: time.Now(),
		}
		if err := cache.SaveUser(cacheDir, s.context, entry); err != nil {
			s.log.Debug("could not cache current user", "err", err)
		}
	}
	return user.Email, nil
}

func resolveNumThreads(flag int) (int, error) {
	if raw, ok := os.LookupEnv(numThreadsEnv); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
		if err != nil || n == 0 {
			return 0, fmt.Errorf("environment variable %s is not a positive integer: %q", numThreadsEnv, raw)
		}
		return int(n), nil
	}
	if flag <= 0 {
		return defaultNumThreads, nil
	}
	return flag, nil
}

// readSecretFromTerminal reads without echo on a terminal, and a plain
// line otherwise.
func readSecretFromTerminal(prompt string) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(prompt)
}

func readLine(prompt string) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
	}
	// One byte at a time so that consecutive prompts share stdin.
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := stdin.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			sb.WriteByte(buf[0])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
