package nlm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultBinary  = "nlm"
	DefaultTimeout = 10 * time.Minute

	retryAttempts = 3
)

// Client wraps the external notebook CLI. All commands run through
// RunRetry so the auth-refresh and transient-retry policy applies
// uniformly.
type Client struct {
	Binary       string
	Profile      string
	AuthProvider string
	CDPURL       string
	Timeout      time.Duration

	// Classify holds the failure-detection substring sets; extend its
	// slices to recognize new CLI builds.
	Classify Classifier

	// Sleep is swapped out in tests.
	Sleep func(time.Duration)
}

func NewClient(profile string) *Client {
	return &Client{
		Binary:   DefaultBinary,
		Profile:  profile,
		Timeout:  DefaultTimeout,
		Classify: DefaultClassifier(),
		Sleep:    time.Sleep,
	}
}

func (c *Client) binary() string {
	if c.Binary != "" {
		return c.Binary
	}
	return DefaultBinary
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (c *Client) withProfile(args []string) []string {
	if strings.TrimSpace(c.Profile) == "" {
		return args
	}
	return append(args, "--profile", c.Profile)
}

// Available reports whether the binary resolves on PATH.
func (c *Client) Available() error {
	return LookPath(c.binary())
}

// RunRetry executes one command with up to three attempts. An auth-looking
// failure triggers a single re-login when a CDP URL is configured; a
// transient-looking failure backs off linearly; anything else aborts the
// loop. The last result is always returned so callers can inspect output.
func (c *Client) RunRetry(ctx context.Context, args ...string) (Result, error) {
	full := c.withProfile(args)
	var (
		res Result
		err error
	)
	relogged := false
	for i := 0; i < retryAttempts; i++ {
		res, err = Run(ctx, c.binary(), full, c.timeout())
		if err != nil {
			return res, err
		}
		if res.ExitCode == 0 {
			return res, nil
		}

		output := res.CombinedOutput()
		switch {
		case c.Classify.IsAuthError(output) && !relogged && strings.TrimSpace(c.CDPURL) != "":
			relogged = true
			if _, loginErr := c.Login(ctx); loginErr != nil {
				return res, fmt.Errorf("re-login failed: %w", loginErr)
			}
		case c.Classify.IsTransientError(output):
			c.sleep(time.Duration(2*(i+1)) * time.Second)
		default:
			return res, nil
		}
	}
	return res, nil
}

// Login performs a browser-session login via the configured CDP endpoint.
func (c *Client) Login(ctx context.Context) (Result, error) {
	args := []string{"login"}
	if strings.TrimSpace(c.AuthProvider) != "" {
		args = append(args, "--provider", c.AuthProvider)
	}
	if strings.TrimSpace(c.CDPURL) != "" {
		args = append(args, "--cdp-url", c.CDPURL)
	}
	return Run(ctx, c.binary(), c.withProfile(args), c.timeout())
}

// LoginCheck probes whether the stored session is still valid.
func (c *Client) LoginCheck(ctx context.Context) (Result, error) {
	return Run(ctx, c.binary(), c.withProfile([]string{"login", "--check"}), c.timeout())
}

func (c *Client) SourceList(ctx context.Context, notebookID string) (Result, error) {
	return c.RunRetry(ctx, "source", "list", notebookID, "--json")
}

func (c *Client) AddSource(ctx context.Context, notebookID, textPath, title string) (Result, error) {
	return c.RunRetry(ctx, "source", "add", notebookID, "--text", textPath, "--title", title, "--wait")
}

func (c *Client) StudioStatus(ctx context.Context, notebookID string) (Result, error) {
	return c.RunRetry(ctx, "studio", "status", notebookID, "--full", "--json")
}

// CreateArtifact starts generation of one artifact type from the given
// sources. artifactType is the CLI noun, not an internal alias.
func (c *Client) CreateArtifact(ctx context.Context, artifactType, notebookID string, sourceIDs []string) (Result, error) {
	args := []string{artifactType, "create", notebookID}
	if len(sourceIDs) > 0 {
		args = append(args, "--source-ids", strings.Join(sourceIDs, ","))
	}
	args = append(args, "--confirm")
	return c.RunRetry(ctx, args...)
}

// Download saves a finished artifact to outputPath. Some CLI builds
// reject --profile on download; a failed profiled attempt is retried
// once without it.
func (c *Client) Download(ctx context.Context, kind, notebookID, artifactID, outputPath string) (Result, error) {
	args := []string{"download", kind, notebookID, "--id", artifactID, "--output", outputPath}
	res, err := c.RunRetry(ctx, args...)
	if err == nil && res.ExitCode != 0 && strings.TrimSpace(c.Profile) != "" {
		return Run(ctx, c.binary(), args, c.timeout())
	}
	return res, err
}

func (c *Client) CreateNotebook(ctx context.Context, title string) (Result, error) {
	return c.RunRetry(ctx, "notebook", "create", title)
}

func (c *Client) Version(ctx context.Context) (Result, error) {
	return Run(ctx, c.binary(), []string{"version"}, c.timeout())
}
