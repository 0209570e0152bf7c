package gitcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/repoflux/repoflux/schema"
)

// LocalClient implements Client by executing the local 'git' binary.
type LocalClient struct {
	opts Options
}

var _ Client = (*LocalClient)(nil) // Compile-time check

// NewLocalClient creates a git client with the given timeouts.
func NewLocalClient(opts Options) *LocalClient {
	return &LocalClient{opts: opts}
}

// CloneOrPull implements the Client interface.
func (c *LocalClient) CloneOrPull(ctx context.Context, repo *schema.Repository, cred *schema.Credential, workDir string) error {
	url, env, cleanup, err := prepareAuth(repo, cred)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(ctx, c.opts.CloneTimeout)
	defer cancel()

	if _, err := os.Stat(filepath.Join(workDir, ".git")); err == nil {
		_, err := c.run(ctx, workDir, env, "pull", "--ff-only")
		return err
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create working directory %s: %w", workDir, err)
	}
	_, err = c.run(ctx, "", env, "clone", url, workDir)
	return err
}

// fullHistoryArgs emits every commit with its numstat lines, oldest first.
// Ingestion resolves a file's creator on first touch, so the stream order is
// load-bearing.
var fullHistoryArgs = []string{
	"log", "--all", "--reverse", "--numstat", "--date=iso-strict",
	"--pretty=format:" + PrettyFormat,
}

// FullHistoryLog implements the Client interface.
func (c *LocalClient) FullHistoryLog(ctx context.Context, workDir string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.LogTimeout)
	defer cancel()

	out, err := c.run(ctx, workDir, nil, fullHistoryArgs...)
	if err != nil {
		if strings.Contains(err.Error(), "does not have any commits yet") {
			return nil, ErrNoCommits
		}
		return nil, err
	}
	return out, nil
}

// run executes one git command, mapping context expiry to ErrTimeout.
func (c *LocalClient) run(ctx context.Context, workDir string, env []string, args ...string) ([]byte, error) {
	fullArgs := args
	if workDir != "" {
		fullArgs = append([]string{"-C", workDir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	if env != nil {
		cmd.Env = append(os.Environ(), env...)
	}
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), ErrTimeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("git %s: %s", strings.Join(args, " "),
				strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// prepareAuth resolves the clone URL and environment for a repository's
// credential. SSH URLs demand key material; http(s) URLs get the credential
// username spliced in when present.
func prepareAuth(repo *schema.Repository, cred *schema.Credential) (url string, env []string, cleanup func(), err error) {
	cleanup = func() {}
	url = repo.URL

	if isSSHURL(url) {
		if cred == nil || cred.SSHPrivateKey == "" {
			return "", nil, cleanup, fmt.Errorf("repo %s: %w", repo.Name, ErrSSHKeyRequired)
		}
		keyFile, err := os.CreateTemp("", "repoflux-key-*")
		if err != nil {
			return "", nil, cleanup, fmt.Errorf("write ssh key: %w", err)
		}
		if _, err := keyFile.WriteString(cred.SSHPrivateKey); err != nil {
			_ = keyFile.Close()
			_ = os.Remove(keyFile.Name())
			return "", nil, cleanup, fmt.Errorf("write ssh key: %w", err)
		}
		if err := keyFile.Close(); err != nil {
			_ = os.Remove(keyFile.Name())
			return "", nil, cleanup, fmt.Errorf("write ssh key: %w", err)
		}
		if err := os.Chmod(keyFile.Name(), 0o600); err != nil {
			_ = os.Remove(keyFile.Name())
			return "", nil, cleanup, fmt.Errorf("write ssh key: %w", err)
		}
		cleanup = func() { _ = os.Remove(keyFile.Name()) }
		env = []string{
			"GIT_SSH_COMMAND=ssh -i " + keyFile.Name() +
				" -o UserKnownHostsFile=/dev/null -o StrictHostKeyChecking=no",
		}
		return url, env, cleanup, nil
	}

	return fixHTTPURL(url, cred), nil, cleanup, nil
}

// fixHTTPURL splices the credential username into an http(s) URL that does
// not already carry one.
func fixHTTPURL(url string, cred *schema.Credential) string {
	if cred == nil || cred.Username == "" || strings.Contains(url, "@") {
		return url
	}
	for _, prefix := range []string{"https://", "http://"} {
		if rest, ok := strings.CutPrefix(url, prefix); ok {
			return prefix + cred.Username + "@" + rest
		}
	}
	return url
}

func isSSHURL(url string) bool {
	return !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://")
}
