// Package gitcmd wraps the local git binary behind a small client
// interface: keeping a working directory current (clone or pull) and
// producing the full-history log stream the ingestion engine parses.
package gitcmd

import (
	"context"
	"errors"
	"time"

	"github.com/repoflux/repoflux/schema"
)

// LogDelimiter separates the pretty-format fields on a commit header line.
// Chosen to be vanishingly unlikely inside any field value.
const LogDelimiter = "&DEL&>"

// PrettyFormat is the git pretty format for history scans. Field order is
// load-bearing for the parser: sha, author name, author date, commit date,
// author email, sanitized subject.
const PrettyFormat = LogDelimiter + "%H" + LogDelimiter + "%an" + LogDelimiter +
	"%ad" + LogDelimiter + "%cd" + LogDelimiter + "%ae" + LogDelimiter + "%f" + LogDelimiter

// Sentinel errors for the scan loop's failure taxonomy.
var (
	// ErrTimeout marks a clone/pull/log that exceeded its deadline; the
	// repository is skipped for this run and retried on the next.
	ErrTimeout = errors.New("git command timed out")

	// ErrSSHKeyRequired marks a repository whose URL needs SSH auth while
	// its organization has no usable key. Operator action required.
	ErrSSHKeyRequired = errors.New("repository requires SSH credentials but none are configured")

	// ErrNoCommits marks an empty repository; a clean skip, not a failure.
	ErrNoCommits = errors.New("repository has no commits yet")
)

// Client is what the scan pipeline needs from version control. The local
// implementation shells out to git; tests substitute the mock.
type Client interface {
	// CloneOrPull makes workDir a current clone of the repository: cloning
	// when absent, pulling when present. cred may be nil for public repos.
	CloneOrPull(ctx context.Context, repo *schema.Repository, cred *schema.Credential, workDir string) error

	// FullHistoryLog returns the complete `git log --all --numstat` output
	// in the PrettyFormat layout, for one-pass parsing.
	FullHistoryLog(ctx context.Context, workDir string) ([]byte, error)
}

// Options configures the local client.
type Options struct {
	// CloneTimeout bounds clone and pull operations.
	CloneTimeout time.Duration
	// LogTimeout bounds the history log command.
	LogTimeout time.Duration
}

// DefaultOptions mirror the scanner's historical limits: clones of large
// repositories are slow, logs are slower.
func DefaultOptions() Options {
	return Options{
		CloneTimeout: 10 * time.Minute,
		LogTimeout:   10 * time.Minute,
	}
}
