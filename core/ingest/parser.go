package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/repoflux/repoflux/internal/gitcmd"
)

// ParsedCommit is one header line from the history log.
type ParsedCommit struct {
	SHA         string
	AuthorName  string
	AuthorDate  time.Time
	CommitDate  time.Time
	AuthorEmail string
	Subject     string
}

// ParsedChange is one numstat line, attributed to the most recent commit.
type ParsedChange struct {
	Path         string
	LinesAdded   int
	LinesRemoved int
	Binary       bool
	Malformed    bool
}

// Sink receives parse events in stream order: each Commit call is followed
// by zero or more Change calls for that commit. Returning an error aborts
// the parse.
type Sink interface {
	Commit(c *ParsedCommit) error
	Change(ch *ParsedChange) error
}

// Parse streams one `git log --all --numstat` output through the sink in a
// single pass. Numstat lines before the first header (there are none in
// well-formed output) and blank lines are skipped.
func Parse(r io.Reader, sink Sink) error {
	scanner := bufio.NewScanner(r)
	// Subjects and paths can be long; the default 64K token cap is not
	// enough for some generated files.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sawHeader := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, gitcmd.LogDelimiter) {
			commit, err := parseHeader(line)
			if err != nil {
				return err
			}
			if err := sink.Commit(commit); err != nil {
				return err
			}
			sawHeader = true
			continue
		}
		if !sawHeader {
			continue
		}
		if err := sink.Change(parseNumstat(line)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read history log: %w", err)
	}
	return nil
}

// parseHeader splits one pretty-format line into its six fields.
func parseHeader(line string) (*ParsedCommit, error) {
	// The format string puts the delimiter at both ends, so a well-formed
	// line splits into "" + 6 fields + "".
	parts := strings.Split(line, gitcmd.LogDelimiter)
	if len(parts) != 8 {
		return nil, fmt.Errorf("malformed commit header (%d fields): %.80q", len(parts), line)
	}
	fields := parts[1:7]

	authorDate, err := time.Parse(time.RFC3339, fields[2])
	if err != nil {
		return nil, fmt.Errorf("commit %s: parse author date: %w", fields[0], err)
	}
	commitDate, err := time.Parse(time.RFC3339, fields[3])
	if err != nil {
		return nil, fmt.Errorf("commit %s: parse commit date: %w", fields[0], err)
	}

	return &ParsedCommit{
		SHA:        fields[0],
		AuthorName: fields[1],
		AuthorDate: authorDate.UTC(),
		CommitDate: commitDate.UTC(),
		// Stored as written; folding casings together is the alias map's job.
		AuthorEmail: strings.TrimSpace(fields[4]),
		Subject:     fields[5],
	}, nil
}

// parseNumstat reads one "<added>\t<removed>\t<path>" line. Binary files
// report "-" for both counts; those become zero with the binary flag set.
// Anything else unparsable degrades to zero counts rather than failing the
// whole scan.
func parseNumstat(line string) *ParsedChange {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return &ParsedChange{Path: strings.TrimSpace(line), Malformed: true}
	}

	ch := &ParsedChange{Path: parts[2]}
	if parts[0] == "-" || parts[1] == "-" {
		ch.Binary = true
		return ch
	}

	added, errA := strconv.Atoi(parts[0])
	removed, errR := strconv.Atoi(parts[1])
	if errA != nil || errR != nil {
		ch.Malformed = true
		return ch
	}
	ch.LinesAdded = added
	ch.LinesRemoved = removed
	return ch
}
