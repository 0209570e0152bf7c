// Package ingest turns a raw git history log into commit, file, and
// file-change rows. One pass over the log stream, batched transactions, and
// insert-or-ignore writes make re-runs of the same history idempotent.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/repoflux/repoflux/internal/pathfilter"
	"github.com/repoflux/repoflux/internal/store"
	"github.com/repoflux/repoflux/schema"
)

const (
	// defaultBatchSize is how many commits share one transaction. Large
	// enough to amortize commit cost, small enough to bound loss on abort.
	defaultBatchSize = 300

	// progressEvery paces the progress log on big histories.
	progressEvery = 1000
)

// Engine ingests parsed history into the store.
type Engine struct {
	store     *store.Store
	log       *slog.Logger
	aliases   map[string]string
	batchSize int
}

// NewEngine builds an ingestion engine. aliases maps alternate author emails
// to their canonical form and may be nil; alias keys match case-insensitively
// but the canonical form is stored as given.
func NewEngine(st *store.Store, log *slog.Logger, aliases map[string]string) *Engine {
	normalized := make(map[string]string, len(aliases))
	for from, to := range aliases {
		normalized[strings.ToLower(from)] = to
	}
	return &Engine{
		store:     st,
		log:       log,
		aliases:   normalized,
		batchSize: defaultBatchSize,
	}
}

// Ingest parses the history log and persists it for the repository. The
// organization supplies default path filters; per-repo lists override them.
func (e *Engine) Ingest(ctx context.Context, org *schema.Organization, repo *schema.Repository, logStream io.Reader) (*schema.IngestStats, error) {
	run := &ingestRun{
		e:       e,
		ctx:     ctx,
		repo:    repo,
		filter:  pathfilter.Resolve(org, repo),
		files:   map[string]*trackedFile{},
		authors: map[string]*schema.Author{},
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	run.tx = tx

	if err := Parse(logStream, run); err != nil {
		_ = run.tx.Rollback()
		return nil, fmt.Errorf("ingest repo %s: %w", repo.Name, err)
	}
	if err := run.tx.Commit(); err != nil {
		return nil, fmt.Errorf("ingest repo %s: %w", repo.Name, err)
	}

	e.log.Info("ingest complete",
		"repo", repo.Name,
		"commits_seen", run.stats.CommitsSeen,
		"commits_created", run.stats.CommitsCreated,
		"files_created", run.stats.FilesCreated,
		"changes_created", run.stats.ChangesCreated,
		"lines_filtered", run.stats.LinesFiltered)
	return &run.stats, nil
}

// ingestRun is the per-repository parse state. It implements Sink.
type ingestRun struct {
	e      *Engine
	ctx    context.Context
	repo   *schema.Repository
	filter *pathfilter.Filter
	tx     *store.Tx

	current     *schema.Commit
	skipCurrent bool
	batchCount  int

	// files caches path lookups for the life of the run; the map is scoped
	// here so concurrent repo scans cannot see each other's entries.
	files   map[string]*trackedFile
	authors map[string]*schema.Author

	stats schema.IngestStats
}

var _ Sink = (*ingestRun)(nil)

// Commit handles one header line: rotate the batch transaction when full,
// resolve the author, and insert the commit. A commit whose (repo, sha) is
// already stored flags its numstat lines for skipping.
func (r *ingestRun) Commit(pc *ParsedCommit) error {
	if r.batchCount >= r.e.batchSize {
		if err := r.tx.Commit(); err != nil {
			return fmt.Errorf("flush ingest batch: %w", err)
		}
		tx, err := r.e.store.Begin(r.ctx)
		if err != nil {
			return err
		}
		r.tx = tx
		r.batchCount = 0
	}

	author, err := r.resolveAuthor(pc)
	if err != nil {
		return err
	}

	commit := &schema.Commit{
		RepoID:     r.repo.ID,
		SHA:        pc.SHA,
		AuthorDate: pc.AuthorDate,
		CommitDate: pc.CommitDate,
		Subject:    pc.Subject,
	}
	if author != nil {
		commit.AuthorID = &author.ID
	}

	created, err := r.tx.InsertCommit(r.ctx, commit)
	if err != nil {
		return err
	}
	r.current = commit
	r.skipCurrent = !created
	r.batchCount++
	r.stats.CommitsSeen++
	if created {
		r.stats.CommitsCreated++
	}
	if r.stats.CommitsSeen%progressEvery == 0 {
		r.e.log.Debug("ingest progress", "repo", r.repo.Name, "commits", r.stats.CommitsSeen)
	}
	return nil
}

// resolveAuthor maps the email through the alias table and returns the
// author row, creating it on first sight. Commits without a usable email
// stay authorless.
func (r *ingestRun) resolveAuthor(pc *ParsedCommit) (*schema.Author, error) {
	email := pc.AuthorEmail
	if canonical, ok := r.e.aliases[strings.ToLower(email)]; ok {
		email = canonical
	}
	if email == "" {
		return nil, nil
	}

	if author, ok := r.authors[email]; ok {
		return author, nil
	}
	author, _, err := r.tx.GetOrCreateAuthor(r.ctx, email)
	if err != nil {
		return nil, err
	}
	if author.DisplayName == "" && pc.AuthorName != "" {
		if err := r.tx.BackfillAuthorName(r.ctx, author.ID, pc.AuthorName); err != nil {
			return nil, err
		}
		author.DisplayName = pc.AuthorName
	}
	r.authors[email] = author
	return author, nil
}

// Change handles one numstat line for the current commit.
func (r *ingestRun) Change(ch *ParsedChange) error {
	if r.current == nil || r.skipCurrent {
		return nil
	}
	if ch.Malformed {
		r.stats.LinesMalformed++
	}

	path, prevPath, moved := NormalizePath(ch.Path)
	if !r.filter.ShouldProcess(path) {
		r.stats.LinesFiltered++
		return nil
	}

	entry, err := r.lookupFile(path, prevPath, moved, ch.Binary)
	if err != nil {
		return err
	}
	if !moved {
		if err := r.reclaimCreator(entry); err != nil {
			return err
		}
	}

	// A move is never a create, no matter who the creator is.
	isCreate := 0
	if !moved && entry.file.CreatedByID == r.current.ID {
		isCreate = 1
	}
	fc := &schema.FileChange{
		FileID:       entry.file.ID,
		CommitID:     r.current.ID,
		LinesAdded:   ch.LinesAdded,
		LinesRemoved: ch.LinesRemoved,
		IsCreate:     isCreate,
		IsEdit:       1 - isCreate,
	}
	if moved {
		fc.IsMove = 1
	}

	created, err := r.tx.InsertFileChange(r.ctx, fc)
	if err != nil {
		return err
	}
	if created {
		r.stats.ChangesCreated++
	}
	return nil
}

// trackedFile is a run-cached file row. creatorDate is the creating commit's
// date when that commit was ingested this run, zero when it predates the run.
type trackedFile struct {
	file        *schema.File
	creatorDate time.Time
}

// reclaimCreator hands creatorship to the current commit when it predates the
// recorded creator. `git log --all` interleaves branches, so the commit that
// introduced a path is not always the one parsed first.
func (r *ingestRun) reclaimCreator(entry *trackedFile) error {
	if entry.creatorDate.IsZero() || !r.current.CommitDate.Before(entry.creatorDate) {
		return nil
	}
	if err := r.tx.SetFileCreator(r.ctx, entry.file.ID, r.current.ID); err != nil {
		return err
	}
	if err := r.tx.MarkChangeEdit(r.ctx, entry.file.ID, entry.file.CreatedByID); err != nil {
		return err
	}
	entry.file.CreatedByID = r.current.ID
	entry.creatorDate = r.current.CommitDate
	return nil
}

// lookupFile resolves the file row for a normalized path, consulting the
// run-scoped cache first. The commit that introduced a path is its creator;
// a rename target inherits the creator of the path it came from, so a move
// never turns back into a create.
func (r *ingestRun) lookupFile(path, prevPath string, moved, binary bool) (*trackedFile, error) {
	if entry, ok := r.files[path]; ok {
		return entry, nil
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	file, err := r.tx.GetFile(r.ctx, r.repo.ID, dir, name)
	if err != nil {
		return nil, err
	}
	entry := &trackedFile{file: file}
	if file == nil {
		creatorID := r.current.ID
		creatorDate := r.current.CommitDate
		if moved {
			if prev, err := r.previousFile(prevPath); err != nil {
				return nil, err
			} else if prev != nil {
				creatorID = prev.file.CreatedByID
				creatorDate = prev.creatorDate
			}
		}
		entry.file = &schema.File{
			RepoID:      r.repo.ID,
			Path:        dir,
			Name:        name,
			Ext:         strings.TrimPrefix(filepath.Ext(name), "."),
			Binary:      binary,
			CreatedByID: creatorID,
		}
		entry.creatorDate = creatorDate
		if err := r.tx.InsertFile(r.ctx, entry.file); err != nil {
			return nil, err
		}
		r.stats.FilesCreated++
	}
	r.files[path] = entry
	return entry, nil
}

// previousFile resolves the pre-rename path of a move, or nil when that path
// was never ingested.
func (r *ingestRun) previousFile(prevPath string) (*trackedFile, error) {
	if prevPath == "" {
		return nil, nil
	}
	if entry, ok := r.files[prevPath]; ok {
		return entry, nil
	}
	file, err := r.tx.GetFile(r.ctx, r.repo.ID, filepath.Dir(prevPath), filepath.Base(prevPath))
	if err != nil || file == nil {
		return nil, err
	}
	entry := &trackedFile{file: file}
	r.files[prevPath] = entry
	return entry, nil
}
