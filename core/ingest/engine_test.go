package ingest

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/repoflux/repoflux/internal/store"
	"github.com/repoflux/repoflux/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedTarget(t *testing.T, s *store.Store) (*schema.Organization, *schema.Repository) {
	t.Helper()
	ctx := context.Background()
	org := &schema.Organization{Name: "acme"}
	require.NoError(t, s.CreateOrganization(ctx, org))
	repo := &schema.Repository{OrgID: org.ID, Name: "app", URL: "https://example.com/app", Enabled: true}
	require.NoError(t, s.CreateRepository(ctx, repo))
	return org, repo
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.SQLiteBackend, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// threeCommitLog is a small synthetic history, oldest first:
//
//	aaa (jane, 07-01): creates src/a.go
//	bbb (bob,  07-03): creates src/b.go, edits src/a.go
//	ccc (jane, 07-05): renames src/a.go to src/c.go, adds a binary asset
const threeCommitLog = `&DEL&>aaa&DEL&>Jane Doe&DEL&>2019-07-01T08:00:00Z&DEL&>2019-07-01T08:00:00Z&DEL&>jane@example.com&DEL&>Initial-commit&DEL&>
10	0	src/a.go
&DEL&>bbb&DEL&>Bob&DEL&>2019-07-03T09:00:00Z&DEL&>2019-07-03T09:00:00Z&DEL&>bob@example.com&DEL&>Add-b&DEL&>
20	0	src/b.go
5	2	src/a.go
&DEL&>ccc&DEL&>Jane Doe&DEL&>2019-07-05T10:00:00Z&DEL&>2019-07-05T10:00:00Z&DEL&>jane@example.com&DEL&>Rename&DEL&>
1	1	src/{a.go => c.go}
-	-	assets/logo.png
`

func ingestThree(t *testing.T, s *store.Store, org *schema.Organization, repo *schema.Repository) *schema.IngestStats {
	t.Helper()
	engine := NewEngine(s, testLogger(), nil)
	stats, err := engine.Ingest(context.Background(), org, repo, strings.NewReader(threeCommitLog))
	require.NoError(t, err)
	return stats
}

func TestIngestCreatesEverything(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()

	stats := ingestThree(t, s, org, repo)
	assert.Equal(t, 3, stats.CommitsSeen)
	assert.Equal(t, 3, stats.CommitsCreated)
	assert.Equal(t, 4, stats.FilesCreated) // a.go, b.go, c.go, logo.png
	assert.Equal(t, 5, stats.ChangesCreated)
	assert.Zero(t, stats.LinesFiltered)

	n, err := s.CommitCount(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	authors, err := s.AuthorsForRepo(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "bob@example.com", authors[0].Email)
	assert.Equal(t, "Bob", authors[0].DisplayName)
	assert.Equal(t, "Jane Doe", authors[1].DisplayName)
}

func TestIngestIdempotent(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()

	ingestThree(t, s, org, repo)
	stats := ingestThree(t, s, org, repo)

	assert.Equal(t, 3, stats.CommitsSeen)
	assert.Zero(t, stats.CommitsCreated)
	assert.Zero(t, stats.FilesCreated)
	assert.Zero(t, stats.ChangesCreated)

	n, err := s.CommitCount(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIngestClassification(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()
	ingestThree(t, s, org, repo)

	day := func(d int) (time.Time, time.Time) {
		return time.Date(2019, 7, d, 0, 0, 0, 0, time.UTC),
			time.Date(2019, 7, d, 23, 59, 59, 0, time.UTC)
	}

	// 07-01: a.go is born.
	start, end := day(1)
	w, err := s.FileChangeWindow(ctx, repo.ID, nil, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Creates)
	assert.Equal(t, 0, w.Edits)
	assert.Equal(t, 10, w.LinesAdded)

	// 07-03: b.go is born, a.go is edited.
	start, end = day(3)
	w, err = s.FileChangeWindow(ctx, repo.ID, nil, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Creates)
	assert.Equal(t, 1, w.Edits)
	assert.Equal(t, 25, w.LinesAdded)

	// 07-05: only the binary is a create. The rename is a move plus edit,
	// and c.go keeps a.go's creator.
	start, end = day(5)
	w, err = s.FileChangeWindow(ctx, repo.ID, nil, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Creates)
	assert.Equal(t, 1, w.Edits)
	assert.Equal(t, 1, w.Moves)
	assert.Equal(t, 1, w.LinesAdded) // binary contributes zero
}

// TestIngestNewestFirstOrder feeds the same history newest first, the order
// a plain 'git log --all' emits. Creator reassignment on the earlier commit
// must produce the same classification either way.
func TestIngestNewestFirstOrder(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()

	log := `&DEL&>ccc&DEL&>Jane Doe&DEL&>2019-07-05T10:00:00Z&DEL&>2019-07-05T10:00:00Z&DEL&>jane@example.com&DEL&>Rename&DEL&>
1	1	src/{a.go => c.go}
-	-	assets/logo.png
&DEL&>bbb&DEL&>Bob&DEL&>2019-07-03T09:00:00Z&DEL&>2019-07-03T09:00:00Z&DEL&>bob@example.com&DEL&>Add-b&DEL&>
20	0	src/b.go
5	2	src/a.go
&DEL&>aaa&DEL&>Jane Doe&DEL&>2019-07-01T08:00:00Z&DEL&>2019-07-01T08:00:00Z&DEL&>jane@example.com&DEL&>Initial-commit&DEL&>
10	0	src/a.go
`
	engine := NewEngine(s, testLogger(), nil)
	_, err := engine.Ingest(ctx, org, repo, strings.NewReader(log))
	require.NoError(t, err)

	day := func(d int) (time.Time, time.Time) {
		return time.Date(2019, 7, d, 0, 0, 0, 0, time.UTC),
			time.Date(2019, 7, d, 23, 59, 59, 0, time.UTC)
	}

	start, end := day(1)
	w, err := s.FileChangeWindow(ctx, repo.ID, nil, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Creates)
	assert.Equal(t, 0, w.Edits)

	start, end = day(3)
	w, err = s.FileChangeWindow(ctx, repo.ID, nil, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Creates)
	assert.Equal(t, 1, w.Edits)

	start, end = day(5)
	w, err = s.FileChangeWindow(ctx, repo.ID, nil, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Creates)
	assert.Equal(t, 1, w.Edits)
	assert.Equal(t, 1, w.Moves)
}

func TestIngestAppliesPathFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	org := &schema.Organization{Name: "acme", DirectoryDenyList: "assets/"}
	require.NoError(t, s.CreateOrganization(ctx, org))
	repo := &schema.Repository{OrgID: org.ID, Name: "app", URL: "u", Enabled: true}
	require.NoError(t, s.CreateRepository(ctx, repo))

	engine := NewEngine(s, testLogger(), nil)
	stats, err := engine.Ingest(ctx, org, repo, strings.NewReader(threeCommitLog))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.LinesFiltered) // assets/logo.png
	assert.Equal(t, 3, stats.FilesCreated)
	assert.Equal(t, 4, stats.ChangesCreated)
}

func TestIngestAliasMapping(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()

	engine := NewEngine(s, testLogger(), map[string]string{
		"Bob@Example.com": "robert@example.com",
	})
	_, err := engine.Ingest(ctx, org, repo, strings.NewReader(threeCommitLog))
	require.NoError(t, err)

	authors, err := s.AuthorsForRepo(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "jane@example.com", authors[0].Email)
	assert.Equal(t, "robert@example.com", authors[1].Email)
}

func TestIngestEmailCasePreserved(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()

	log := "&DEL&>abc&DEL&>Jane&DEL&>2019-07-01T08:00:00Z&DEL&>2019-07-01T08:00:00Z&DEL&>JANE@Example.com&DEL&>x&DEL&>\n" +
		"1\t0\tsrc/a.go\n"
	engine := NewEngine(s, testLogger(), nil)
	_, err := engine.Ingest(ctx, org, repo, strings.NewReader(log))
	require.NoError(t, err)

	// Identities keep their casing; folding variants together is what the
	// alias map is for.
	authors, err := s.AuthorsForRepo(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, authors, 1)
	assert.Equal(t, "JANE@Example.com", authors[0].Email)
}

func TestIngestAuthorlessCommit(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()

	log := "&DEL&>abc&DEL&>Anon&DEL&>2019-07-01T08:00:00Z&DEL&>2019-07-01T08:00:00Z&DEL&>&DEL&>x&DEL&>\n" +
		"1\t0\tsrc/a.go\n"
	engine := NewEngine(s, testLogger(), nil)
	stats, err := engine.Ingest(ctx, org, repo, strings.NewReader(log))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CommitsCreated)

	authors, err := s.AuthorsForRepo(ctx, repo.ID)
	require.NoError(t, err)
	assert.Empty(t, authors)

	n, err := s.AuthorCountInRange(ctx, repo.ID, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestBatchRotation(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()

	engine := NewEngine(s, testLogger(), nil)
	engine.batchSize = 2 // force several flushes over three commits

	stats, err := engine.Ingest(ctx, org, repo, strings.NewReader(threeCommitLog))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.CommitsCreated)
	assert.Equal(t, 5, stats.ChangesCreated)
}
