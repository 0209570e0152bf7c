package rollup

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/repoflux/repoflux/core/ingest"
	"github.com/repoflux/repoflux/internal/store"
	"github.com/repoflux/repoflux/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.SQLiteBackend, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTarget(t *testing.T, s *store.Store) (*schema.Organization, *schema.Repository) {
	t.Helper()
	ctx := context.Background()
	org := &schema.Organization{Name: "acme"}
	require.NoError(t, s.CreateOrganization(ctx, org))
	repo := &schema.Repository{OrgID: org.ID, Name: "app", URL: "u", Enabled: true}
	require.NoError(t, s.CreateRepository(ctx, repo))
	return org, repo
}

// All of July 2019; the 1st was a Monday, so the three active days share one
// ISO week.
//
//	aaa (jane, 07-01): creates src/a.go (+10)
//	bbb (bob,  07-03): creates src/b.go (+20), edits src/a.go (+5/-2)
//	ccc (jane, 07-05): renames src/a.go to src/c.go (+1/-1)
const historyLog = `&DEL&>aaa&DEL&>Jane Doe&DEL&>2019-07-01T08:00:00Z&DEL&>2019-07-01T08:00:00Z&DEL&>jane@example.com&DEL&>Initial-commit&DEL&>
10	0	src/a.go
&DEL&>bbb&DEL&>Bob&DEL&>2019-07-03T09:00:00Z&DEL&>2019-07-03T09:00:00Z&DEL&>bob@example.com&DEL&>Add-b&DEL&>
20	0	src/b.go
5	2	src/a.go
&DEL&>ccc&DEL&>Jane Doe&DEL&>2019-07-05T10:00:00Z&DEL&>2019-07-05T10:00:00Z&DEL&>jane@example.com&DEL&>Rename&DEL&>
1	1	src/{a.go => c.go}
`

func ingestLog(t *testing.T, s *store.Store, org *schema.Organization, repo *schema.Repository, log string) {
	t.Helper()
	engine := ingest.NewEngine(s, testLogger(), nil)
	_, err := engine.Ingest(context.Background(), org, repo, strings.NewReader(log))
	require.NoError(t, err)
}

func newEngineAt(s *store.Store, at time.Time) *Engine {
	e := NewEngine(s, testLogger())
	e.now = func() time.Time { return at }
	return e
}

func reload(t *testing.T, s *store.Store, repo *schema.Repository) *schema.Repository {
	t.Helper()
	got, err := s.RepositoryByName(context.Background(), repo.OrgID, repo.Name)
	require.NoError(t, err)
	return got
}

func TestRollupDayRows(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()
	ingestLog(t, s, org, repo, historyLog)

	e := newEngineAt(s, time.Date(2019, 7, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, e.RollupRepo(ctx, repo))

	days, err := s.Statistics(ctx, store.StatFilter{RepoID: repo.ID, Interval: schema.IntervalDay})
	require.NoError(t, err)
	require.Len(t, days, 3)

	first := days[0]
	assert.Equal(t, time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC), first.StartDate.UTC())
	assert.Equal(t, 10, first.LinesAdded)
	assert.Equal(t, 1, first.CommitTotal)
	assert.Equal(t, 1, first.DaysActive)
	assert.Equal(t, 1, first.Creates)
	assert.Equal(t, 1, first.AuthorTotal)

	second := days[1]
	assert.Equal(t, 25, second.LinesAdded)
	assert.Equal(t, 2, second.LinesRemoved)
	assert.Equal(t, 27, second.LinesChanged)
	assert.Equal(t, 2, second.FilesChanged)
	assert.Equal(t, 1, second.Creates)
	assert.Equal(t, 1, second.Edits)
	// 27 lines over 1 commit, truncated.
	assert.Equal(t, 27, second.AverageCommitSize)
	// Both operands nonzero, so bias engages.
	assert.Equal(t, 23, second.Bias)

	third := days[2]
	assert.Equal(t, 1, third.Moves)
	assert.Equal(t, 0, third.Bias) // 1 added, 1 removed: 0 either way
}

func TestRollupWeekAndMonthConsistency(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()
	ingestLog(t, s, org, repo, historyLog)

	e := newEngineAt(s, time.Date(2019, 8, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, e.RollupRepo(ctx, repo))

	weeks, err := s.Statistics(ctx, store.StatFilter{RepoID: repo.ID, Interval: schema.IntervalWeek})
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	week := weeks[0]
	assert.Equal(t, time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC), week.StartDate.UTC())
	assert.Equal(t, 36, week.LinesAdded)
	assert.Equal(t, 3, week.LinesRemoved)
	assert.Equal(t, 39, week.LinesChanged)
	assert.Equal(t, 3, week.CommitTotal)
	assert.Equal(t, 3, week.DaysActive)
	// Distinct files across the week, not the sum of the day counts.
	assert.Equal(t, 3, week.FilesChanged)
	assert.Equal(t, 2, week.AuthorTotal)
	// 39/3 = 13 both ways.
	assert.Equal(t, 13, week.AverageCommitSize)
	assert.Equal(t, 13, week.LinesChangedPerDay)
	assert.Equal(t, 1, week.CommitsPerDay)

	months, err := s.Statistics(ctx, store.StatFilter{RepoID: repo.ID, Interval: schema.IntervalMonth})
	require.NoError(t, err)
	require.Len(t, months, 1)
	month := months[0]
	assert.Equal(t, week.LinesChanged, month.LinesChanged)
	assert.Equal(t, week.CommitTotal, month.CommitTotal)
	assert.Equal(t, week.FilesChanged, month.FilesChanged)
}

func TestRollupAuthorRows(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()
	ingestLog(t, s, org, repo, historyLog)

	e := newEngineAt(s, time.Date(2019, 8, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, e.RollupRepo(ctx, repo))

	jane, err := s.AuthorByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	bob, err := s.AuthorByEmail(ctx, "bob@example.com")
	require.NoError(t, err)

	janeDays, err := s.Statistics(ctx, store.StatFilter{
		RepoID: repo.ID, Interval: schema.IntervalDay, AuthorID: &jane.ID})
	require.NoError(t, err)
	assert.Len(t, janeDays, 2)

	bobWeeks, err := s.Statistics(ctx, store.StatFilter{
		RepoID: repo.ID, Interval: schema.IntervalWeek, AuthorID: &bob.ID})
	require.NoError(t, err)
	require.Len(t, bobWeeks, 1)
	assert.Equal(t, 25, bobWeeks[0].LinesAdded)
	assert.Equal(t, 1, bobWeeks[0].AuthorTotal)
	assert.Equal(t, 2, bobWeeks[0].FilesChanged)
}

func TestRollupLifetime(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()
	ingestLog(t, s, org, repo, historyLog)

	e := newEngineAt(s, time.Date(2019, 8, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, e.RollupRepo(ctx, repo))

	team, err := s.FindStatistic(ctx, repo.ID, nil, schema.IntervalLifetime, nil)
	require.NoError(t, err)
	require.NotNil(t, team)
	assert.Nil(t, team.StartDate)
	assert.Equal(t, 3, team.DaysActive)
	assert.Equal(t, 5, team.Longevity) // 07-01 through 07-05 inclusive
	assert.InDelta(t, 0.5, team.Commitment, 1e-9)
	assert.Equal(t, 0, team.DaysSinceSeen)
	assert.Equal(t, 0, team.DaysBeforeJoined)
	require.NotNil(t, team.EarliestCommitDate)
	assert.Equal(t, 1, team.EarliestCommitDate.UTC().Day())

	bob, err := s.AuthorByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	bobLife, err := s.FindStatistic(ctx, repo.ID, &bob.ID, schema.IntervalLifetime, nil)
	require.NoError(t, err)
	require.NotNil(t, bobLife)
	assert.Equal(t, 1, bobLife.DaysActive)
	assert.Equal(t, 1, bobLife.Longevity)
	assert.Equal(t, 2, bobLife.DaysSinceSeen)    // repo last active 07-05, bob 07-03
	assert.Equal(t, 2, bobLife.DaysBeforeJoined) // repo born 07-01, bob joined 07-03
	assert.InDelta(t, 0.5, bobLife.Commitment, 1e-9)
}

func TestRollupLifetimePropagation(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()
	ingestLog(t, s, org, repo, historyLog)

	e := newEngineAt(s, time.Date(2019, 8, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, e.RollupRepo(ctx, repo))

	jane, err := s.AuthorByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	rows, err := s.Statistics(ctx, store.StatFilter{RepoID: repo.ID, AuthorID: &jane.ID})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		assert.Equal(t, 5, row.Longevity, "interval %s", row.Interval)
		assert.Equal(t, 0, row.DaysSinceSeen)
		require.NotNil(t, row.EarliestCommitDate)
		require.NotNil(t, row.LastScanned)
	}
}

func TestRollupOpenPeriodReplacedInPlace(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()
	ingestLog(t, s, org, repo, historyLog)

	// The newest commit's day is still open.
	at := time.Date(2019, 7, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, newEngineAt(s, at).RollupRepo(ctx, repo))

	// More work lands on the same day.
	extra := "&DEL&>ddd&DEL&>Jane Doe&DEL&>2019-07-05T15:00:00Z&DEL&>2019-07-05T15:00:00Z&DEL&>jane@example.com&DEL&>More&DEL&>\n" +
		"7\t0\tsrc/b.go\n"
	ingestLog(t, s, org, repo, extra)

	repo = reload(t, s, repo)
	require.NoError(t, newEngineAt(s, at.Add(time.Hour)).RollupRepo(ctx, repo))

	day := time.Date(2019, 7, 5, 0, 0, 0, 0, time.UTC)
	rows, err := s.Statistics(ctx, store.StatFilter{
		RepoID: repo.ID, Interval: schema.IntervalDay, Start: &day, End: &day})
	require.NoError(t, err)
	require.Len(t, rows, 1) // replaced, not duplicated
	assert.Equal(t, 8, rows[0].LinesAdded)
	assert.Equal(t, 2, rows[0].CommitTotal)

	weeks, err := s.Statistics(ctx, store.StatFilter{RepoID: repo.ID, Interval: schema.IntervalWeek})
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, 4, weeks[0].CommitTotal)
}

// TestRollupPeriodClosingBetweenScans covers a period written while open and
// rolled up again after it closed. The recompute must replace the earlier
// row, not sit beside it: a duplicated day row would also leak into the week
// and month sums built on top of it.
func TestRollupPeriodClosingBetweenScans(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()
	ingestLog(t, s, org, repo, historyLog)

	// First pass while 07-05 and its week are still open.
	require.NoError(t, newEngineAt(s, time.Date(2019, 7, 5, 12, 0, 0, 0, time.UTC)).RollupRepo(ctx, repo))

	// Second pass after both closed.
	repo = reload(t, s, repo)
	require.NoError(t, newEngineAt(s, time.Date(2019, 7, 9, 0, 0, 0, 0, time.UTC)).RollupRepo(ctx, repo))

	day := time.Date(2019, 7, 5, 0, 0, 0, 0, time.UTC)
	rows, err := s.Statistics(ctx, store.StatFilter{
		RepoID: repo.ID, Interval: schema.IntervalDay, Start: &day, End: &day})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	days, err := s.Statistics(ctx, store.StatFilter{RepoID: repo.ID, Interval: schema.IntervalDay})
	require.NoError(t, err)
	assert.Len(t, days, 3)

	weeks, err := s.Statistics(ctx, store.StatFilter{RepoID: repo.ID, Interval: schema.IntervalWeek})
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, 36, weeks[0].LinesAdded)
	assert.Equal(t, 3, weeks[0].CommitTotal)

	months, err := s.Statistics(ctx, store.StatFilter{RepoID: repo.ID, Interval: schema.IntervalMonth})
	require.NoError(t, err)
	assert.Len(t, months, 1)
}

func TestRollupClosedPeriodsNotRecomputed(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()
	ingestLog(t, s, org, repo, historyLog)

	require.NoError(t, newEngineAt(s, time.Date(2019, 8, 2, 0, 0, 0, 0, time.UTC)).RollupRepo(ctx, repo))

	// Tamper with a closed day row; a later incremental rollup must leave
	// it alone.
	day := time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC)
	row, err := s.FindStatistic(ctx, repo.ID, nil, schema.IntervalDay, &day)
	require.NoError(t, err)
	require.NotNil(t, row)
	row.LinesAdded = 424242
	require.NoError(t, s.UpdateStatisticValues(ctx, row))

	repo = reload(t, s, repo)
	require.NoError(t, newEngineAt(s, time.Date(2019, 8, 3, 0, 0, 0, 0, time.UTC)).RollupRepo(ctx, repo))

	row, err = s.FindStatistic(ctx, repo.ID, nil, schema.IntervalDay, &day)
	require.NoError(t, err)
	assert.Equal(t, 424242, row.LinesAdded)
}

func TestRollupSkipsDayWithoutChanges(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()

	// A merge-style commit with no numstat lines on its own day.
	log := historyLog +
		"&DEL&>eee&DEL&>Jane Doe&DEL&>2019-07-08T09:00:00Z&DEL&>2019-07-08T09:00:00Z&DEL&>jane@example.com&DEL&>Merge&DEL&>\n"
	ingestLog(t, s, org, repo, log)

	e := newEngineAt(s, time.Date(2019, 8, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, e.RollupRepo(ctx, repo))

	day := time.Date(2019, 7, 8, 0, 0, 0, 0, time.UTC)
	row, err := s.FindStatistic(ctx, repo.ID, nil, schema.IntervalDay, &day)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRollupEmptyRepo(t *testing.T) {
	s := newStore(t)
	_, repo := seedTarget(t, s)
	ctx := context.Background()

	at := time.Date(2019, 8, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, newEngineAt(s, at).RollupRepo(ctx, repo))

	rows, err := s.Statistics(ctx, store.StatFilter{RepoID: repo.ID, AnyAuthor: true})
	require.NoError(t, err)
	assert.Empty(t, rows)

	repo = reload(t, s, repo)
	require.NotNil(t, repo.LastScanned)
}

func TestCacheMemoizesAndInvalidates(t *testing.T) {
	s := newStore(t)
	org, repo := seedTarget(t, s)
	ctx := context.Background()
	ingestLog(t, s, org, repo, historyLog)

	c := NewCache(s)
	n1, err := c.FileCount(ctx, repo.ID, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n1)
	assert.Equal(t, 1, c.Len())

	// Served from the memo even without touching the store again.
	n2, err := c.FileCount(ctx, repo.ID, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
	assert.Equal(t, 1, c.Len())

	c.Invalidate()
	assert.Zero(t, c.Len())
}
